package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"receiptgate/internal/constants"
	apperrors "receiptgate/internal/errors"
	"receiptgate/internal/metrics"
	"receiptgate/internal/models"
	"receiptgate/internal/privacy"
	"receiptgate/internal/retry"
	"receiptgate/pkg/whatsapp/types"
)

const (
	defaultQRRefreshInterval = 20 * time.Second
	subscriberBuffer         = 16
)

// defaultStartupBackoff bounds how long Start waits for an engine that is
// still coming up and refusing connections
var defaultStartupBackoff = retry.BackoffConfig{
	InitialDelay: time.Second,
	MaxDelay:     10 * time.Second,
	Multiplier:   2,
	MaxAttempts:  5,
	Jitter:       true,
}

// SupervisorConfig tunes the session supervisor. A zero Reconnect policy
// falls back to retry.DefaultBackoffConfig.
type SupervisorConfig struct {
	Reconnect         retry.BackoffConfig
	Startup           retry.BackoffConfig
	StartupWatchdog   time.Duration
	CallTimeout       time.Duration
	QRRefreshInterval time.Duration
}

// SessionSupervisor owns the lifecycle of the single messaging session. It
// reacts to lifecycle events, renders pairing codes, reconnects after a
// disconnect and publishes state changes to subscribers.
type SessionSupervisor struct {
	client  types.WAClient
	backoff *retry.Backoff
	qr      *QRRenderer
	markers *MarkerWriter
	logger  *logrus.Logger
	metrics *metrics.Registry
	masker  privacy.Masker
	config  SupervisorConfig
	runCtx  context.Context

	mu           sync.RWMutex
	session      models.Session
	watchdog     *time.Timer
	reconnecting bool
	lastQR       string
	stopQR       context.CancelFunc
	subscribers  []chan models.SessionState
	closed       bool

	wg sync.WaitGroup
}

func NewSessionSupervisor(client types.WAClient, config SupervisorConfig, qr *QRRenderer, markers *MarkerWriter, logger *logrus.Logger, registry *metrics.Registry, masker privacy.Masker) *SessionSupervisor {
	if config.Reconnect == (retry.BackoffConfig{}) {
		config.Reconnect = retry.DefaultBackoffConfig()
	}
	if config.Startup == (retry.BackoffConfig{}) {
		config.Startup = defaultStartupBackoff
	}
	if config.StartupWatchdog <= 0 {
		config.StartupWatchdog = constants.DefaultStartupWatchdogSec * time.Second
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = constants.DefaultSessionCallTimeout * time.Second
	}
	if config.QRRefreshInterval <= 0 {
		config.QRRefreshInterval = defaultQRRefreshInterval
	}

	return &SessionSupervisor{
		client:  client,
		backoff: retry.NewBackoff(config.Reconnect),
		qr:      qr,
		markers: markers,
		logger:  logger,
		metrics: registry,
		masker:  masker,
		config:  config,
		runCtx:  context.Background(),
		session: models.Session{
			Name:      client.GetSessionName(),
			State:     models.SessionStateUnauthenticated,
			UpdatedAt: time.Now(),
		},
	}
}

// Start initializes the session with the engine and arms the startup
// watchdog. While the engine refuses connections the call is retried with
// the startup policy; any other error fails at once. Background work
// started later stops when ctx ends.
func (s *SessionSupervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	s.logger.WithField(LogFieldSession, s.session.Name).Info("Starting session")

	attempt := 0
	err := retry.NewBackoff(s.config.Startup).RetryWithPredicate(ctx, func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
		defer cancel()

		err := s.client.StartSession(callCtx)
		if apperrors.IsConnectionRefused(err) {
			s.logger.WithError(err).WithField(LogFieldAttempt, attempt).Warn("Messaging engine not reachable yet")
		}
		return err
	}, apperrors.IsConnectionRefused)
	if err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}

	s.mu.Lock()
	s.watchdog = time.AfterFunc(s.config.StartupWatchdog, s.checkStartup)
	s.mu.Unlock()
	return nil
}

func (s *SessionSupervisor) checkStartup() {
	if s.Ready() {
		return
	}
	s.logger.WithFields(logrus.Fields{
		LogFieldState:    s.State(),
		LogFieldDuration: s.config.StartupWatchdog.Milliseconds(),
	}).Warn("Session not ready yet; the engine may be stuck starting or waiting for a QR scan")
}

// HandleEvent applies one lifecycle event. It is called from the gateway
// loop only, so events are handled in delivery order.
func (s *SessionSupervisor) HandleEvent(ctx context.Context, event types.Event) {
	entry := s.logger.WithFields(logrus.Fields{
		LogFieldSession: event.Session,
		LogFieldStatus:  event.Status,
	})

	switch event.Kind {
	case types.EventKindStateChange:
		entry.Info("Session state changed")
	case types.EventKindLoading:
		s.clearReconnecting()
		entry.Debug("Session loading")
	case types.EventKindQR:
		s.clearReconnecting()
		s.setState(models.SessionStateAwaitingScan)
		s.startQRRefresh()
		entry.Info("Waiting for QR scan")
	case types.EventKindAuthenticated:
		s.clearReconnecting()
		s.setState(models.SessionStateAuthenticated)
		entry.Info("Session authenticated")
	case types.EventKindAuthFailure:
		s.clearReconnecting()
		s.stopQRRefresh()
		s.setState(models.SessionStateAuthFailed)
		entry.Error("Session authentication failed; pair the device again and restart")
	case types.EventKindReady:
		s.handleReady(ctx, event)
	case types.EventKindDisconnected:
		s.stopQRRefresh()
		s.setState(models.SessionStateDisconnected)
		entry.Warn("Session disconnected")
		s.scheduleReconnect()
	default:
		entry.WithField(LogFieldEvent, event.Kind).Debug("Ignoring session event")
	}
}

func (s *SessionSupervisor) handleReady(ctx context.Context, event types.Event) {
	s.stopQRRefresh()

	identity, pushName := "", ""
	if event.Me != nil && event.Me.ID != "" {
		identity, pushName = event.Me.ID, event.Me.PushName
	} else {
		callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
		me, err := s.client.GetMe(callCtx)
		cancel()
		if err != nil {
			s.logger.WithError(err).Warn("Failed to look up session identity")
		} else if me != nil {
			identity, pushName = me.ID, me.PushName
		}
	}

	now := time.Now()
	s.mu.Lock()
	s.reconnecting = false
	s.session.Reconnects = 0
	s.session.ReadyAt = &now
	if identity != "" {
		s.session.Identity = identity
		s.session.PushName = pushName
	}
	s.mu.Unlock()
	s.setState(models.SessionStateReady)

	s.stopWatchdog()
	if err := s.markers.Connected(); err != nil {
		s.logger.WithError(err).Warn("Failed to write connected marker")
	}
	s.qr.Remove()

	s.logger.WithFields(logrus.Fields{
		LogFieldSession:  event.Session,
		LogFieldIdentity: s.masker.Address(identity),
	}).Info("Session ready, accepting receipts")
}

// scheduleReconnect restarts the session after the reconnect delay. Further
// disconnects are ignored while the restart is still pending.
func (s *SessionSupervisor) scheduleReconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.reconnecting {
		s.mu.Unlock()
		s.logger.Debug("Reconnect already scheduled")
		return
	}
	s.session.Reconnects++
	attempt := s.session.Reconnects
	if s.backoff.Exhausted(attempt) {
		s.mu.Unlock()
		s.logger.WithField(LogFieldReconnect, attempt).Error("Reconnect attempts exhausted; session stays disconnected")
		return
	}
	s.reconnecting = true
	ctx := s.runCtx
	s.wg.Add(1)
	s.mu.Unlock()

	go s.reconnect(ctx, attempt)
}

func (s *SessionSupervisor) reconnect(ctx context.Context, attempt int) {
	defer s.wg.Done()

	for {
		s.logger.WithFields(logrus.Fields{
			LogFieldReconnect: attempt,
			LogFieldRetryIn:   s.backoff.Delay(attempt).String(),
		}).Info("Scheduling session reconnect")

		if err := s.backoff.Wait(ctx, attempt); err != nil {
			s.clearReconnecting()
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
		err := s.client.RestartSession(callCtx)
		cancel()

		if err == nil {
			// A disconnect reported after this point needs its own restart
			s.clearReconnecting()
		}
		s.metrics.IncrementCounter(metrics.SessionReconnects, map[string]string{"ok": fmt.Sprint(err == nil)}, "Session restart attempts")
		if err == nil {
			s.logger.WithField(LogFieldReconnect, attempt).Info("Session restart requested")
			return
		}
		if ctx.Err() != nil {
			s.clearReconnecting()
			return
		}

		s.logger.WithError(err).WithField(LogFieldReconnect, attempt).Warn("Failed to restart session")

		s.mu.Lock()
		s.session.Reconnects++
		attempt = s.session.Reconnects
		if s.backoff.Exhausted(attempt) {
			s.reconnecting = false
			s.mu.Unlock()
			s.logger.WithField(LogFieldReconnect, attempt).Error("Reconnect attempts exhausted; session stays disconnected")
			return
		}
		s.mu.Unlock()
	}
}

func (s *SessionSupervisor) stopWatchdog() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watchdog != nil {
		s.watchdog.Stop()
	}
}

func (s *SessionSupervisor) clearReconnecting() {
	s.mu.Lock()
	s.reconnecting = false
	s.mu.Unlock()
}

// startQRRefresh fetches and renders the pairing code now and again while
// the session waits for a scan. The engine rotates codes without a new
// status event.
func (s *SessionSupervisor) startQRRefresh() {
	s.mu.Lock()
	if s.stopQR != nil || s.closed {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.runCtx)
	s.stopQR = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.QRRefreshInterval)
		defer ticker.Stop()

		for {
			s.refreshQR(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *SessionSupervisor) stopQRRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopQR != nil {
		s.stopQR()
		s.stopQR = nil
	}
}

func (s *SessionSupervisor) refreshQR(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	value, err := s.client.GetQRCode(callCtx)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			s.logger.WithError(err).Warn("Failed to fetch QR code")
		}
		return
	}

	s.mu.Lock()
	if ctx.Err() != nil || value == s.lastQR {
		s.mu.Unlock()
		return
	}
	s.lastQR = value
	s.mu.Unlock()

	s.qr.Render(value)
	if err := s.markers.QR(value); err != nil {
		s.logger.WithError(err).Warn("Failed to write QR marker")
	}
	s.logger.Info("New QR code issued; scan it with the phone to link the session")
}

func (s *SessionSupervisor) setState(state models.SessionState) {
	s.mu.Lock()
	if s.session.State == state {
		s.mu.Unlock()
		return
	}
	s.session.State = state
	s.session.UpdatedAt = time.Now()
	subscribers := append([]chan models.SessionState(nil), s.subscribers...)
	s.mu.Unlock()

	s.metrics.IncrementCounter(metrics.SessionState, map[string]string{"state": string(state)}, "Session state transitions")

	for _, ch := range subscribers {
		select {
		case ch <- state:
		default:
			s.logger.WithField(LogFieldState, state).Debug("State subscriber is full, dropping update")
		}
	}
}

// Subscribe returns a channel receiving every later state change. Slow
// subscribers miss updates rather than block the supervisor.
func (s *SessionSupervisor) Subscribe() <-chan models.SessionState {
	ch := make(chan models.SessionState, subscriberBuffer)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

// Ready reports whether the session can receive and reply
func (s *SessionSupervisor) Ready() bool {
	return s.State() == models.SessionStateReady
}

func (s *SessionSupervisor) State() models.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.State
}

// Identity is the connected account address, empty until ready
func (s *SessionSupervisor) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Identity
}

// Snapshot returns a copy of the session
func (s *SessionSupervisor) Snapshot() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Wait stops the watchdog and QR refresh, then waits for background work.
// No new background work is started afterwards. Pending reconnects end when
// the context given to Start is done.
func (s *SessionSupervisor) Wait() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stopWatchdog()
	s.stopQRRefresh()
	s.wg.Wait()
}
