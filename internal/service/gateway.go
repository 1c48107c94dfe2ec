package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"receiptgate/internal/metrics"
	"receiptgate/internal/models"
	"receiptgate/internal/privacy"
	"receiptgate/internal/retry"
	"receiptgate/pkg/extractor"
	"receiptgate/pkg/whatsapp"
	"receiptgate/pkg/whatsapp/types"
)

// GatewayOptions wires a Gateway to its collaborators
type GatewayOptions struct {
	Client    types.WAClient
	Extractor extractor.Client
	Mailbox   *whatsapp.Mailbox
	Logger    *logrus.Logger
	Metrics   *metrics.Registry

	// Markers receives the machine-parsable lines, Terminal the QR drawing
	Markers  io.Writer
	Terminal io.Writer
	QRPath   string

	QueueDelay      time.Duration
	ForwardTimeout  time.Duration
	StartupWatchdog time.Duration
	Reconnect       retry.BackoffConfig
	Verbose         bool
}

// Health is the gateway state reported on /health
type Health struct {
	Session    string              `json:"session"`
	State      models.SessionState `json:"state"`
	Identity   string              `json:"identity,omitempty"`
	Reconnects int                 `json:"reconnects"`
	QueueDepth int                 `json:"queue_depth"`
	Draining   bool                `json:"draining"`
	ReadyAt    *time.Time          `json:"ready_at,omitempty"`
}

// Gateway ties the session supervisor, event filter and ingestion queue to
// one event mailbox. Events are consumed by a single loop in delivery order.
type Gateway struct {
	client     types.WAClient
	mailbox    *whatsapp.Mailbox
	logger     *logrus.Logger
	metrics    *metrics.Registry
	masker     privacy.Masker
	verbose    bool
	supervisor *SessionSupervisor
	filter     *EventFilter
	queue      *IngestionQueue
}

func NewGateway(opts GatewayOptions) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	registry := opts.Metrics
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	masker := privacy.NewMasker(opts.Verbose)

	notifier := NewNotifier(opts.Client, logger, registry, masker)
	supervisor := NewSessionSupervisor(opts.Client, SupervisorConfig{
		Reconnect:       opts.Reconnect,
		StartupWatchdog: opts.StartupWatchdog,
	}, NewQRRenderer(opts.Terminal, opts.QRPath, logger), NewMarkerWriter(opts.Markers), logger, registry, masker)
	forwarder := NewForwarder(opts.Extractor, notifier, opts.ForwardTimeout, logger, registry, masker)

	return &Gateway{
		client:     opts.Client,
		mailbox:    opts.Mailbox,
		logger:     logger,
		metrics:    registry,
		masker:     masker,
		verbose:    opts.Verbose,
		supervisor: supervisor,
		filter:     NewEventFilter(opts.Client, supervisor, notifier, logger, registry, masker),
		queue:      NewIngestionQueue(forwarder, opts.QueueDelay, logger, registry, masker),
	}
}

// Supervisor exposes the session supervisor for state subscriptions
func (g *Gateway) Supervisor() *SessionSupervisor {
	return g.supervisor
}

// Queue exposes the ingestion queue
func (g *Gateway) Queue() *IngestionQueue {
	return g.queue
}

// Run starts the session and consumes events until ctx is done or the
// mailbox is closed. Only a failure to start the session is returned.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.supervisor.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-g.mailbox.Done():
			return nil
		case event, ok := <-g.mailbox.Events():
			if !ok {
				return nil
			}
			g.dispatch(ctx, event)
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, event types.Event) {
	if own := g.client.GetSessionName(); event.Session != "" && event.Session != own {
		g.logger.WithField(LogFieldSession, event.Session).Debug("Ignoring event for another session")
		return
	}

	if event.IsLifecycle() {
		g.supervisor.HandleEvent(ctx, event)
		return
	}
	if event.Message == nil {
		return
	}

	inbound := InboundFromPayload(event.Message)
	g.logger.WithFields(eventFields(g.masker, inbound)).WithFields(logrus.Fields{
		"body":           SanitizeContent(inbound.Body, g.verbose),
		"has_media":      inbound.HasAttachment,
		LogFieldMimeType: inbound.MediaMimeType,
	}).Debug("Message received")

	decision, item := g.filter.Evaluate(ctx, inbound)
	if decision != DecisionEnqueued || item == nil {
		return
	}
	if err := g.queue.Enqueue(*item); err != nil {
		if errors.Is(err, ErrQueueStopped) {
			g.logger.WithFields(itemFields(g.masker, *item)).Warn("Receipt arrived during shutdown and was dropped")
			return
		}
		g.logger.WithError(err).Error("Failed to queue receipt")
	}
}

// Shutdown stops intake, lets the in-flight forward finish until ctx ends
// and waits for session background work. It returns the number of queued
// receipts that were never forwarded.
func (g *Gateway) Shutdown(ctx context.Context) int {
	if g.mailbox != nil {
		g.mailbox.Close()
	}
	dropped := g.queue.Stop(ctx)

	waited := make(chan struct{})
	go func() {
		g.supervisor.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		g.logger.Warn("Session supervisor did not stop before the shutdown deadline")
	}
	return dropped
}

// Health reports session and queue state
func (g *Gateway) Health() Health {
	session := g.supervisor.Snapshot()
	return Health{
		Session:    session.Name,
		State:      session.State,
		Identity:   g.masker.Address(session.Identity),
		Reconnects: session.Reconnects,
		QueueDepth: g.queue.Len(),
		Draining:   g.queue.Draining(),
		ReadyAt:    session.ReadyAt,
	}
}
