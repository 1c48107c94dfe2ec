package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"

	"receiptgate/pkg/whatsapp/types"
)

const (
	defaultStreamRetryDelay = 5 * time.Second
	streamReadLimit         = 1 << 20
)

// EventStream subscribes to the WAHA websocket event feed and hands every
// envelope to a WebhookHandler, reconnecting until its context ends.
type EventStream struct {
	baseURL     string
	apiKey      string
	sessionName string
	handler     *WebhookHandler
	retryDelay  time.Duration
	logger      *logrus.Logger
}

// NewEventStream creates a stream for the session in config
func NewEventStream(config types.ClientConfig, handler *WebhookHandler, retryDelay time.Duration, logger *logrus.Logger) *EventStream {
	if retryDelay <= 0 {
		retryDelay = defaultStreamRetryDelay
	}
	return &EventStream{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		apiKey:      config.APIKey,
		sessionName: config.SessionName,
		handler:     handler,
		retryDelay:  retryDelay,
		logger:      logger,
	}
}

// Run keeps the subscription alive and returns ctx.Err() once ctx is done
func (s *EventStream) Run(ctx context.Context) error {
	for {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrMailboxClosed) {
			return err
		}

		s.logger.WithError(err).WithField("retry_in", s.retryDelay.String()).Warn("Event stream disconnected")

		timer := time.NewTimer(s.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *EventStream) consume(ctx context.Context) error {
	streamURL, err := s.streamURL()
	if err != nil {
		return err
	}

	header := http.Header{}
	if s.apiKey != "" {
		header.Set(types.HeaderAPIKey, s.apiKey)
	}

	conn, _, err := websocket.Dial(ctx, streamURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(streamReadLimit)

	s.logger.WithField("session", s.sessionName).Info("Subscribed to engine event stream")

	for {
		var event types.WebhookEvent
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if event.Session != "" && event.Session != s.sessionName {
			continue
		}

		if err := s.handler.Handle(ctx, &event); err != nil {
			if errors.Is(err, ErrUnhandledEvent) {
				s.logger.WithField("event", event.Event).Debug("Ignoring engine event")
				continue
			}
			if errors.Is(err, ErrMailboxClosed) || ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "shutting down")
				return err
			}
			s.logger.WithError(err).WithField("event", event.Event).Warn("Failed to handle engine event")
		}
	}
}

func (s *EventStream) streamURL() (string, error) {
	u, err := url.Parse(s.baseURL + types.EndpointEventsWS)
	if err != nil {
		return "", fmt.Errorf("invalid engine base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}

	q := u.Query()
	q.Set("session", s.sessionName)
	q.Add("events", types.EventSessionStatus)
	q.Add("events", types.EventMessage)
	if s.apiKey != "" {
		q.Set("x-api-key", s.apiKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
