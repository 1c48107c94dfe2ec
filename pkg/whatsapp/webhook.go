package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"receiptgate/pkg/whatsapp/types"
)

var (
	// ErrMailboxClosed is returned when publishing to a closed Mailbox
	ErrMailboxClosed = errors.New("event mailbox closed")
	// ErrUnhandledEvent is returned for envelope types nobody subscribed to
	ErrUnhandledEvent = errors.New("no handler registered for event type")
)

// Mailbox is the single ordered channel every event transport publishes to.
// Publish blocks while the mailbox is full so delivery order is kept.
type Mailbox struct {
	events chan types.Event
	done   chan struct{}
	closed atomic.Bool
}

// NewMailbox creates a mailbox buffering up to size events
func NewMailbox(size int) *Mailbox {
	if size < 1 {
		size = 1
	}
	return &Mailbox{
		events: make(chan types.Event, size),
		done:   make(chan struct{}),
	}
}

func (m *Mailbox) Publish(ctx context.Context, event types.Event) error {
	if m.closed.Load() {
		return ErrMailboxClosed
	}
	select {
	case m.events <- event:
		return nil
	case <-m.done:
		return ErrMailboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the receive side of the mailbox
func (m *Mailbox) Events() <-chan types.Event {
	return m.events
}

// Done is closed once the mailbox is closed
func (m *Mailbox) Done() <-chan struct{} {
	return m.done
}

func (m *Mailbox) Close() {
	if m.closed.CompareAndSwap(false, true) {
		close(m.done)
	}
}

// WebhookHandler turns WAHA envelopes into typed events on a mailbox. It
// serves both the webhook endpoint and the websocket stream.
type WebhookHandler struct {
	handlers map[string]func(context.Context, *types.WebhookEvent) error
	mu       sync.RWMutex
	mailbox  *Mailbox
}

// NewWebhookHandler creates a handler with session.status and message
// translation registered
func NewWebhookHandler(mailbox *Mailbox) *WebhookHandler {
	wh := &WebhookHandler{
		handlers: make(map[string]func(context.Context, *types.WebhookEvent) error),
		mailbox:  mailbox,
	}
	wh.RegisterEventHandler(types.EventSessionStatus, wh.handleSessionStatus)
	wh.RegisterEventHandler(types.EventMessage, wh.handleMessage)
	return wh
}

func (wh *WebhookHandler) Handle(ctx context.Context, event *types.WebhookEvent) error {
	wh.mu.RLock()
	handler, exists := wh.handlers[event.Event]
	wh.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrUnhandledEvent, event.Event)
	}

	return handler(ctx, event)
}

// HandleRaw decodes a raw envelope and handles it
func (wh *WebhookHandler) HandleRaw(ctx context.Context, data []byte) error {
	var event types.WebhookEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to unmarshal webhook event: %w", err)
	}
	return wh.Handle(ctx, &event)
}

func (wh *WebhookHandler) RegisterEventHandler(eventType string, handler func(context.Context, *types.WebhookEvent) error) {
	wh.mu.Lock()
	defer wh.mu.Unlock()

	wh.handlers[eventType] = handler
}

func (wh *WebhookHandler) handleSessionStatus(ctx context.Context, event *types.WebhookEvent) error {
	var payload types.SessionStatusPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal session status payload: %w", err)
	}
	if payload.Status == "" {
		return fmt.Errorf("session status payload without status")
	}

	for _, ev := range types.TranslateStatus(event.Session, payload.Status, event.Me) {
		if err := wh.mailbox.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (wh *WebhookHandler) handleMessage(ctx context.Context, event *types.WebhookEvent) error {
	var msg types.MessagePayload
	if err := json.Unmarshal(event.Payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal message payload: %w", err)
	}

	return wh.mailbox.Publish(ctx, types.Event{
		Kind:    types.EventKindMessage,
		Session: event.Session,
		Me:      event.Me,
		Message: &msg,
	})
}
