package models

import (
	"time"

	"github.com/google/uuid"
)

// InboundEvent is a message notification as the filter sees it
type InboundEvent struct {
	MessageID     string    `json:"message_id"`
	Sender        string    `json:"sender"`
	FromMe        bool      `json:"from_me"`
	HasAttachment bool      `json:"has_attachment"`
	Body          string    `json:"body"`
	MediaURL      string    `json:"media_url,omitempty"`
	MediaMimeType string    `json:"media_mime_type,omitempty"`
	MediaFilename string    `json:"media_filename,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Attachment is a downloaded payload ready for forwarding
type Attachment struct {
	Data       string    `json:"data"`
	MimeType   string    `json:"mime_type"`
	Filename   string    `json:"filename,omitempty"`
	Sender     string    `json:"sender"`
	ReceivedAt time.Time `json:"received_at"`
	Size       int       `json:"size"`
}

// QueueItem is one accepted receipt waiting to be forwarded
type QueueItem struct {
	ID         string       `json:"id"`
	Attachment Attachment   `json:"attachment"`
	Event      InboundEvent `json:"event"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

// NewQueueItem wraps an attachment and its originating event
func NewQueueItem(attachment Attachment, event InboundEvent) QueueItem {
	return QueueItem{
		ID:         uuid.NewString(),
		Attachment: attachment,
		Event:      event,
		EnqueuedAt: time.Now(),
	}
}

// ForwardOutcome is how the extraction service handled an item
type ForwardOutcome string

const (
	ForwardSuccess     ForwardOutcome = "success"
	ForwardSoftFailure ForwardOutcome = "soft_failure"
	ForwardHardFailure ForwardOutcome = "hard_failure"
)

// FailureKind classifies a hard failure
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureUnreachable FailureKind = "unreachable"
	FailureTimeout     FailureKind = "timeout"
	FailureOther       FailureKind = "other"
	// FailureCancelled means shutdown cut the forward short
	FailureCancelled FailureKind = "cancelled"
)

// ForwardResult is the classified result of one forward attempt
type ForwardResult struct {
	ItemID   string         `json:"item_id"`
	Outcome  ForwardOutcome `json:"outcome"`
	Kind     FailureKind    `json:"kind,omitempty"`
	Amount   *float64       `json:"amount,omitempty"`
	Issuer   string         `json:"issuer,omitempty"`
	Message  string         `json:"message,omitempty"`
	Err      error          `json:"-"`
	Replied  bool           `json:"replied"`
	Duration time.Duration  `json:"duration"`
}
