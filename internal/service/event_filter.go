package service

import (
	"context"
	"encoding/base64"
	"mime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"receiptgate/internal/constants"
	apperrors "receiptgate/internal/errors"
	"receiptgate/internal/metrics"
	"receiptgate/internal/models"
	"receiptgate/internal/privacy"
	"receiptgate/internal/tracing"
	"receiptgate/pkg/whatsapp/types"
)

// FilterDecision records why an inbound message was kept or dropped
type FilterDecision string

const (
	DecisionEnqueued        FilterDecision = "enqueued"
	DecisionOwnMessage      FilterDecision = "own_message"
	DecisionBroadcast       FilterDecision = "broadcast"
	DecisionGroup           FilterDecision = "group"
	DecisionTextReplied     FilterDecision = "text_only_replied"
	DecisionEmpty           FilterDecision = "empty_message"
	DecisionDownloadFailed  FilterDecision = "download_failed"
	DecisionUnsupportedType FilterDecision = "unsupported_mime_type"
)

// IdentityProvider exposes the address of the connected account
type IdentityProvider interface {
	Identity() string
}

// EventFilter classifies inbound messages and fetches attachments for the
// ones worth forwarding.
type EventFilter struct {
	client    types.WAClient
	identity  IdentityProvider
	notifier  *Notifier
	logger    *logrus.Logger
	errLogger *apperrors.Logger
	metrics   *metrics.Registry
	masker    privacy.Masker
}

func NewEventFilter(client types.WAClient, identity IdentityProvider, notifier *Notifier, logger *logrus.Logger, registry *metrics.Registry, masker privacy.Masker) *EventFilter {
	return &EventFilter{
		client:    client,
		identity:  identity,
		notifier:  notifier,
		logger:    logger,
		errLogger: apperrors.NewLogger(logger),
		metrics:   registry,
		masker:    masker,
	}
}

// Evaluate applies the filter rules in order. A QueueItem is returned only
// for DecisionEnqueued.
func (f *EventFilter) Evaluate(ctx context.Context, event models.InboundEvent) (FilterDecision, *models.QueueItem) {
	ctx, span := tracing.StartSpan(ctx, "filter.evaluate",
		attribute.Bool("has_attachment", event.HasAttachment))
	defer span.End()

	decision, item := f.evaluate(ctx, event)

	span.SetAttributes(attribute.String("decision", string(decision)))
	f.metrics.IncrementCounter(metrics.FilterDecisions, map[string]string{"decision": string(decision)}, "Inbound messages by filter decision")
	return decision, item
}

func (f *EventFilter) evaluate(ctx context.Context, event models.InboundEvent) (FilterDecision, *models.QueueItem) {
	fields := eventFields(f.masker, event)

	if f.isOwnMessage(event) {
		f.logger.WithFields(fields).Debug("Skipping message: sent by this account")
		return DecisionOwnMessage, nil
	}
	if isBroadcastAddress(event.Sender) {
		f.logger.WithFields(fields).Debug("Skipping message: broadcast or status update")
		return DecisionBroadcast, nil
	}
	if strings.HasSuffix(event.Sender, types.GroupSuffix) {
		f.logger.WithFields(fields).Debug("Skipping message: group chat")
		return DecisionGroup, nil
	}

	if !event.HasAttachment {
		if strings.TrimSpace(event.Body) == "" {
			f.logger.WithFields(fields).Debug("Skipping message: empty")
			return DecisionEmpty, nil
		}
		f.logger.WithFields(fields).Info("Text-only message, replying that only receipts are accepted")
		f.notifier.Notify(ctx, event, constants.ReplyReceiptsOnly)
		return DecisionTextReplied, nil
	}

	attachment, ok := f.fetchAttachment(ctx, event, fields)
	if !ok {
		return DecisionDownloadFailed, nil
	}

	if !constants.IsAllowedReceiptType(attachment.MimeType) {
		f.logger.WithFields(fields).WithField(LogFieldMimeType, attachment.MimeType).
			Info("Skipping attachment: not an image or PDF")
		return DecisionUnsupportedType, nil
	}

	item := models.NewQueueItem(attachment, event)
	f.logger.WithFields(itemFields(f.masker, item)).Info("Receipt accepted")
	return DecisionEnqueued, &item
}

// fetchAttachment downloads the media. Failures stay silent to the sender.
func (f *EventFilter) fetchAttachment(ctx context.Context, event models.InboundEvent, fields logrus.Fields) (models.Attachment, bool) {
	if event.MediaURL == "" {
		f.logger.WithFields(fields).Warn("Attachment has no download reference")
		return models.Attachment{}, false
	}

	data, contentType, err := f.client.DownloadMedia(ctx, event.MediaURL)
	if err != nil {
		mediaErr := apperrors.NewMediaError("download", event.MediaMimeType, err)
		tracing.RecordError(ctx, mediaErr)
		f.errLogger.LogWarn(mediaErr, "Failed to download attachment", fields)
		return models.Attachment{}, false
	}
	if len(data) == 0 {
		f.logger.WithFields(fields).Warn("Downloaded attachment is empty")
		return models.Attachment{}, false
	}

	mimeType := normalizeMimeType(event.MediaMimeType)
	if mimeType == "" {
		mimeType = normalizeMimeType(contentType)
	}

	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	f.logger.WithFields(fields).WithFields(logrus.Fields{
		LogFieldMimeType: mimeType,
		LogFieldSize:     humanize.Bytes(uint64(len(data))),
	}).Debug("Attachment downloaded")

	return models.Attachment{
		Data:       base64.StdEncoding.EncodeToString(data),
		MimeType:   mimeType,
		Filename:   event.MediaFilename,
		Sender:     event.Sender,
		ReceivedAt: receivedAt,
		Size:       len(data),
	}, true
}

func (f *EventFilter) isOwnMessage(event models.InboundEvent) bool {
	if event.FromMe {
		return true
	}
	if f.identity == nil {
		return false
	}
	own := f.identity.Identity()
	return own != "" && strings.EqualFold(own, event.Sender)
}

func isBroadcastAddress(address string) bool {
	return address == types.StatusBroadcast || strings.HasSuffix(address, types.BroadcastSuffix)
}

// normalizeMimeType lowercases a media type and drops its parameters
func normalizeMimeType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(raw); err == nil {
		return mediaType
	}
	if i := strings.Index(raw, ";"); i >= 0 {
		raw = raw[:i]
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// InboundFromPayload converts an engine message into the filter's view of it
func InboundFromPayload(msg *types.MessagePayload) models.InboundEvent {
	event := models.InboundEvent{
		MessageID:     msg.ID,
		Sender:        msg.From,
		FromMe:        msg.FromMe,
		HasAttachment: msg.HasMedia,
		Body:          msg.Body,
		ReceivedAt:    msg.ReceivedAt(),
	}
	if msg.Media != nil {
		event.MediaURL = msg.Media.URL
		event.MediaMimeType = msg.Media.Mimetype
		event.MediaFilename = msg.Media.Filename
	}
	return event
}
