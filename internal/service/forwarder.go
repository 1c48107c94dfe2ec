package service

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"receiptgate/internal/constants"
	apperrors "receiptgate/internal/errors"
	"receiptgate/internal/metrics"
	"receiptgate/internal/models"
	"receiptgate/internal/privacy"
	"receiptgate/internal/tracing"
	"receiptgate/pkg/extractor"
)

// isoMillis matches the ISO-8601 form the extraction service stores
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Forwarder submits queued receipts to the extraction service, once each,
// and tells the sender when their receipt could not be processed.
type Forwarder struct {
	extractor extractor.Client
	notifier  *Notifier
	timeout   time.Duration
	logger    *logrus.Logger
	errLogger *apperrors.Logger
	metrics   *metrics.Registry
	masker    privacy.Masker
}

func NewForwarder(client extractor.Client, notifier *Notifier, timeout time.Duration, logger *logrus.Logger, registry *metrics.Registry, masker privacy.Masker) *Forwarder {
	if timeout <= 0 {
		timeout = constants.DefaultForwardTimeoutSec * time.Second
	}
	return &Forwarder{
		extractor: client,
		notifier:  notifier,
		timeout:   timeout,
		logger:    logger,
		errLogger: apperrors.NewLogger(logger),
		metrics:   registry,
		masker:    masker,
	}
}

// Forward submits one item and classifies the outcome. It never returns an
// error: every failure ends in a log line and at most one reply.
func (f *Forwarder) Forward(ctx context.Context, item models.QueueItem) models.ForwardResult {
	ctx, span := tracing.StartSpan(ctx, "forwarder.forward",
		attribute.String("item_id", item.ID),
		attribute.String("mime_type", item.Attachment.MimeType),
		attribute.Int("size", item.Attachment.Size))
	defer span.End()

	fields := itemFields(f.masker, item)
	f.logger.WithFields(fields).Info("Forwarding receipt to extraction service")

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	start := time.Now()
	resp, err := f.extractor.ProcessReceipt(callCtx, buildReceiptRequest(item))
	cancel()

	result := models.ForwardResult{ItemID: item.ID, Duration: time.Since(start)}
	fields[LogFieldDuration] = result.Duration.Milliseconds()

	switch {
	case err != nil:
		f.handleFailure(ctx, item, err, fields, &result)
	case resp == nil:
		f.handleFailure(ctx, item, apperrors.New(apperrors.ErrCodeExtractorAPI, "empty response from extraction service"), fields, &result)
	case resp.Success:
		result.Outcome = models.ForwardSuccess
		result.Message = resp.Message
		entry := f.logger.WithFields(fields)
		if resp.Data != nil {
			result.Amount = resp.Data.MontoNumerico
			result.Issuer = resp.Data.EmisorNombre
			if result.Amount != nil {
				entry = entry.WithFields(logrus.Fields{
					LogFieldAmount:        *result.Amount,
					LogFieldAmountDisplay: humanize.FormatFloat("#.###,##", *result.Amount),
				})
			}
			if result.Issuer != "" {
				entry = entry.WithField(LogFieldIssuer, result.Issuer)
			}
		}
		entry.Info("Receipt processed")
		span.SetStatus(codes.Ok, "")
	default:
		result.Outcome = models.ForwardSoftFailure
		result.Message = resp.Message
		f.logger.WithFields(fields).WithField("service_message", resp.Message).
			Warn("Extraction service could not process receipt")
	}

	labels := map[string]string{"outcome": string(result.Outcome)}
	if result.Kind != models.FailureNone {
		labels["kind"] = string(result.Kind)
	}
	f.metrics.IncrementCounter(metrics.ForwardOutcomes, labels, "Forwarded receipts by outcome")
	f.metrics.RecordTimer(metrics.ForwardDuration, result.Duration, nil, "Extraction service latency")
	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))

	return result
}

func (f *Forwarder) handleFailure(ctx context.Context, item models.QueueItem, err error, fields logrus.Fields, result *models.ForwardResult) {
	tracing.RecordError(ctx, err)

	result.Outcome = models.ForwardHardFailure
	result.Err = err

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		result.Kind = models.FailureCancelled
		f.logger.WithFields(fields).Warn("Forward cancelled by shutdown; receipt was not processed")
		return
	}
	result.Kind = ClassifyFailure(err)

	var reply string
	switch result.Kind {
	case models.FailureUnreachable:
		f.errLogger.LogError(err, "Processing service unreachable", fields)
		reply = constants.ReplyServiceUnreachable
	case models.FailureTimeout:
		f.errLogger.LogError(err, "Processing service too slow", fields)
		reply = constants.ReplyServiceTimeout
	default:
		f.errLogger.LogError(err, "Failed to forward receipt", fields)
		reply = constants.ReplyGenericFailure
	}

	result.Replied = f.notifier.Notify(ctx, item.Event, reply)
}

// ClassifyFailure maps a forwarding error to the kind of notice the sender gets
func ClassifyFailure(err error) models.FailureKind {
	if appErr, ok := apperrors.AsAppError(err); ok {
		switch appErr.Code {
		case apperrors.ErrCodeExtractorUnreachable:
			return models.FailureUnreachable
		case apperrors.ErrCodeExtractorTimeout, apperrors.ErrCodeTimeout:
			return models.FailureTimeout
		default:
			return models.FailureOther
		}
	}

	// Errors that never went through the extractor client
	switch {
	case apperrors.IsConnectionRefused(err):
		return models.FailureUnreachable
	case apperrors.IsTimeout(err):
		return models.FailureTimeout
	default:
		return models.FailureOther
	}
}

func buildReceiptRequest(item models.QueueItem) extractor.ReceiptRequest {
	return extractor.ReceiptRequest{
		FileBase64:    item.Attachment.Data,
		SenderPhone:   item.Attachment.Sender,
		MimeType:      item.Attachment.MimeType,
		Timestamp:     item.Attachment.ReceivedAt.UTC().Format(isoMillis),
		TextoCompleto: item.Event.Body,
	}
}
