package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"receiptgate/internal/metrics"
	"receiptgate/internal/models"
	"receiptgate/internal/privacy"
	"receiptgate/pkg/whatsapp/types"
)

// Notifier sends best-effort replies to the sender of an inbound message.
// A failed reply is logged and counted, never returned.
type Notifier struct {
	client  types.WAClient
	logger  *logrus.Logger
	metrics *metrics.Registry
	masker  privacy.Masker
}

func NewNotifier(client types.WAClient, logger *logrus.Logger, registry *metrics.Registry, masker privacy.Masker) *Notifier {
	return &Notifier{client: client, logger: logger, metrics: registry, masker: masker}
}

// Notify replies to event with text, quoting the original message. It
// reports whether the engine accepted the reply.
func (n *Notifier) Notify(ctx context.Context, event models.InboundEvent, text string) bool {
	fields := eventFields(n.masker, event)

	if _, err := n.client.SendText(ctx, event.Sender, text, event.MessageID); err != nil {
		n.logger.WithError(err).WithFields(fields).Warn("Failed to send reply")
		n.metrics.IncrementCounter(metrics.ReplyFailures, nil, "Replies the engine rejected")
		return false
	}

	n.logger.WithFields(fields).Debug("Reply sent")
	n.metrics.IncrementCounter(metrics.RepliesSent, nil, "Replies sent to senders")
	return true
}
