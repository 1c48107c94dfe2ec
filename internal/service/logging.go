package service

import (
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"receiptgate/internal/models"
	"receiptgate/internal/privacy"
)

// SanitizeContent hides message bodies unless verbose logging is on
func SanitizeContent(content string, verbose bool) string {
	if content == "" || verbose {
		return content
	}
	return "[hidden]"
}

// eventFields are the standard fields logged for an inbound message
func eventFields(masker privacy.Masker, event models.InboundEvent) logrus.Fields {
	return logrus.Fields{
		LogFieldMessageID: masker.MessageID(event.MessageID),
		LogFieldSender:    masker.Address(event.Sender),
	}
}

// itemFields are the standard fields logged for a queued receipt
func itemFields(masker privacy.Masker, item models.QueueItem) logrus.Fields {
	return logrus.Fields{
		LogFieldItemID:    item.ID,
		LogFieldMessageID: masker.MessageID(item.Event.MessageID),
		LogFieldSender:    masker.Address(item.Attachment.Sender),
		LogFieldMimeType:  item.Attachment.MimeType,
		LogFieldSize:      humanize.Bytes(uint64(item.Attachment.Size)),
	}
}
