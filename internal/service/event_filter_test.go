package service

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"receiptgate/internal/constants"
	apperrors "receiptgate/internal/errors"
	"receiptgate/internal/metrics"
	"receiptgate/internal/models"
	"receiptgate/pkg/whatsapp/types"
)

const (
	ownAddress    = "5491199999999@c.us"
	senderAddress = "5491100000000@c.us"
)

func newTestFilter(client *mockWhatsAppClient, registry *metrics.Registry) *EventFilter {
	return NewEventFilter(client, staticIdentity(ownAddress), newTestNotifier(client, registry), quietLogger(), registry, testMasker())
}

func TestEventFilter_SilentDiscards(t *testing.T) {
	tests := []struct {
		name     string
		event    models.InboundEvent
		expected FilterDecision
	}{
		{
			name:     "sent by this account",
			event:    models.InboundEvent{Sender: senderAddress, FromMe: true, HasAttachment: true, Body: "hola"},
			expected: DecisionOwnMessage,
		},
		{
			name:     "sender is own identity",
			event:    models.InboundEvent{Sender: ownAddress, Body: "hola"},
			expected: DecisionOwnMessage,
		},
		{
			name:     "status broadcast",
			event:    models.InboundEvent{Sender: types.StatusBroadcast, HasAttachment: true},
			expected: DecisionBroadcast,
		},
		{
			name:     "broadcast list",
			event:    models.InboundEvent{Sender: "12345@broadcast", Body: "hola"},
			expected: DecisionBroadcast,
		},
		{
			name:     "group chat",
			event:    models.InboundEvent{Sender: "120363000000@g.us", Body: "hola"},
			expected: DecisionGroup,
		},
		{
			name:     "empty text",
			event:    models.InboundEvent{Sender: senderAddress, Body: "   "},
			expected: DecisionEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockClient()
			registry := metrics.NewRegistry()
			filter := newTestFilter(client, registry)

			// Same outcome on a second pass
			for i := 0; i < 2; i++ {
				decision, item := filter.Evaluate(context.Background(), tt.event)
				assert.Equal(t, tt.expected, decision)
				assert.Nil(t, item)
			}

			client.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			client.AssertNotCalled(t, "DownloadMedia", mock.Anything, mock.Anything)
			assert.Equal(t, float64(2), registry.CounterValue(metrics.FilterDecisions, map[string]string{"decision": string(tt.expected)}))
		})
	}
}

func TestEventFilter_TextOnlyGetsOneReply(t *testing.T) {
	client := newMockClient()
	client.On("SendText", mock.Anything, senderAddress, constants.ReplyReceiptsOnly, "msg-1").
		Return(&types.SendMessageResponse{MessageID: "r1"}, nil).Once()
	filter := newTestFilter(client, metrics.NewRegistry())

	decision, item := filter.Evaluate(context.Background(), models.InboundEvent{
		MessageID: "msg-1",
		Sender:    senderAddress,
		Body:      "hola",
	})

	assert.Equal(t, DecisionTextReplied, decision)
	assert.Nil(t, item)
	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "SendText", 1)
}

func TestEventFilter_TextReplyFailureIsSwallowed(t *testing.T) {
	client := newMockClient()
	client.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("engine down")).Once()
	registry := metrics.NewRegistry()
	filter := newTestFilter(client, registry)

	decision, item := filter.Evaluate(context.Background(), models.InboundEvent{Sender: senderAddress, Body: "hola"})

	assert.Equal(t, DecisionTextReplied, decision)
	assert.Nil(t, item)
	assert.Equal(t, float64(1), registry.CounterValue(metrics.ReplyFailures, nil))
}

func TestEventFilter_DownloadFailuresAreSilent(t *testing.T) {
	tests := []struct {
		name  string
		event models.InboundEvent
		setup func(*mockWhatsAppClient)
	}{
		{
			name:  "no media reference",
			event: models.InboundEvent{Sender: senderAddress, HasAttachment: true},
		},
		{
			name:  "download error",
			event: models.InboundEvent{Sender: senderAddress, HasAttachment: true, MediaURL: "http://waha/files/a.png"},
			setup: func(c *mockWhatsAppClient) {
				c.On("DownloadMedia", mock.Anything, "http://waha/files/a.png").Return(nil, "", errors.New("404")).Once()
			},
		},
		{
			name:  "empty payload",
			event: models.InboundEvent{Sender: senderAddress, HasAttachment: true, MediaURL: "http://waha/files/b.png"},
			setup: func(c *mockWhatsAppClient) {
				c.On("DownloadMedia", mock.Anything, "http://waha/files/b.png").Return([]byte{}, "image/png", nil).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockClient()
			if tt.setup != nil {
				tt.setup(client)
			}
			filter := newTestFilter(client, metrics.NewRegistry())

			decision, item := filter.Evaluate(context.Background(), tt.event)

			assert.Equal(t, DecisionDownloadFailed, decision)
			assert.Nil(t, item)
			client.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestEventFilter_DownloadErrorIsLoggedAsMediaError(t *testing.T) {
	client := newMockClient()
	client.On("DownloadMedia", mock.Anything, "http://waha/files/a.pdf").Return(nil, "", errors.New("status 404")).Once()
	logger, hook := capturingLogger()
	registry := metrics.NewRegistry()
	filter := NewEventFilter(client, staticIdentity(ownAddress), newTestNotifier(client, registry), logger, registry, testMasker())

	decision, _ := filter.Evaluate(context.Background(), models.InboundEvent{
		Sender:        senderAddress,
		HasAttachment: true,
		MediaURL:      "http://waha/files/a.pdf",
		MediaMimeType: "application/pdf",
	})

	assert.Equal(t, DecisionDownloadFailed, decision)
	entry := findEntry(hook, "Failed to download attachment")
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, apperrors.ErrCodeMediaDownload, entry.Data["error_code"])
	assert.Equal(t, "application/pdf", entry.Data["media_type"])
	assert.Equal(t, "download", entry.Data["operation"])
}

func TestEventFilter_MimeAllowList(t *testing.T) {
	tests := []struct {
		name        string
		advertised  string
		contentType string
		expected    FilterDecision
		mimeType    string
	}{
		{name: "pdf", advertised: "application/pdf", expected: DecisionEnqueued, mimeType: "application/pdf"},
		{name: "jpeg", advertised: "image/jpeg", expected: DecisionEnqueued, mimeType: "image/jpeg"},
		{name: "jpg", advertised: "image/jpg", expected: DecisionEnqueued, mimeType: "image/jpg"},
		{name: "png with parameters", advertised: "Image/PNG; charset=binary", expected: DecisionEnqueued, mimeType: "image/png"},
		{name: "falls back to content type", contentType: "image/png", expected: DecisionEnqueued, mimeType: "image/png"},
		{name: "audio", advertised: "audio/ogg; codecs=opus", expected: DecisionUnsupportedType},
		{name: "webp sticker", advertised: "image/webp", expected: DecisionUnsupportedType},
		{name: "unknown type", expected: DecisionUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockClient()
			client.On("DownloadMedia", mock.Anything, "http://waha/files/x").
				Return([]byte("payload"), tt.contentType, nil).Once()
			filter := newTestFilter(client, metrics.NewRegistry())

			receivedAt := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
			decision, item := filter.Evaluate(context.Background(), models.InboundEvent{
				MessageID:     "msg-x",
				Sender:        senderAddress,
				HasAttachment: true,
				Body:          "transferencia",
				MediaURL:      "http://waha/files/x",
				MediaMimeType: tt.advertised,
				MediaFilename: "comprobante",
				ReceivedAt:    receivedAt,
			})

			assert.Equal(t, tt.expected, decision)
			client.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			if tt.expected != DecisionEnqueued {
				assert.Nil(t, item)
				return
			}

			require.NotNil(t, item)
			assert.NotEmpty(t, item.ID)
			assert.Equal(t, tt.mimeType, item.Attachment.MimeType)
			assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("payload")), item.Attachment.Data)
			assert.Equal(t, len("payload"), item.Attachment.Size)
			assert.Equal(t, senderAddress, item.Attachment.Sender)
			assert.Equal(t, "comprobante", item.Attachment.Filename)
			assert.Equal(t, receivedAt, item.Attachment.ReceivedAt)
			assert.Equal(t, "msg-x", item.Event.MessageID)
		})
	}
}

func TestEventFilter_NoIdentityYet(t *testing.T) {
	client := newMockClient()
	client.expectReplies()
	filter := NewEventFilter(client, staticIdentity(""), newTestNotifier(client, metrics.NewRegistry()), quietLogger(), metrics.NewRegistry(), testMasker())

	decision, _ := filter.Evaluate(context.Background(), models.InboundEvent{Sender: senderAddress, Body: "hola"})
	assert.Equal(t, DecisionTextReplied, decision)
}

func TestInboundFromPayload(t *testing.T) {
	msg := &types.MessagePayload{
		ID:        "false_5491100000000@c.us_ABC",
		Timestamp: 1709296245,
		From:      senderAddress,
		Body:      "pago",
		HasMedia:  true,
		Media: &types.MediaInfo{
			URL:      "http://waha/api/files/abc.pdf",
			Mimetype: "application/pdf",
			Filename: "recibo.pdf",
		},
	}

	event := InboundFromPayload(msg)

	assert.Equal(t, msg.ID, event.MessageID)
	assert.Equal(t, senderAddress, event.Sender)
	assert.False(t, event.FromMe)
	assert.True(t, event.HasAttachment)
	assert.Equal(t, "pago", event.Body)
	assert.Equal(t, "http://waha/api/files/abc.pdf", event.MediaURL)
	assert.Equal(t, "application/pdf", event.MediaMimeType)
	assert.Equal(t, "recibo.pdf", event.MediaFilename)
	assert.Equal(t, time.Unix(1709296245, 0), event.ReceivedAt)

	plain := InboundFromPayload(&types.MessagePayload{From: senderAddress, Body: "hola"})
	assert.Empty(t, plain.MediaURL)
	assert.False(t, plain.HasAttachment)
}

func TestNormalizeMimeType(t *testing.T) {
	assert.Equal(t, "", normalizeMimeType(""))
	assert.Equal(t, "image/jpeg", normalizeMimeType(" IMAGE/JPEG "))
	assert.Equal(t, "application/pdf", normalizeMimeType("application/pdf; name=\"a.pdf\""))
	assert.Equal(t, "image/png", normalizeMimeType("image/png;;broken"))
}
