package types

import (
	"encoding/json"
	"strings"
	"time"
)

// SessionStatus represents the current state of a WAHA session
type SessionStatus string

const (
	SessionStatusStopped    SessionStatus = "STOPPED"
	SessionStatusStarting   SessionStatus = "STARTING"
	SessionStatusScanQRCode SessionStatus = "SCAN_QR_CODE"
	SessionStatusWorking    SessionStatus = "WORKING"
	SessionStatusFailed     SessionStatus = "FAILED"
)

// Session represents a WAHA session as returned by /api/sessions/{name}
type Session struct {
	Name   string        `json:"name"`
	Status SessionStatus `json:"status"`
	Me     *Me           `json:"me,omitempty"`
}

// Me identifies the account a session is logged in as
type Me struct {
	ID       string `json:"id"`
	PushName string `json:"pushName,omitempty"`
}

// WebhookEvent is the envelope WAHA uses for both webhooks and the websocket stream
type WebhookEvent struct {
	ID        string          `json:"id,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Event     string          `json:"event"`
	Session   string          `json:"session"`
	Me        *Me             `json:"me,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// SessionStatusPayload is the payload of a session.status event
type SessionStatusPayload struct {
	Status SessionStatus `json:"status"`
}

// MediaInfo describes the attachment carried by a message
type MediaInfo struct {
	URL      string `json:"url"`
	Mimetype string `json:"mimetype"`
	Filename string `json:"filename,omitempty"`
	Error    any    `json:"error,omitempty"`
}

// MessagePayload is the payload of a message event
type MessagePayload struct {
	ID        string     `json:"id"`
	Timestamp int64      `json:"timestamp"`
	From      string     `json:"from"`
	FromMe    bool       `json:"fromMe"`
	To        string     `json:"to,omitempty"`
	Body      string     `json:"body"`
	HasMedia  bool       `json:"hasMedia"`
	Media     *MediaInfo `json:"media,omitempty"`
}

// IsGroupMessage returns true if the message comes from a group chat
func (m *MessagePayload) IsGroupMessage() bool {
	return strings.HasSuffix(m.From, GroupSuffix)
}

// IsBroadcast returns true for status updates and broadcast lists
func (m *MessagePayload) IsBroadcast() bool {
	return m.From == StatusBroadcast || strings.HasSuffix(m.From, BroadcastSuffix)
}

// ReceivedAt converts the unix timestamp WAHA sends into a time.Time
func (m *MessagePayload) ReceivedAt() time.Time {
	if m.Timestamp <= 0 {
		return time.Now()
	}
	return time.Unix(m.Timestamp, 0)
}

// QRCode is the raw QR value returned by /api/{session}/auth/qr?format=raw
type QRCode struct {
	Value string `json:"value"`
}

// SendTextRequest is the body for /api/sendText
type SendTextRequest struct {
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
	Session string `json:"session"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// SendMessageResponse represents the response from send message operations
type SendMessageResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// WAHAMessageResponse represents the actual WAHA API response format
type WAHAMessageResponse struct {
	ID *struct {
		FromMe     bool   `json:"fromMe"`
		Remote     string `json:"remote"`
		ID         string `json:"id"`
		Serialized string `json:"_serialized"`
	} `json:"id"`
}

// WAHAErrorResponse represents error responses from WAHA API
type WAHAErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// WebhookConfig registers a webhook on session creation
type WebhookConfig struct {
	URL    string       `json:"url"`
	Events []string     `json:"events"`
	HMAC   *WebhookHMAC `json:"hmac,omitempty"`
}

// WebhookHMAC holds the shared key WAHA signs webhook bodies with
type WebhookHMAC struct {
	Key string `json:"key"`
}

// SessionConfig is the config block sent when starting a session
type SessionConfig struct {
	Webhooks []WebhookConfig   `json:"webhooks,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// StartSessionRequest is the body for POST /api/sessions
type StartSessionRequest struct {
	Name   string         `json:"name"`
	Start  bool           `json:"start"`
	Config *SessionConfig `json:"config,omitempty"`
}

// ClientConfig represents the configuration for the WAHA client
type ClientConfig struct {
	BaseURL     string        `json:"base_url"`
	APIKey      string        `json:"api_key"`
	SessionName string        `json:"session_name"`
	Timeout     time.Duration `json:"timeout"`
	// SessionConfig is sent when the session has to be created
	SessionConfig *SessionConfig `json:"session_config,omitempty"`
}
