package models

import "time"

// SessionState is the supervisor's view of the messaging session
type SessionState string

const (
	SessionStateUnauthenticated SessionState = "unauthenticated"
	SessionStateAwaitingScan    SessionState = "awaiting_scan"
	SessionStateAuthenticated   SessionState = "authenticated"
	SessionStateReady           SessionState = "ready"
	SessionStateDisconnected    SessionState = "disconnected"
	SessionStateAuthFailed      SessionState = "auth_failed"
)

// Session is the single live session owned by the gateway
type Session struct {
	Name       string       `json:"name"`
	State      SessionState `json:"state"`
	Identity   string       `json:"identity,omitempty"`
	PushName   string       `json:"push_name,omitempty"`
	Reconnects int          `json:"reconnects"`
	ReadyAt    *time.Time   `json:"ready_at,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// IsReady reports whether the session can send and receive
func (s Session) IsReady() bool {
	return s.State == SessionStateReady
}
