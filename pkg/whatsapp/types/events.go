package types

// EventKind classifies an engine event after translation from the WAHA envelope
type EventKind string

const (
	EventKindStateChange   EventKind = "change_state"
	EventKindLoading       EventKind = "loading_screen"
	EventKindQR            EventKind = "qr"
	EventKindAuthenticated EventKind = "authenticated"
	EventKindAuthFailure   EventKind = "auth_failure"
	EventKindReady         EventKind = "ready"
	EventKindDisconnected  EventKind = "disconnected"
	EventKindMessage       EventKind = "message"
)

// Event is a typed engine event as published on the mailbox
type Event struct {
	Kind    EventKind
	Session string
	Status  SessionStatus
	Me      *Me
	Message *MessagePayload
}

// IsLifecycle reports whether the event concerns the session rather than a message
func (e Event) IsLifecycle() bool {
	return e.Kind != EventKindMessage
}

// TranslateStatus expands one session.status value into the lifecycle events
// it implies. Every status first produces a change_state event.
func TranslateStatus(session string, status SessionStatus, me *Me) []Event {
	base := Event{Session: session, Status: status, Me: me}
	events := []Event{withKind(base, EventKindStateChange)}

	switch status {
	case SessionStatusStarting:
		events = append(events, withKind(base, EventKindLoading))
	case SessionStatusScanQRCode:
		events = append(events, withKind(base, EventKindQR))
	case SessionStatusWorking:
		events = append(events, withKind(base, EventKindAuthenticated), withKind(base, EventKindReady))
	case SessionStatusFailed:
		events = append(events, withKind(base, EventKindAuthFailure))
	case SessionStatusStopped:
		events = append(events, withKind(base, EventKindDisconnected))
	}
	return events
}

func withKind(e Event, kind EventKind) Event {
	e.Kind = kind
	return e
}
