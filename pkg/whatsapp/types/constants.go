package types

const (
	APIBase           = "/api"
	EndpointSendText  = "/sendText"
	EndpointSessions  = "/sessions"
	EndpointAuthQR    = "/auth/qr"
	EndpointMe        = "/me"
	EndpointRestart   = "/restart"
	EndpointStart     = "/start"
	EndpointEventsWS  = "/ws"
	HeaderAPIKey      = "X-Api-Key"
	HeaderWebhookHMAC = "X-Webhook-Hmac"
)

// Event names emitted by WAHA
const (
	EventSessionStatus = "session.status"
	EventMessage       = "message"
)

// Chat address suffixes
const (
	ContactSuffix   = "@c.us"
	GroupSuffix     = "@g.us"
	BroadcastSuffix = "@broadcast"
	StatusBroadcast = "status@broadcast"
)
