package constants

// Default server and engine values
const (
	DefaultServerPort          = 8082
	DefaultExtractorURL        = "http://localhost:8000"
	DefaultWhatsAppAPIURL      = "http://localhost:3000"
	DefaultWhatsAppSession     = "default"
	DefaultWhatsAppTimeoutSec  = 30
	DefaultEventsMode          = EventsModeWebsocket
	DefaultMailboxSize         = 100
	DefaultEventStreamRetrySec = 5
)

// Event transports
const (
	EventsModeWebsocket = "websocket"
	EventsModeWebhook   = "webhook"
)

// Default pipeline timing
const (
	DefaultForwardTimeoutSec  = 120
	DefaultQueueDelaySec      = 2
	DefaultReconnectDelaySec  = 5
	DefaultReconnectMaxSec    = 300
	DefaultStartupWatchdogSec = 120
	DefaultSessionCallTimeout = 30
)

// Default timeout values
const (
	DefaultGracefulShutdownSec   = 30
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultWebhookMaxBodyBytes   = 1 << 20
	MinWebhookSecretLength       = 32
)

// DefaultDirectoryPermissions is used when creating the QR image directory
const DefaultDirectoryPermissions = 0750

// QRImageSizePx is the edge length of the PNG written to QR_PATH
const QRImageSizePx = 256
