package models

import (
	"time"

	"receiptgate/internal/tracing"
)

// Config holds the application configuration, read from the environment
type Config struct {
	Extractor ExtractorConfig       `json:"extractor"`
	WhatsApp  WhatsAppConfig        `json:"whatsapp"`
	Session   SessionConfig         `json:"session"`
	Queue     QueueConfig           `json:"queue"`
	Server    ServerConfig          `json:"server"`
	Tracing   tracing.TracingConfig `json:"tracing" envPrefix:"TRACING_"`
	LogLevel  string                `json:"log_level" env:"LOG_LEVEL"`
}

// ExtractorConfig points at the receipt extraction service
type ExtractorConfig struct {
	BaseURL string        `json:"base_url" env:"API_URL"`
	Timeout time.Duration `json:"timeout" env:"FORWARD_TIMEOUT"`
}

// WhatsAppConfig holds the messaging engine settings
type WhatsAppConfig struct {
	APIBaseURL    string        `json:"api_base_url" env:"WHATSAPP_API_URL"`
	APIKey        string        `json:"-" env:"WHATSAPP_API_KEY"`
	SessionName   string        `json:"session_name" env:"WHATSAPP_SESSION"`
	Timeout       time.Duration `json:"timeout" env:"WHATSAPP_TIMEOUT"`
	EventsMode    string        `json:"events_mode" env:"WHATSAPP_EVENTS_MODE"`
	WebhookURL    string        `json:"webhook_url" env:"WHATSAPP_WEBHOOK_URL"`
	WebhookSecret string        `json:"-" env:"WHATSAPP_WEBHOOK_SECRET"`
}

// SessionConfig controls the session supervisor
type SessionConfig struct {
	QRPath               string        `json:"qr_path" env:"QR_PATH"`
	AuthDir              string        `json:"auth_dir" env:"WWEBJS_AUTH_DIR"`
	BrowserPath          string        `json:"browser_path" env:"CHROMIUM_PATH"`
	ReconnectDelay       time.Duration `json:"reconnect_delay" env:"RECONNECT_DELAY"`
	ReconnectMultiplier  float64       `json:"reconnect_multiplier" env:"RECONNECT_MULTIPLIER"`
	ReconnectMaxDelay    time.Duration `json:"reconnect_max_delay" env:"RECONNECT_MAX_DELAY"`
	ReconnectMaxAttempts int           `json:"reconnect_max_attempts" env:"RECONNECT_MAX_ATTEMPTS"`
	StartupWatchdog      time.Duration `json:"startup_watchdog" env:"STARTUP_WATCHDOG"`
}

// QueueConfig controls the ingestion queue
type QueueConfig struct {
	Delay time.Duration `json:"delay" env:"QUEUE_DELAY"`
}

// ServerConfig controls the gateway's own HTTP server
type ServerConfig struct {
	Port            int           `json:"port" env:"PORT"`
	ReadTimeout     time.Duration `json:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `json:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// TrustProxyHeaders honors X-Forwarded-For when logging client addresses
	TrustProxyHeaders bool `json:"trust_proxy_headers" env:"TRUST_PROXY_HEADERS"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
