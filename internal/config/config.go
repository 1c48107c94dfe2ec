package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"receiptgate/internal/constants"
	"receiptgate/internal/models"
	"receiptgate/internal/security"
	"receiptgate/internal/tracing"
)

var (
	ErrMissingExtractorURL = models.ConfigError{Message: "missing extraction service URL (API_URL)"}
	ErrMissingWhatsAppURL  = models.ConfigError{Message: "missing WhatsApp API URL (WHATSAPP_API_URL)"}
	ErrMissingSessionName  = models.ConfigError{Message: "missing WhatsApp session name (WHATSAPP_SESSION)"}
	ErrMissingWebhookURL   = models.ConfigError{Message: "webhook events mode requires WHATSAPP_WEBHOOK_URL"}
)

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() *models.Config {
	return &models.Config{
		Extractor: models.ExtractorConfig{
			BaseURL: constants.DefaultExtractorURL,
			Timeout: constants.DefaultForwardTimeoutSec * time.Second,
		},
		WhatsApp: models.WhatsAppConfig{
			APIBaseURL:  constants.DefaultWhatsAppAPIURL,
			SessionName: constants.DefaultWhatsAppSession,
			Timeout:     constants.DefaultWhatsAppTimeoutSec * time.Second,
			EventsMode:  constants.DefaultEventsMode,
		},
		Session: models.SessionConfig{
			ReconnectDelay:      constants.DefaultReconnectDelaySec * time.Second,
			ReconnectMultiplier: 1,
			ReconnectMaxDelay:   constants.DefaultReconnectMaxSec * time.Second,
			StartupWatchdog:     constants.DefaultStartupWatchdogSec * time.Second,
		},
		Queue: models.QueueConfig{
			Delay: constants.DefaultQueueDelaySec * time.Second,
		},
		Server: models.ServerConfig{
			Port:            constants.DefaultServerPort,
			ReadTimeout:     constants.DefaultServerReadTimeoutSec * time.Second,
			WriteTimeout:    constants.DefaultServerWriteTimeoutSec * time.Second,
			IdleTimeout:     constants.DefaultServerIdleTimeoutSec * time.Second,
			ShutdownTimeout: constants.DefaultGracefulShutdownSec * time.Second,
		},
		Tracing:  tracing.DefaultTracingConfig(),
		LogLevel: "info",
	}
}

// LoadConfig reads an optional .env file and then the process environment.
// An explicit envFile must exist; the implicit ./.env may be absent.
func LoadConfig(envFile string) (*models.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, models.ConfigError{Message: err.Error()}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(c *models.Config) error {
	if c.Extractor.BaseURL == "" {
		return ErrMissingExtractorURL
	}
	if err := validateHTTPURL("API_URL", c.Extractor.BaseURL); err != nil {
		return err
	}
	if c.WhatsApp.APIBaseURL == "" {
		return ErrMissingWhatsAppURL
	}
	if err := validateHTTPURL("WHATSAPP_API_URL", c.WhatsApp.APIBaseURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.WhatsApp.SessionName) == "" {
		return ErrMissingSessionName
	}

	c.WhatsApp.EventsMode = strings.ToLower(strings.TrimSpace(c.WhatsApp.EventsMode))
	switch c.WhatsApp.EventsMode {
	case constants.EventsModeWebsocket:
	case constants.EventsModeWebhook:
		if c.WhatsApp.WebhookURL == "" {
			return ErrMissingWebhookURL
		}
		if err := validateHTTPURL("WHATSAPP_WEBHOOK_URL", c.WhatsApp.WebhookURL); err != nil {
			return err
		}
	default:
		return models.ConfigError{Message: fmt.Sprintf("invalid WHATSAPP_EVENTS_MODE %q: must be %s or %s",
			c.WhatsApp.EventsMode, constants.EventsModeWebsocket, constants.EventsModeWebhook)}
	}

	for key, path := range map[string]string{
		"QR_PATH":         c.Session.QRPath,
		"WWEBJS_AUTH_DIR": c.Session.AuthDir,
		"CHROMIUM_PATH":   c.Session.BrowserPath,
	} {
		if path == "" {
			continue
		}
		if err := security.ValidateOutputPath(path); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid %s: %v", key, err)}
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid PORT %d", c.Server.Port)}
	}
	if c.Extractor.Timeout <= 0 {
		return models.ConfigError{Message: "FORWARD_TIMEOUT must be positive"}
	}
	if c.Queue.Delay < 0 {
		return models.ConfigError{Message: "QUEUE_DELAY must not be negative"}
	}
	if c.Session.ReconnectDelay < 0 {
		return models.ConfigError{Message: "RECONNECT_DELAY must not be negative"}
	}
	if c.Session.ReconnectMultiplier < 1 {
		return models.ConfigError{Message: "RECONNECT_MULTIPLIER must be at least 1"}
	}
	if c.Session.ReconnectMaxAttempts < 0 {
		return models.ConfigError{Message: "RECONNECT_MAX_ATTEMPTS must not be negative"}
	}
	if c.Session.ReconnectMaxDelay < c.Session.ReconnectDelay {
		c.Session.ReconnectMaxDelay = c.Session.ReconnectDelay
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid LOG_LEVEL %q", c.LogLevel)}
	}
	if err := c.Tracing.Validate(); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	return nil
}

func validateHTTPURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.ConfigError{Message: fmt.Sprintf("invalid %s %q: must be an http(s) URL", key, raw)}
	}
	return nil
}

// Warnings lists settings that are accepted but probably wrong
func Warnings(c *models.Config) []string {
	var warnings []string
	if c.WhatsApp.EventsMode == constants.EventsModeWebhook && c.WhatsApp.WebhookSecret == "" {
		warnings = append(warnings, "WHATSAPP_WEBHOOK_SECRET is not set; webhook requests are not authenticated")
	}
	if c.WhatsApp.WebhookSecret != "" && len(c.WhatsApp.WebhookSecret) < constants.MinWebhookSecretLength {
		warnings = append(warnings, fmt.Sprintf("WHATSAPP_WEBHOOK_SECRET is shorter than %d characters", constants.MinWebhookSecretLength))
	}
	if c.WhatsApp.APIKey == "" {
		warnings = append(warnings, "WHATSAPP_API_KEY is not set")
	}
	return warnings
}
