package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"receiptgate/internal/config"
	"receiptgate/internal/constants"
	"receiptgate/internal/metrics"
	"receiptgate/internal/models"
	"receiptgate/internal/retry"
	"receiptgate/internal/service"
	"receiptgate/internal/tracing"
	"receiptgate/pkg/extractor"
	"receiptgate/pkg/whatsapp"
	"receiptgate/pkg/whatsapp/types"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type options struct {
	verbose bool
	envFile string
	version bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("receiptgate", pflag.ContinueOnError)
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging with unmasked sender addresses")
	flags.StringVar(&opts.envFile, "env-file", "", "Path to a .env file (default: ./.env if present)")
	flags.BoolVar(&opts.version, "version", false, "Show version information")
	if err := flags.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if opts.version {
		fmt.Printf("receiptgate %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, os.Stderr); err != nil {
		logrus.WithError(err).Fatal("Application error")
	}
}

func newLogger(w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger
}

// configureLogLevel applies LOG_LEVEL; --verbose always means debug
func configureLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sender addresses will be logged unmasked")
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}

// buildClientConfig derives the engine client settings. In webhook mode the
// session is created with our webhook registered and signed.
func buildClientConfig(cfg *models.Config) types.ClientConfig {
	sessionConfig := &types.SessionConfig{Metadata: map[string]string{}}
	if cfg.Session.AuthDir != "" {
		sessionConfig.Metadata["session_dir"] = cfg.Session.AuthDir
	}
	if cfg.Session.BrowserPath != "" {
		sessionConfig.Metadata["browser_path"] = cfg.Session.BrowserPath
	}
	if cfg.WhatsApp.EventsMode == constants.EventsModeWebhook {
		webhook := types.WebhookConfig{
			URL:    cfg.WhatsApp.WebhookURL,
			Events: []string{types.EventMessage, types.EventSessionStatus},
		}
		if cfg.WhatsApp.WebhookSecret != "" {
			webhook.HMAC = &types.WebhookHMAC{Key: cfg.WhatsApp.WebhookSecret}
		}
		sessionConfig.Webhooks = []types.WebhookConfig{webhook}
	}
	if len(sessionConfig.Metadata) == 0 {
		sessionConfig.Metadata = nil
	}
	if sessionConfig.Metadata == nil && len(sessionConfig.Webhooks) == 0 {
		sessionConfig = nil
	}

	return types.ClientConfig{
		BaseURL:       cfg.WhatsApp.APIBaseURL,
		APIKey:        cfg.WhatsApp.APIKey,
		SessionName:   cfg.WhatsApp.SessionName,
		Timeout:       cfg.WhatsApp.Timeout,
		SessionConfig: sessionConfig,
	}
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	logger := newLogger(stderr)

	cfg, err := config.LoadConfig(opts.envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	configureLogLevel(logger, cfg.LogLevel, opts.verbose)

	logger.WithFields(logrus.Fields{
		"version":     Version,
		"build":       BuildTime,
		"commit":      GitCommit,
		"events_mode": cfg.WhatsApp.EventsMode,
	}).Info("Starting receiptgate")
	for _, warning := range config.Warnings(cfg) {
		logger.Warn(warning)
	}

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.WithError(err).Warn("Failed to initialize tracing")
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to shutdown tracing")
		}
	}()

	registry := metrics.NewRegistry()
	clientConfig := buildClientConfig(cfg)
	waClient := whatsapp.NewClient(clientConfig)
	mailbox := whatsapp.NewMailbox(constants.DefaultMailboxSize)
	webhooks := whatsapp.NewWebhookHandler(mailbox)

	gateway := service.NewGateway(service.GatewayOptions{
		Client:          waClient,
		Extractor:       extractor.NewClient(cfg.Extractor.BaseURL, cfg.Extractor.Timeout),
		Mailbox:         mailbox,
		Logger:          logger,
		Metrics:         registry,
		Markers:         stdout,
		Terminal:        stdout,
		QRPath:          cfg.Session.QRPath,
		QueueDelay:      cfg.Queue.Delay,
		ForwardTimeout:  cfg.Extractor.Timeout,
		StartupWatchdog: cfg.Session.StartupWatchdog,
		Reconnect: retry.BackoffConfig{
			InitialDelay: cfg.Session.ReconnectDelay,
			MaxDelay:     cfg.Session.ReconnectMaxDelay,
			Multiplier:   cfg.Session.ReconnectMultiplier,
			MaxAttempts:  cfg.Session.ReconnectMaxAttempts,
			Jitter:       cfg.Session.ReconnectMultiplier > 1,
		},
		Verbose: opts.verbose,
	})

	var webhookHandler *whatsapp.WebhookHandler
	if cfg.WhatsApp.EventsMode == constants.EventsModeWebhook {
		webhookHandler = webhooks
	}
	server := NewServer(cfg, gateway, webhookHandler, registry, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := gateway.Run(gctx); err != nil {
			return fmt.Errorf("session initialization failed: %w", err)
		}
		return nil
	})

	if cfg.WhatsApp.EventsMode == constants.EventsModeWebsocket {
		stream := whatsapp.NewEventStream(clientConfig, webhooks, constants.DefaultEventStreamRetrySec*time.Second, logger)
		g.Go(func() error {
			err := stream.Run(gctx)
			if err == nil || gctx.Err() != nil || errors.Is(err, whatsapp.ErrMailboxClosed) {
				return nil
			}
			return fmt.Errorf("event stream failed: %w", err)
		})
	}

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	states := gateway.Supervisor().Subscribe()
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case state := <-states:
				logger.WithField(service.LogFieldState, state).Info("Session state changed")
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to shutdown server gracefully")
		}
		dropped := gateway.Shutdown(shutdownCtx)
		logger.WithField(service.LogFieldCount, dropped).Info("Shutdown completed")
		return nil
	})

	return g.Wait()
}
