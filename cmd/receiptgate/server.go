package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"receiptgate/internal/constants"
	apperrors "receiptgate/internal/errors"
	"receiptgate/internal/httputil"
	"receiptgate/internal/metrics"
	"receiptgate/internal/middleware"
	"receiptgate/internal/models"
	"receiptgate/internal/security"
	"receiptgate/internal/service"
	"receiptgate/internal/tracing"
	"receiptgate/pkg/whatsapp"
	"receiptgate/pkg/whatsapp/types"
)

type healthReporter interface {
	Health() service.Health
}

// healthResponse is served on /health
type healthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Gateway service.Health `json:"gateway"`
}

type Server struct {
	router        *mux.Router
	logger        *logrus.Logger
	registry      *metrics.Registry
	gateway       healthReporter
	webhooks      *whatsapp.WebhookHandler
	webhookSecret string
	cfg           models.ServerConfig
	server        *http.Server
}

// NewServer builds the HTTP surface. The webhook route only exists when a
// handler is given, i.e. in webhook events mode.
func NewServer(cfg *models.Config, gateway healthReporter, webhooks *whatsapp.WebhookHandler, registry *metrics.Registry, logger *logrus.Logger) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		logger:        logger,
		registry:      registry,
		gateway:       gateway,
		webhooks:      webhooks,
		webhookSecret: cfg.WhatsApp.WebhookSecret,
		cfg:           cfg.Server,
	}

	s.setupRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, s.registry, s.cfg.TrustProxyHeaders))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	if s.webhooks != nil {
		webhook := s.router.PathPrefix("/webhook/whatsapp").Subrouter()
		webhook.HandleFunc("", s.handleWhatsAppWebhook()).Methods(http.MethodPost)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving requests; after Shutdown it returns http.ErrServerClosed
func (s *Server) Start() error {
	s.logger.Infof("Starting server on port %d", s.cfg.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth answers 503 until the session is ready so process
// supervisors can gate on it
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := s.gateway.Health()
		response := healthResponse{Status: "ok", Version: Version, Gateway: health}
		status := http.StatusOK
		if health.State != models.SessionStateReady {
			response.Status = "starting"
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, response)
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(s.registry.Snapshot()); err != nil {
			s.logger.WithError(err).Error("Failed to encode metrics")
		}
	}
}

func (s *Server) handleWhatsAppWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := httputil.ReadBody(w, r, constants.DefaultWebhookMaxBodyBytes)
		if err != nil {
			if errors.Is(err, httputil.ErrBodyTooLarge) {
				s.writeError(w, r, http.StatusRequestEntityTooLarge,
					apperrors.New(apperrors.ErrCodeInvalidInput, "webhook body too large").
						WithUserMessage("Request body too large"))
				return
			}
			s.writeError(w, r, http.StatusBadRequest,
				apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "failed to read webhook body").
					WithUserMessage("Failed to read request body"))
			return
		}

		if err := security.VerifyWebhookSignature(body, r.Header.Get(types.HeaderWebhookHMAC), s.webhookSecret); err != nil {
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRemoteIP: httputil.ClientIP(r, s.cfg.TrustProxyHeaders),
			}).WithError(err).Warn("Rejected webhook with invalid signature")
			s.writeError(w, r, http.StatusUnauthorized, apperrors.NewAuthError(err.Error()))
			return
		}

		if err := s.webhooks.HandleRaw(r.Context(), body); err != nil {
			switch {
			case errors.Is(err, whatsapp.ErrUnhandledEvent):
				s.logger.WithError(err).Debug("Ignoring webhook event")
			case errors.Is(err, whatsapp.ErrMailboxClosed):
				s.writeError(w, r, http.StatusServiceUnavailable,
					apperrors.Wrap(err, apperrors.ErrCodeInternalError, "gateway is shutting down").
						WithUserMessage("Shutting down"))
				return
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				s.writeError(w, r, http.StatusServiceUnavailable,
					apperrors.Wrap(err, apperrors.ErrCodeTimeout, "webhook delivery abandoned").
						WithUserMessage("Request cancelled"))
				return
			default:
				s.writeError(w, r, http.StatusBadRequest,
					apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid webhook payload").
						WithUserMessage("Invalid payload"))
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	requestID := tracing.GetRequestID(r.Context())
	if status >= http.StatusInternalServerError {
		s.logger.WithField(service.LogFieldRequestID, requestID).WithError(err).Error("Webhook request failed")
	} else {
		s.logger.WithField(service.LogFieldRequestID, requestID).WithError(err).Debug("Webhook request rejected")
	}
	writeJSON(w, status, apperrors.ToHTTPResponse(err, requestID))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
