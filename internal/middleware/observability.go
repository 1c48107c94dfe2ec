package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"receiptgate/internal/httputil"
	"receiptgate/internal/metrics"
	"receiptgate/internal/privacy"
	"receiptgate/internal/service"
	"receiptgate/internal/tracing"
)

// RequestIDHeader carries the request id back to the caller
const RequestIDHeader = "X-Request-ID"

// ObservabilityMiddleware adds a request id, a span, request metrics and
// access logging to every request. Metrics are labeled with the route
// template so ids in paths do not blow up cardinality.
func ObservabilityMiddleware(logger *logrus.Logger, registry *metrics.Registry, trustProxy bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracing.StartSpan(ctx, "http "+r.Method)
			defer span.End()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = tracing.GenerateRequestID()
			}
			ctx = tracing.WithRequestID(ctx, requestID)
			ctx = tracing.WithStartTime(ctx, time.Now())
			r = r.WithContext(ctx)

			endpoint := routeTemplate(r)
			clientIP := httputil.ClientIP(r, trustProxy)

			tracing.AddSpanAttributes(ctx,
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", endpoint),
				attribute.String("client.address", clientIP),
				attribute.String("user_agent.original", r.Header.Get("User-Agent")),
			)

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			wrapper.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(wrapper, r)

			duration := tracing.Duration(ctx)
			status := strconv.Itoa(wrapper.statusCode)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", wrapper.statusCode),
				attribute.Int64("http.response.size", wrapper.responseSize),
			)
			if wrapper.statusCode >= 500 {
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("HTTP %d", wrapper.statusCode))
			}

			registry.IncrementCounter(metrics.HTTPRequests, map[string]string{
				"method":      r.Method,
				"endpoint":    endpoint,
				"status_code": status,
			}, "HTTP requests served")
			registry.RecordTimer(metrics.HTTPDuration, duration, map[string]string{
				"method":   r.Method,
				"endpoint": endpoint,
			}, "HTTP request duration")

			level := logrus.DebugLevel
			switch {
			case wrapper.statusCode >= 500:
				level = logrus.ErrorLevel
			case wrapper.statusCode >= 400:
				level = logrus.WarnLevel
			case endpoint != "/health" && endpoint != "/metrics":
				level = logrus.InfoLevel
			}

			fields := map[string]interface{}{
				service.LogFieldRequestID:  requestID,
				service.LogFieldTraceID:    tracing.GetOtelTraceID(ctx),
				service.LogFieldMethod:     r.Method,
				service.LogFieldURL:        r.URL.Path,
				service.LogFieldStatusCode: wrapper.statusCode,
				service.LogFieldDuration:   duration.Milliseconds(),
				service.LogFieldRemoteIP:   clientIP,
				service.LogFieldUserAgent:  r.Header.Get("User-Agent"),
				service.LogFieldSize:       wrapper.responseSize,
			}
			if query := queryFields(r); len(query) > 0 {
				fields["query"] = privacy.MaskSensitiveFields(query)
			}
			logger.WithFields(privacy.MaskSensitiveFields(fields)).Log(level, "HTTP request completed")
		})
	}
}

// queryFields flattens the query string, keeping the first value per key
func queryFields(r *http.Request) map[string]interface{} {
	values := r.URL.Query()
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(values))
	for key := range values {
		fields[key] = values.Get(key)
	}
	return fields
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// responseWrapper captures the status code and response size
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
	wroteHeader  bool
}

func (rw *responseWrapper) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWrapper) Write(data []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(data)
	rw.responseSize += int64(n)
	return n, err
}
