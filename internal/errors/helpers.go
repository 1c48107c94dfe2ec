package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// NewAPIError creates an API error for external service calls
func NewAPIError(service, endpoint string, statusCode int, err error) *AppError {
	var code ErrorCode
	switch service {
	case "whatsapp":
		code = ErrCodeWhatsAppAPI
	case "extractor":
		code = ErrCodeExtractorAPI
	default:
		code = ErrCodeInternalError
	}

	appErr := Wrap(err, code, fmt.Sprintf("%s API call failed", service)).
		WithContext("service", service).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)

	// Determine if error is retryable based on status code
	if statusCode >= 500 || statusCode == 429 || statusCode == 408 {
		appErr.Retryable = true
	}

	return appErr
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewMediaError creates a media processing error
func NewMediaError(operation, mediaType string, err error) *AppError {
	return Wrap(err, ErrCodeMediaDownload, fmt.Sprintf("media %s failed", operation)).
		WithContext("operation", operation).
		WithContext("media_type", mediaType).
		WithUserMessage("Media processing failed")
}

// IsConnectionRefused reports whether err means nothing was listening on the
// other side. Windows reports this with its own errno and message, so the
// text is checked as well.
func IsConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "actively refused")
}

// IsTimeout reports whether err is a deadline or network timeout
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ClassifyTransportError maps a failed call to a downstream service onto
// unreachable, timeout or generic API errors.
func ClassifyTransportError(service, endpoint string, err error) *AppError {
	switch {
	case IsConnectionRefused(err):
		return WrapRetryable(err, ErrCodeExtractorUnreachable, fmt.Sprintf("%s unreachable", service)).
			WithContext("service", service).
			WithContext("endpoint", endpoint)
	case IsTimeout(err):
		return WrapRetryable(err, ErrCodeExtractorTimeout, fmt.Sprintf("%s too slow", service)).
			WithContext("service", service).
			WithContext("endpoint", endpoint)
	default:
		return Wrap(err, ErrCodeExtractorAPI, fmt.Sprintf("%s request failed", service)).
			WithContext("service", service).
			WithContext("endpoint", endpoint)
	}
}

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return 400 // Bad Request
	case ErrCodeAuthentication:
		return 401 // Unauthorized
	case ErrCodeTimeout, ErrCodeExtractorTimeout:
		return 504 // Gateway Timeout
	case ErrCodeWhatsAppAPI, ErrCodeMediaDownload, ErrCodeExtractorAPI, ErrCodeExtractorUnreachable:
		return 502 // Bad Gateway
	default:
		return 500 // Internal Server Error
	}
}

// HTTPErrorResponse is the JSON body written for failed requests
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode `json:"code"`
		Message string    `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{RequestID: requestID}
	response.Error.Code = GetCode(err)
	response.Error.Message = GetUserMessage(err)
	return response
}
