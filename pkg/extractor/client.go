package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "receiptgate/internal/errors"
)

// DefaultTimeout leaves room for a slow vision model on the other side
const DefaultTimeout = 120 * time.Second

const maxErrorBodyBytes = 4096

// HTTPClient posts receipts to the extraction service
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for baseURL with the given request timeout
func NewClient(baseURL string, timeout time.Duration) *HTTPClient {
	return NewClientWithHTTPClient(baseURL, &http.Client{Timeout: timeout})
}

// NewClientWithHTTPClient allows callers to supply their own http.Client
func NewClientWithHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

var _ Client = (*HTTPClient)(nil)

// ProcessReceipt submits one receipt. Transport failures come back as
// *errors.AppError classified as unreachable, timeout or generic.
func (c *HTTPClient) ProcessReceipt(ctx context.Context, receipt ReceiptRequest) (*ReceiptResponse, error) {
	body, err := json.Marshal(receipt)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "failed to marshal receipt")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndpointProcessReceipt, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidConfig, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.ClassifyTransportError("extractor", EndpointProcessReceipt, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, apperrors.NewAPIError("extractor", EndpointProcessReceipt, resp.StatusCode,
			fmt.Errorf("status %d: %s", resp.StatusCode, errorDetail(detail)))
	}

	var result ReceiptResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// A deadline can also fire while the body is being read
		if apperrors.IsTimeout(err) {
			return nil, apperrors.ClassifyTransportError("extractor", EndpointProcessReceipt, err)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeExtractorAPI, "failed to decode extractor response").
			WithContext("endpoint", EndpointProcessReceipt)
	}
	return &result, nil
}

// errorDetail pulls FastAPI's detail field out of an error body
func errorDetail(body []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Detail != nil {
		if s, ok := parsed.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(parsed.Detail); err == nil {
			return string(b)
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response body"
	}
	return text
}

// UnmarshalJSON keeps the known fields typed and everything else in Extra.
// The amount is accepted both as a number and as a numeric string.
func (d *ReceiptData) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*d = ReceiptData{}
	if v, ok := raw["monto_numerico"]; ok {
		switch amount := v.(type) {
		case float64:
			d.MontoNumerico = &amount
		case string:
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(amount), 64); err == nil {
				d.MontoNumerico = &parsed
			}
		}
		delete(raw, "monto_numerico")
	}
	if v, ok := raw["emisor_nombre"]; ok {
		if name, ok := v.(string); ok {
			d.EmisorNombre = name
		}
		delete(raw, "emisor_nombre")
	}
	if len(raw) > 0 {
		d.Extra = raw
	}
	return nil
}
