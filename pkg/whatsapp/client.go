package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"receiptgate/pkg/whatsapp/types"
)

const (
	defaultTimeout = 30 * time.Second
	// maxMediaBytes bounds a single attachment download
	maxMediaBytes = 100 * 1024 * 1024
)

// WhatsAppClient talks to a WAHA engine over its REST API
type WhatsAppClient struct {
	baseURL       string
	apiKey        string
	sessionName   string
	sessionConfig *types.SessionConfig
	client        *http.Client
}

// NewClient creates a WAHA client bound to a single session
func NewClient(config types.ClientConfig) *WhatsAppClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &WhatsAppClient{
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		apiKey:        config.APIKey,
		sessionName:   config.SessionName,
		sessionConfig: config.SessionConfig,
		client:        &http.Client{Timeout: timeout},
	}
}

var _ types.WAClient = (*WhatsAppClient)(nil)

func (c *WhatsAppClient) GetSessionName() string {
	return c.sessionName
}

// StartSession creates the session with start=true, or starts it if it
// already exists. A session that is already running is not an error.
func (c *WhatsAppClient) StartSession(ctx context.Context) error {
	payload := types.StartSessionRequest{
		Name:   c.sessionName,
		Start:  true,
		Config: c.sessionConfig,
	}
	status, err := c.doJSON(ctx, http.MethodPost, types.APIBase+types.EndpointSessions, payload, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusUnprocessableEntity && status != http.StatusConflict {
		return fmt.Errorf("failed to create session: %w", err)
	}

	status, err = c.doJSON(ctx, http.MethodPost, c.sessionPath(types.EndpointStart), nil, nil)
	if err != nil && status != http.StatusUnprocessableEntity && status != http.StatusConflict {
		return fmt.Errorf("failed to start session: %w", err)
	}
	return nil
}

func (c *WhatsAppClient) RestartSession(ctx context.Context) error {
	if _, err := c.doJSON(ctx, http.MethodPost, c.sessionPath(types.EndpointRestart), nil, nil); err != nil {
		return fmt.Errorf("failed to restart session: %w", err)
	}
	return nil
}

func (c *WhatsAppClient) GetSessionStatus(ctx context.Context) (*types.Session, error) {
	var session types.Session
	if _, err := c.doJSON(ctx, http.MethodGet, c.sessionPath(""), nil, &session); err != nil {
		return nil, fmt.Errorf("failed to get session status: %w", err)
	}
	return &session, nil
}

// GetMe returns the logged in account, or nil when the session is not authenticated
func (c *WhatsAppClient) GetMe(ctx context.Context) (*types.Me, error) {
	var me *types.Me
	if _, err := c.doJSON(ctx, http.MethodGet, c.sessionPath(types.EndpointMe), nil, &me); err != nil {
		return nil, fmt.Errorf("failed to get session identity: %w", err)
	}
	if me == nil || me.ID == "" {
		return nil, nil
	}
	return me, nil
}

func (c *WhatsAppClient) GetQRCode(ctx context.Context) (string, error) {
	path := fmt.Sprintf("%s/%s%s?format=raw", types.APIBase, url.PathEscape(c.sessionName), types.EndpointAuthQR)
	var qr types.QRCode
	if _, err := c.doJSON(ctx, http.MethodGet, path, nil, &qr); err != nil {
		return "", fmt.Errorf("failed to get QR code: %w", err)
	}
	if qr.Value == "" {
		return "", fmt.Errorf("engine returned an empty QR code")
	}
	return qr.Value, nil
}

// DownloadMedia fetches an attachment and returns its bytes and the content
// type reported by the engine.
func (c *WhatsAppClient) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	target, sameHost, err := c.resolveMediaURL(mediaURL)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	if sameHost && c.apiKey != "" {
		req.Header.Set(types.HeaderAPIKey, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media body: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, "", fmt.Errorf("media exceeds %d bytes", maxMediaBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// SendText sends a plain text message, quoting replyTo when set
func (c *WhatsAppClient) SendText(ctx context.Context, chatID, text, replyTo string) (*types.SendMessageResponse, error) {
	payload := types.SendTextRequest{
		ChatID:  chatID,
		Text:    text,
		Session: c.sessionName,
		ReplyTo: replyTo,
	}

	var wahaResp types.WAHAMessageResponse
	if _, err := c.doJSON(ctx, http.MethodPost, types.APIBase+types.EndpointSendText, payload, &wahaResp); err != nil {
		return nil, fmt.Errorf("failed to send text: %w", err)
	}

	resp := &types.SendMessageResponse{Status: "sent"}
	if wahaResp.ID != nil {
		resp.MessageID = wahaResp.ID.Serialized
		if resp.MessageID == "" {
			resp.MessageID = wahaResp.ID.ID
		}
	}
	return resp, nil
}

func (c *WhatsAppClient) sessionPath(suffix string) string {
	return types.APIBase + types.EndpointSessions + "/" + url.PathEscape(c.sessionName) + suffix
}

// doJSON performs a request against the engine. The returned status is 0
// when no response was received.
func (c *WhatsAppClient) doJSON(ctx context.Context, method, path string, payload, out interface{}) (int, error) {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(types.HeaderAPIKey, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr types.WAHAErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil {
			if msg := firstNonEmpty(apiErr.Message, apiErr.Error); msg != "" {
				return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
			}
		}
		return resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// resolveMediaURL points engine file URLs at the configured base URL. WAHA
// advertises files under its own idea of its host (often localhost), which
// is unreachable when the gateway runs elsewhere. The API key is only sent
// to the engine host.
func (c *WhatsAppClient) resolveMediaURL(raw string) (string, bool, error) {
	if raw == "" {
		return "", false, fmt.Errorf("empty media URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid media URL: %w", err)
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", false, fmt.Errorf("invalid engine base URL: %w", err)
	}

	if u.Host == "" || (strings.HasPrefix(u.Path, types.APIBase+"/") && !strings.EqualFold(u.Host, base.Host)) {
		u.Scheme = base.Scheme
		u.Host = base.Host
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false, fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}
	return u.String(), strings.EqualFold(u.Host, base.Host), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
