package security

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrMissingSignature  = errors.New("missing webhook signature")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)

// SignWebhookBody returns the hex HMAC-SHA512 the engine sends in
// X-Webhook-Hmac for body
func SignWebhookBody(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks signature against body. An empty secret
// disables verification.
func VerifyWebhookSignature(body []byte, signature, secret string) error {
	if secret == "" {
		return nil
	}
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return ErrMissingSignature
	}

	expected := SignWebhookBody(body, secret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
