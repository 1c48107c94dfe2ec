package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateOutputPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "absolute file", path: "/var/lib/receiptgate/qr.png"},
		{name: "relative file", path: "data/qr.png"},
		{name: "dotted name", path: "data/..hidden/qr.png"},
		{name: "empty", path: "", wantErr: true},
		{name: "traversal", path: "../etc/qr.png", wantErr: true},
		{name: "traversal inside absolute", path: "/var/lib/../../etc/qr.png", wantErr: true},
		{name: "nul byte", path: "qr\x00.png", wantErr: true},
		{name: "root", path: "/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"message","session":"default"}`)
	secret := "0123456789abcdef0123456789abcdef"
	signature := SignWebhookBody(body, secret)

	assert.Len(t, signature, 128)
	assert.NoError(t, VerifyWebhookSignature(body, signature, secret))
	assert.NoError(t, VerifyWebhookSignature(body, "  "+signature+" ", secret))
	assert.ErrorIs(t, VerifyWebhookSignature(body, "", secret), ErrMissingSignature)
	assert.ErrorIs(t, VerifyWebhookSignature(body, signature[:64], secret), ErrSignatureMismatch)
	assert.ErrorIs(t, VerifyWebhookSignature([]byte(`{}`), signature, secret), ErrSignatureMismatch)
	assert.ErrorIs(t, VerifyWebhookSignature(body, signature, "another-secret"), ErrSignatureMismatch)

	// No secret configured
	assert.NoError(t, VerifyWebhookSignature(body, "", ""))
}
