package types

import (
	"context"
)

// WAClient is the subset of the WAHA API the gateway relies on
type WAClient interface {
	GetSessionName() string
	StartSession(ctx context.Context) error
	RestartSession(ctx context.Context) error
	GetSessionStatus(ctx context.Context) (*Session, error)
	GetMe(ctx context.Context) (*Me, error)
	GetQRCode(ctx context.Context) (string, error)
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error)
	SendText(ctx context.Context, chatID, text, replyTo string) (*SendMessageResponse, error)
}
