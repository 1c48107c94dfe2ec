package service

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mdp/qrterminal"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"receiptgate/internal/constants"
)

// QRRenderer shows pairing codes in the terminal and optionally as a PNG
// for a control panel to display.
type QRRenderer struct {
	terminal io.Writer
	path     string
	logger   *logrus.Logger
}

// NewQRRenderer creates a renderer. An empty path disables the PNG.
func NewQRRenderer(terminal io.Writer, path string, logger *logrus.Logger) *QRRenderer {
	if terminal == nil {
		terminal = io.Discard
	}
	return &QRRenderer{terminal: terminal, path: path, logger: logger}
}

// Render draws the code. File problems are logged, never returned.
func (r *QRRenderer) Render(value string) {
	qrterminal.GenerateHalfBlock(value, qrterminal.L, r.terminal)

	if r.path == "" {
		return
	}
	if err := r.writeFile(value); err != nil {
		r.logger.WithError(err).WithField(LogFieldFilePath, r.path).Warn("Failed to save QR image")
		return
	}
	r.logger.WithField(LogFieldFilePath, r.path).Info("QR image saved")
}

func (r *QRRenderer) writeFile(value string) error {
	if err := os.MkdirAll(filepath.Dir(r.path), constants.DefaultDirectoryPermissions); err != nil {
		return fmt.Errorf("failed to create QR directory: %w", err)
	}
	if err := qrcode.WriteFile(value, qrcode.Medium, constants.QRImageSizePx, r.path); err != nil {
		return fmt.Errorf("failed to write QR image: %w", err)
	}
	return nil
}

// Remove deletes a stale QR image once the session is connected
func (r *QRRenderer) Remove() {
	if r.path == "" {
		return
	}
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.logger.WithError(err).WithField(LogFieldFilePath, r.path).Warn("Failed to remove QR image")
		return
	}
	r.logger.WithField(LogFieldFilePath, r.path).Debug("QR image removed")
}
