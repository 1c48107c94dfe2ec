package service

import (
	"fmt"
	"io"
	"sync"

	"receiptgate/internal/constants"
)

// MarkerWriter prints the operational markers a supervising process parses
// from stdout. Each marker is a single line, byte-exact.
type MarkerWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewMarkerWriter(w io.Writer) *MarkerWriter {
	if w == nil {
		w = io.Discard
	}
	return &MarkerWriter{w: w}
}

// QR writes [QR_DATA]<value>[/QR_DATA]
func (m *MarkerWriter) QR(value string) error {
	return m.line(constants.MarkerQRStart + value + constants.MarkerQREnd)
}

// Connected writes [CONNECTED]
func (m *MarkerWriter) Connected() error {
	return m.line(constants.MarkerConnected)
}

func (m *MarkerWriter) line(s string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := fmt.Fprintln(m.w, s)
	return err
}
