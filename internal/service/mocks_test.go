package service

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"

	"receiptgate/internal/metrics"
	"receiptgate/internal/models"
	"receiptgate/internal/privacy"
	"receiptgate/pkg/extractor"
	"receiptgate/pkg/whatsapp/types"
)

const testSession = "default"

// Mock WhatsApp client
type mockWhatsAppClient struct {
	mock.Mock
}

func newMockClient() *mockWhatsAppClient {
	client := &mockWhatsAppClient{}
	client.On("GetSessionName").Return(testSession).Maybe()
	return client
}

func (m *mockWhatsAppClient) GetSessionName() string {
	args := m.Called()
	return args.String(0)
}

func (m *mockWhatsAppClient) StartSession(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockWhatsAppClient) RestartSession(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockWhatsAppClient) GetSessionStatus(ctx context.Context) (*types.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Session), args.Error(1)
}

func (m *mockWhatsAppClient) GetMe(ctx context.Context) (*types.Me, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Me), args.Error(1)
}

func (m *mockWhatsAppClient) GetQRCode(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockWhatsAppClient) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	args := m.Called(ctx, mediaURL)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

func (m *mockWhatsAppClient) SendText(ctx context.Context, chatID, text, replyTo string) (*types.SendMessageResponse, error) {
	args := m.Called(ctx, chatID, text, replyTo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SendMessageResponse), args.Error(1)
}

// expectReplies accepts any reply and records nothing beyond the mock's calls
func (m *mockWhatsAppClient) expectReplies() {
	m.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&types.SendMessageResponse{MessageID: "reply", Status: "sent"}, nil).Maybe()
}

// repliesTo returns the texts sent to chatID, in order
func (m *mockWhatsAppClient) repliesTo(chatID string) []string {
	var texts []string
	for _, call := range m.Calls {
		if call.Method == "SendText" && call.Arguments.String(1) == chatID {
			texts = append(texts, call.Arguments.String(2))
		}
	}
	return texts
}

// fakeExtractor records every request and answers through respond
type fakeExtractor struct {
	mu        sync.Mutex
	requests  []extractor.ReceiptRequest
	starts    []time.Time
	ends      []time.Time
	active    int32
	overlaps  int32
	respond   func(ctx context.Context, req extractor.ReceiptRequest) (*extractor.ReceiptResponse, error)
	callCount int32
}

func (f *fakeExtractor) ProcessReceipt(ctx context.Context, req extractor.ReceiptRequest) (*extractor.ReceiptResponse, error) {
	if atomic.AddInt32(&f.active, 1) > 1 {
		atomic.AddInt32(&f.overlaps, 1)
	}
	defer atomic.AddInt32(&f.active, -1)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.starts = append(f.starts, time.Now())
	f.mu.Unlock()
	atomic.AddInt32(&f.callCount, 1)

	var (
		resp *extractor.ReceiptResponse
		err  error
	)
	if f.respond != nil {
		resp, err = f.respond(ctx, req)
	} else {
		resp = &extractor.ReceiptResponse{Success: true}
	}

	f.mu.Lock()
	f.ends = append(f.ends, time.Now())
	f.mu.Unlock()
	return resp, err
}

func (f *fakeExtractor) calls() int {
	return int(atomic.LoadInt32(&f.callCount))
}

func (f *fakeExtractor) recorded() ([]extractor.ReceiptRequest, []time.Time, []time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]extractor.ReceiptRequest(nil), f.requests...),
		append([]time.Time(nil), f.starts...),
		append([]time.Time(nil), f.ends...)
}

// recordingForwarder stands in for the Forwarder in queue tests
type recordingForwarder struct {
	mu       sync.Mutex
	ids      []string
	active   int32
	overlaps int32
	hold     time.Duration
	block    chan struct{}
}

func (r *recordingForwarder) Forward(ctx context.Context, item models.QueueItem) models.ForwardResult {
	if atomic.AddInt32(&r.active, 1) > 1 {
		atomic.AddInt32(&r.overlaps, 1)
	}
	defer atomic.AddInt32(&r.active, -1)

	r.mu.Lock()
	r.ids = append(r.ids, item.ID)
	r.mu.Unlock()

	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return models.ForwardResult{ItemID: item.ID, Outcome: models.ForwardHardFailure, Err: ctx.Err()}
		}
	}
	if r.hold > 0 {
		time.Sleep(r.hold)
	}
	return models.ForwardResult{ItemID: item.ID, Outcome: models.ForwardSuccess}
}

func (r *recordingForwarder) forwarded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

// capturingLogger returns a logger whose entries can be inspected
func capturingLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func findEntry(hook *test.Hook, message string) *logrus.Entry {
	for _, entry := range hook.AllEntries() {
		if entry.Message == message {
			return entry
		}
	}
	return nil
}

func testMasker() privacy.Masker {
	return privacy.NewMasker(false)
}

func newTestNotifier(client *mockWhatsAppClient, registry *metrics.Registry) *Notifier {
	return NewNotifier(client, quietLogger(), registry, testMasker())
}

type staticIdentity string

func (s staticIdentity) Identity() string {
	return string(s)
}

func testItem(id string) models.QueueItem {
	return models.QueueItem{
		ID: id,
		Attachment: models.Attachment{
			Data:       "aGVsbG8=",
			MimeType:   "image/png",
			Sender:     "5491100000000@c.us",
			ReceivedAt: time.Date(2024, 3, 1, 12, 30, 45, 123000000, time.UTC),
			Size:       5,
		},
		Event: models.InboundEvent{
			MessageID:     "msg-" + id,
			Sender:        "5491100000000@c.us",
			HasAttachment: true,
			Body:          "pago alquiler",
		},
		EnqueuedAt: time.Now(),
	}
}
