package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptgate/pkg/whatsapp/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*WhatsAppClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(types.ClientConfig{
		BaseURL:     server.URL,
		APIKey:      "test-key",
		SessionName: "default",
		Timeout:     2 * time.Second,
		SessionConfig: &types.SessionConfig{
			Metadata: map[string]string{"session_dir": "/data/auth"},
		},
	})
	return client, server
}

func TestStartSession_CreatesSession(t *testing.T) {
	var got types.StartSessionRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/sessions", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get(types.HeaderAPIKey))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"name":"default","status":"STARTING"}`))
	})

	require.NoError(t, client.StartSession(context.Background()))
	assert.Equal(t, "default", got.Name)
	assert.True(t, got.Start)
	require.NotNil(t, got.Config)
	assert.Equal(t, "/data/auth", got.Config.Metadata["session_dir"])
}

func TestStartSession_ExistingSessionIsStarted(t *testing.T) {
	var paths []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/api/sessions":
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"message":"Session already exists"}`))
		case "/api/sessions/default/start":
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"message":"Session already started"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	require.NoError(t, client.StartSession(context.Background()))
	assert.Equal(t, []string{"/api/sessions", "/api/sessions/default/start"}, paths)
}

func TestStartSession_ServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"engine exploded"}`))
	})

	err := client.StartSession(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine exploded")
}

func TestRestartSession(t *testing.T) {
	called := false
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/api/sessions/default/restart", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, client.RestartSession(context.Background()))
	assert.True(t, called)
}

func TestGetSessionStatusAndMe(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sessions/default":
			w.Write([]byte(`{"name":"default","status":"WORKING","me":{"id":"5491100000000@c.us","pushName":"Caja"}}`))
		case "/api/sessions/default/me":
			w.Write([]byte(`{"id":"5491100000000@c.us","pushName":"Caja"}`))
		}
	})

	session, err := client.GetSessionStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusWorking, session.Status)

	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	require.NotNil(t, me)
	assert.Equal(t, "5491100000000@c.us", me.ID)
}

func TestGetMe_NotAuthenticated(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	})

	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.Nil(t, me)
}

func TestGetQRCode(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/default/auth/qr", r.URL.Path)
		assert.Equal(t, "raw", r.URL.Query().Get("format"))
		w.Write([]byte(`{"value":"2@abc,def,ghi"}`))
	})

	value, err := client.GetQRCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2@abc,def,ghi", value)
}

func TestGetQRCode_Empty(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":""}`))
	})

	_, err := client.GetQRCode(context.Background())
	assert.Error(t, err)
}

func TestDownloadMedia_RewritesEngineHost(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/default/abc.pdf", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get(types.HeaderAPIKey))
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	})

	// WAHA advertises its own idea of its host
	data, mimeType, err := client.DownloadMedia(context.Background(), "http://localhost:3000/api/files/default/abc.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)
	assert.Equal(t, "application/pdf", mimeType)

	// Relative URLs resolve against the base URL as well
	data, _, err = client.DownloadMedia(context.Background(), "/api/files/default/abc.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.NotEmpty(t, server.URL)
}

func TestDownloadMedia_ForeignHostGetsNoAPIKey(t *testing.T) {
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(types.HeaderAPIKey))
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer foreign.Close()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("engine should not be called")
	})

	data, mimeType, err := client.DownloadMedia(context.Background(), foreign.URL+"/media/x.png")
	require.NoError(t, err)
	assert.Len(t, data, 4)
	assert.Equal(t, "image/png", mimeType)
}

func TestDownloadMedia_Errors(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, _, err := client.DownloadMedia(context.Background(), "")
	assert.Error(t, err)

	_, _, err = client.DownloadMedia(context.Background(), "ftp://example.com/file")
	assert.Error(t, err)

	_, _, err = client.DownloadMedia(context.Background(), "/api/files/missing.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestSendText(t *testing.T) {
	var got types.SendTextRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sendText", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":{"fromMe":true,"remote":"5491111111111@c.us","id":"ABC","_serialized":"true_5491111111111@c.us_ABC"}}`))
	})

	resp, err := client.SendText(context.Background(), "5491111111111@c.us", "hola", "false_5491111111111@c.us_XYZ")
	require.NoError(t, err)
	assert.Equal(t, "true_5491111111111@c.us_ABC", resp.MessageID)
	assert.Equal(t, "sent", resp.Status)
	assert.Equal(t, "5491111111111@c.us", got.ChatID)
	assert.Equal(t, "hola", got.Text)
	assert.Equal(t, "default", got.Session)
	assert.Equal(t, "false_5491111111111@c.us_XYZ", got.ReplyTo)
}

func TestSendText_Error(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"chat not found"}`))
	})

	_, err := client.SendText(context.Background(), "x@c.us", "hola", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestSessionNameIsEscaped(t *testing.T) {
	var rawPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(types.ClientConfig{BaseURL: server.URL + "/", SessionName: "a b"})
	require.NoError(t, client.RestartSession(context.Background()))
	assert.True(t, strings.HasSuffix(rawPath, "/"+url.PathEscape("a b")+"/restart"))
	assert.Equal(t, "a b", client.GetSessionName())
}
