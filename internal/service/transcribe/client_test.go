package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanlinwu/studypal/backend/internal/config"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c := New(config.TranscribeConfig{
		APIKey:   "sk-test",
		BaseURL:  baseURL,
		Model:    "whisper-1",
		Language: "en",
		Timeout:  5 * time.Second,
	})
	c.stagingDir = t.TempDir()
	return c
}

func TestTranscribeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "whisper-1", r.FormValue("model"))
		require.Equal(t, "en", r.FormValue("language"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		require.Contains(t, header.Filename, ".webm")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"keep going, you are close"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	text, err := c.Transcribe(context.Background(), []byte("fake-audio"), "webm")
	require.NoError(t, err)
	require.Equal(t, "keep going, you are close", text)
}

func TestTranscribeRemovesStagedFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	_, err := c.Transcribe(context.Background(), []byte("fake-audio"), "wav")
	require.NoError(t, err)

	entries, err := os.ReadDir(c.stagingDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestTranscribeStagedFileRemovedOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	_, err := c.Transcribe(context.Background(), []byte("fake-audio"), "webm")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 503")

	entries, err := os.ReadDir(c.stagingDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestTranscribeNotConfigured(t *testing.T) {
	c := New(config.TranscribeConfig{})

	require.False(t, c.Enabled())
	_, err := c.Transcribe(context.Background(), []byte("audio"), "webm")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestTranscribeEmptyAudio(t *testing.T) {
	c := newTestClient(t, "http://unused")

	_, err := c.Transcribe(context.Background(), nil, "webm")
	require.Error(t, err)
}

func TestTranscribeDefaultsFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		require.Contains(t, header.Filename, ".webm")
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	text, err := c.Transcribe(context.Background(), []byte("audio"), "")
	require.NoError(t, err)
	require.Equal(t, "ok", text)
}
