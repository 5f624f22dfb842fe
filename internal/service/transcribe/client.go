package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hanlinwu/studypal/backend/internal/config"
)

// ErrNotConfigured indicates that no transcription credential is available.
var ErrNotConfigured = errors.New("transcription is not configured")

// Client converts recorded audio to text through an HTTP speech-to-text
// endpoint. Audio is staged through a temp file that is always removed.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
	stagingDir string
}

// New builds a transcription client from configuration.
func New(cfg config.TranscribeConfig) *Client {
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		language:   cfg.Language,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		stagingDir: os.TempDir(),
	}
}

// Enabled reports whether transcription can be attempted.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Transcribe converts one audio buffer to text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio data to transcribe")
	}
	if format == "" {
		format = "webm"
	}

	path, err := c.stageAudio(audio, format)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	body, contentType, err := c.buildForm(path)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription endpoint returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}

	return parsed.Text, nil
}

// stageAudio writes the buffer to a temp file so the form upload can stream
// from disk. The caller removes the file.
func (c *Client) stageAudio(audio []byte, format string) (string, error) {
	f, err := os.CreateTemp(c.stagingDir, "break-audio-*."+format)
	if err != nil {
		return "", fmt.Errorf("stage audio: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("stage audio: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("stage audio: %w", err)
	}

	return path, nil
}

func (c *Client) buildForm(path string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open staged audio: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("build transcription form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("build transcription form: %w", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return nil, "", fmt.Errorf("build transcription form: %w", err)
	}
	if c.language != "" {
		if err := writer.WriteField("language", c.language); err != nil {
			return nil, "", fmt.Errorf("build transcription form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("build transcription form: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}
