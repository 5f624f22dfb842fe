package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hanlinwu/studypal/backend/internal/config"
)

// ErrNoCredential indicates that no upstream API key is configured at all.
var ErrNoCredential = errors.New("no upstream credential configured")

// Credential is a short-lived secret for one upstream session.
type Credential struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CredentialService mints ephemeral upstream credentials from the
// configured long-lived API key.
type CredentialService struct {
	cfg    config.RealtimeConfig
	client *http.Client
}

// NewCredentialService builds the minting client.
func NewCredentialService(cfg config.RealtimeConfig) *CredentialService {
	return &CredentialService{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type mintRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
}

type mintResponse struct {
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// Mint requests a short-lived session credential.
func (s *CredentialService) Mint(ctx context.Context) (Credential, error) {
	if s.cfg.APIKey == "" {
		return Credential{}, ErrNoCredential
	}

	body, err := json.Marshal(mintRequest{Model: s.cfg.Model, Voice: s.cfg.Voice})
	if err != nil {
		return Credential{}, fmt.Errorf("marshal mint request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		return Credential{}, fmt.Errorf("create mint request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("OpenAI-Beta", "realtime=v1")

	resp, err := s.client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("mint request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Credential{}, fmt.Errorf("credential endpoint returned status %d", resp.StatusCode)
	}

	var parsed mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Credential{}, fmt.Errorf("decode mint response: %w", err)
	}

	if parsed.ClientSecret.Value == "" {
		return Credential{}, fmt.Errorf("credential endpoint returned empty secret")
	}

	return Credential{
		Value:     parsed.ClientSecret.Value,
		ExpiresAt: time.Unix(parsed.ClientSecret.ExpiresAt, 0).UTC(),
	}, nil
}
