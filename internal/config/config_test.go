package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearRelayEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "REALTIME_API_KEY", "OPENAI_API_KEY", "REALTIME_BASE_URL",
		"REALTIME_WS_URL", "REALTIME_MODEL", "REALTIME_VOICE",
		"REALTIME_INSTRUCTIONS", "REALTIME_VAD_THRESHOLD",
		"REALTIME_TEMPERATURE", "REALTIME_MAX_OUTPUT_TOKENS",
		"REALTIME_CONNECT_TIMEOUT", "REALTIME_READY_TIMEOUT",
		"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "ARK_MODEL",
		"TRANSCRIBE_API_KEY", "MATERIALS_DB_PATH",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearRelayEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.False(t, cfg.Realtime.Enabled())
	require.Equal(t, "https://api.openai.com/v1", cfg.Realtime.BaseURL)
	require.Equal(t, "wss://api.openai.com/v1/realtime", cfg.Realtime.WSURL)
	require.Equal(t, "gpt-4o-realtime-preview", cfg.Realtime.Model)
	require.Equal(t, "alloy", cfg.Realtime.Voice)
	require.Equal(t, 0.5, cfg.Realtime.VADThreshold)
	require.Equal(t, 0.8, cfg.Realtime.Temperature)
	require.Equal(t, 4096, cfg.Realtime.MaxOutputTokens)
	require.Equal(t, 10*time.Second, cfg.Realtime.ReadyTimeout)

	require.False(t, cfg.Fallback.Enabled())
	require.False(t, cfg.Transcribe.Enabled())
	require.Equal(t, "whisper-1", cfg.Transcribe.Model)
	require.Empty(t, cfg.Materials.DBPath)
}

func TestLoadPortForms(t *testing.T) {
	clearRelayEnv(t)

	t.Setenv("PORT", "9000")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.Addr)

	t.Setenv("PORT", "127.0.0.1:9000")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestLoadRealtimeKeyAliases(t *testing.T) {
	clearRelayEnv(t)

	t.Setenv("OPENAI_API_KEY", "sk-openai")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sk-openai", cfg.Realtime.APIKey)
	require.True(t, cfg.Realtime.Enabled())

	// The dedicated variable wins over the alias.
	t.Setenv("REALTIME_API_KEY", "sk-realtime")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, "sk-realtime", cfg.Realtime.APIKey)
}

func TestTranscribeSharesRealtimeKey(t *testing.T) {
	clearRelayEnv(t)

	t.Setenv("REALTIME_API_KEY", "sk-shared")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sk-shared", cfg.Transcribe.APIKey)

	t.Setenv("TRANSCRIBE_API_KEY", "sk-dedicated")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, "sk-dedicated", cfg.Transcribe.APIKey)
}

func TestLoadInvalidValues(t *testing.T) {
	clearRelayEnv(t)

	t.Setenv("REALTIME_VAD_THRESHOLD", "not-a-number")
	_, err := Load()
	require.Error(t, err)

	clearRelayEnv(t)
	t.Setenv("REALTIME_READY_TIMEOUT", "soon")
	_, err = Load()
	require.Error(t, err)

	clearRelayEnv(t)
	t.Setenv("REALTIME_VAD_THRESHOLD", "1.5")
	_, err = Load()
	require.Error(t, err)
}

func TestFallbackEnabled(t *testing.T) {
	require.False(t, FallbackConfig{Model: "doubao"}.Enabled())
	require.True(t, FallbackConfig{Model: "doubao", APIKey: "key"}.Enabled())
	require.True(t, FallbackConfig{Model: "doubao", AccessKey: "ak", SecretKey: "sk"}.Enabled())
	require.False(t, FallbackConfig{APIKey: "key"}.Enabled())
}
