package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/go-playground/validator/v10"
)

// Config aggregates every setting the relay service needs.
type Config struct {
	Server     ServerConfig
	Realtime   RealtimeConfig
	Fallback   FallbackConfig
	Transcribe TranscribeConfig
	Materials  MaterialsConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	realtime, err := loadRealtimeConfig()
	if err != nil {
		return nil, err
	}

	fallback, err := loadFallbackConfig()
	if err != nil {
		return nil, err
	}

	transcribe := loadTranscribeConfig(realtime.APIKey)
	materials := MaterialsConfig{DBPath: strings.TrimSpace(os.Getenv("MATERIALS_DB_PATH"))}

	cfg := &Config{
		Server:     server,
		Realtime:   realtime,
		Fallback:   fallback,
		Transcribe: transcribe,
		Materials:  materials,
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string `validate:"required"`
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// RealtimeConfig describes the upstream realtime AI endpoint.
type RealtimeConfig struct {
	APIKey               string
	BaseURL              string `validate:"required,url"`
	WSURL                string `validate:"required"`
	Model                string `validate:"required"`
	Voice                string `validate:"required"`
	Instructions         string
	VADThreshold         float64 `validate:"gte=0,lte=1"`
	VADPrefixPaddingMs   int     `validate:"gte=0"`
	VADSilenceDurationMs int     `validate:"gte=0"`
	Temperature          float64 `validate:"gte=0,lte=2"`
	MaxOutputTokens      int     `validate:"gt=0"`
	ConnectTimeout       time.Duration
	ReadyTimeout         time.Duration
}

// Enabled reports whether an upstream credential is configured at all.
func (c RealtimeConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadRealtimeConfig() (RealtimeConfig, error) {
	apiKey := strings.TrimSpace(os.Getenv("REALTIME_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}

	threshold := 0.5
	if v, err := parseOptionalFloatEnv("REALTIME_VAD_THRESHOLD"); err != nil {
		return RealtimeConfig{}, err
	} else if v != nil {
		threshold = *v
	}

	prefixPadding := 300
	if v, err := parseOptionalIntEnv("REALTIME_VAD_PREFIX_PADDING_MS"); err != nil {
		return RealtimeConfig{}, err
	} else if v != nil {
		prefixPadding = *v
	}

	silenceDuration := 500
	if v, err := parseOptionalIntEnv("REALTIME_VAD_SILENCE_DURATION_MS"); err != nil {
		return RealtimeConfig{}, err
	} else if v != nil {
		silenceDuration = *v
	}

	temperature := 0.8
	if v, err := parseOptionalFloatEnv("REALTIME_TEMPERATURE"); err != nil {
		return RealtimeConfig{}, err
	} else if v != nil {
		temperature = *v
	}

	maxTokens := 4096
	if v, err := parseOptionalIntEnv("REALTIME_MAX_OUTPUT_TOKENS"); err != nil {
		return RealtimeConfig{}, err
	} else if v != nil {
		maxTokens = *v
	}

	connectTimeout, err := parseDurationEnv("REALTIME_CONNECT_TIMEOUT", 15*time.Second)
	if err != nil {
		return RealtimeConfig{}, err
	}

	readyTimeout, err := parseDurationEnv("REALTIME_READY_TIMEOUT", 10*time.Second)
	if err != nil {
		return RealtimeConfig{}, err
	}

	return RealtimeConfig{
		APIKey:               apiKey,
		BaseURL:              getEnvOrDefault("REALTIME_BASE_URL", "https://api.openai.com/v1"),
		WSURL:                getEnvOrDefault("REALTIME_WS_URL", "wss://api.openai.com/v1/realtime"),
		Model:                getEnvOrDefault("REALTIME_MODEL", "gpt-4o-realtime-preview"),
		Voice:                getEnvOrDefault("REALTIME_VOICE", "alloy"),
		Instructions:         strings.TrimSpace(os.Getenv("REALTIME_INSTRUCTIONS")),
		VADThreshold:         threshold,
		VADPrefixPaddingMs:   prefixPadding,
		VADSilenceDurationMs: silenceDuration,
		Temperature:          temperature,
		MaxOutputTokens:      maxTokens,
		ConnectTimeout:       connectTimeout,
		ReadyTimeout:         readyTimeout,
	}, nil
}

// FallbackConfig describes the chat model used when the realtime upstream
// is unavailable.
type FallbackConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
}

// Enabled reports whether the fallback completion model has credentials.
func (c FallbackConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an Ark chat model from the fallback configuration.
func (c FallbackConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("fallback model credentials missing: set ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadFallbackConfig() (FallbackConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return FallbackConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return FallbackConfig{}, err
	}

	return FallbackConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// TranscribeConfig describes the speech-to-text capability used by the
// fallback audio path.
type TranscribeConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
}

// Enabled reports whether transcription can be attempted.
func (c TranscribeConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadTranscribeConfig(realtimeKey string) TranscribeConfig {
	apiKey := strings.TrimSpace(os.Getenv("TRANSCRIBE_API_KEY"))
	if apiKey == "" {
		// Share the realtime credential when no dedicated one is set.
		apiKey = realtimeKey
	}

	return TranscribeConfig{
		APIKey:   apiKey,
		BaseURL:  getEnvOrDefault("TRANSCRIBE_BASE_URL", "https://api.openai.com/v1"),
		Model:    getEnvOrDefault("TRANSCRIBE_MODEL", "whisper-1"),
		Language: getEnvOrDefault("TRANSCRIBE_LANGUAGE", "en"),
		Timeout:  30 * time.Second,
	}
}

// MaterialsConfig selects the study-material store backend.
type MaterialsConfig struct {
	// DBPath points at a SQLite database file. Empty selects the seeded
	// in-memory store.
	DBPath string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
