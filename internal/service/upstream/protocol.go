package upstream

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/hanlinwu/studypal/backend/internal/config"
)

// Upstream-bound message types.
const (
	msgSessionUpdate  = "session.update"
	msgItemCreate     = "conversation.item.create"
	msgResponseCreate = "response.create"
	msgAudioAppend    = "input_audio_buffer.append"
	msgAudioCommit    = "input_audio_buffer.commit"
)

// Upstream-origin event types.
const (
	evSessionCreated         = "session.created"
	evSessionUpdated         = "session.updated"
	evResponseCreated        = "response.created"
	evResponseDone           = "response.done"
	evAudioDelta             = "response.audio.delta"
	evAudioDone              = "response.audio.done"
	evSpeechStarted          = "input_audio_buffer.speech_started"
	evSpeechStopped          = "input_audio_buffer.speech_stopped"
	evTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	evError                  = "error"
)

// sessionUpdate configures the upstream session right after the channel
// opens.
type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities              []string       `json:"modalities"`
	Instructions            string         `json:"instructions"`
	Voice                   string         `json:"voice"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	TurnDetection           *turnDetection `json:"turn_detection,omitempty"`
	Temperature             float64        `json:"temperature"`
	MaxResponseOutputTokens int            `json:"max_response_output_tokens"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

// defaultInstructions is the companion persona sent upstream when no
// override is configured.
const defaultInstructions = "You are a warm, encouraging study companion. " +
	"The user is on a short break between focused study sessions. Keep " +
	"replies brief and conversational, help them decompress, and nudge them " +
	"gently back toward their study goals."

func newSessionUpdate(cfg config.RealtimeConfig) sessionUpdate {
	instructions := cfg.Instructions
	if instructions == "" {
		instructions = defaultInstructions
	}

	return sessionUpdate{
		Type: msgSessionUpdate,
		Session: sessionConfig{
			Modalities:        []string{"text", "audio"},
			Instructions:      instructions,
			Voice:             cfg.Voice,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
			TurnDetection: &turnDetection{
				Type:              "server_vad",
				Threshold:         cfg.VADThreshold,
				PrefixPaddingMs:   cfg.VADPrefixPaddingMs,
				SilenceDurationMs: cfg.VADSilenceDurationMs,
			},
			Temperature:             cfg.Temperature,
			MaxResponseOutputTokens: cfg.MaxOutputTokens,
		},
	}
}

// itemCreate adds one conversation item (text or text+images) upstream.
type itemCreate struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

func newTextItem(text string) itemCreate {
	return itemCreate{
		Type: msgItemCreate,
		Item: conversationItem{
			ID:   itemID(),
			Type: "message",
			Role: "user",
			Content: []contentPart{
				{Type: "input_text", Text: text},
			},
		},
	}
}

// newImageAnalysisItem carries the instructional text plus both captures in
// a fixed order: text, camera image, screen image.
func newImageAnalysisItem(instructions, webcamImage, screenImage string) itemCreate {
	return itemCreate{
		Type: msgItemCreate,
		Item: conversationItem{
			ID:   itemID(),
			Type: "message",
			Role: "user",
			Content: []contentPart{
				{Type: "input_text", Text: instructions},
				{Type: "input_image", ImageURL: webcamImage},
				{Type: "input_image", ImageURL: screenImage},
			},
		},
	}
}

func itemID() string {
	return "item_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// responseCreate triggers generation for the preceding items.
type responseCreate struct {
	Type     string       `json:"type"`
	Response responseSpec `json:"response"`
}

type responseSpec struct {
	Modalities []string `json:"modalities,omitempty"`
}

func newResponseCreate() responseCreate {
	return responseCreate{
		Type:     msgResponseCreate,
		Response: responseSpec{Modalities: []string{"text", "audio"}},
	}
}

// audioAppend streams one base64 chunk into the upstream input buffer.
type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type audioCommit struct {
	Type string `json:"type"`
}

// serverEvent is the envelope for every upstream-origin event. Only the
// fields the relay consumes are declared.
type serverEvent struct {
	Type       string          `json:"type"`
	EventID    string          `json:"event_id,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Response   *serverResponse `json:"response,omitempty"`
	Error      *serverError    `json:"error,omitempty"`
}

type serverResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Output []outputItem `json:"output"`
}

type outputItem struct {
	Type    string       `json:"type"`
	Role    string       `json:"role"`
	Content []outputPart `json:"content"`
}

type outputPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

type serverError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func decodeServerEvent(data []byte) (serverEvent, error) {
	var ev serverEvent
	err := json.Unmarshal(data, &ev)
	return ev, err
}

// projectEvent maps one upstream event onto its client-facing counterpart.
// Events that carry no client-visible information report ok=false.
func projectEvent(ev serverEvent) (string, map[string]any, bool) {
	switch ev.Type {
	case evSessionCreated:
		return "ai_connected", map[string]any{}, true
	case evSessionUpdated:
		return "ai_session_ready", map[string]any{}, true
	case evResponseDone:
		return "ai_response", map[string]any{"text": responseText(ev.Response)}, true
	case evAudioDelta:
		return "ai_audio_delta", map[string]any{"audioData": ev.Delta}, true
	case evAudioDone:
		return "ai_audio_done", map[string]any{}, true
	case evSpeechStarted:
		return "speech_started", map[string]any{}, true
	case evSpeechStopped:
		return "speech_stopped", map[string]any{}, true
	case evTranscriptionCompleted:
		return "transcription_completed", map[string]any{"transcript": ev.Transcript}, true
	case evError:
		message := "upstream error"
		if ev.Error != nil && ev.Error.Message != "" {
			message = ev.Error.Message
		}
		return "ai_error", map[string]any{"message": message}, true
	default:
		return "", nil, false
	}
}

// responseText collects the textual content of a completed response. Audio
// parts contribute their transcript.
func responseText(resp *serverResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, item := range resp.Output {
		for _, part := range item.Content {
			text := part.Text
			if text == "" {
				text = part.Transcript
			}
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString(" ")
			}
			builder.WriteString(text)
		}
	}
	return builder.String()
}
