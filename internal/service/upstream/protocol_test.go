package upstream

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanlinwu/studypal/backend/internal/config"
)

func testRealtimeConfig() config.RealtimeConfig {
	return config.RealtimeConfig{
		APIKey:               "sk-test",
		BaseURL:              "https://api.example.com/v1",
		WSURL:                "wss://api.example.com/v1/realtime",
		Model:                "gpt-4o-realtime-preview",
		Voice:                "alloy",
		VADThreshold:         0.5,
		VADPrefixPaddingMs:   300,
		VADSilenceDurationMs: 500,
		Temperature:          0.8,
		MaxOutputTokens:      4096,
	}
}

func TestNewSessionUpdateShape(t *testing.T) {
	update := newSessionUpdate(testRealtimeConfig())

	require.Equal(t, "session.update", update.Type)
	require.Equal(t, []string{"text", "audio"}, update.Session.Modalities)
	require.Equal(t, "alloy", update.Session.Voice)
	require.Equal(t, "pcm16", update.Session.InputAudioFormat)
	require.Equal(t, "pcm16", update.Session.OutputAudioFormat)
	require.NotEmpty(t, update.Session.Instructions)

	require.NotNil(t, update.Session.TurnDetection)
	require.Equal(t, "server_vad", update.Session.TurnDetection.Type)
	require.Equal(t, 0.5, update.Session.TurnDetection.Threshold)
	require.Equal(t, 300, update.Session.TurnDetection.PrefixPaddingMs)
	require.Equal(t, 500, update.Session.TurnDetection.SilenceDurationMs)
}

func TestNewSessionUpdateInstructionsOverride(t *testing.T) {
	cfg := testRealtimeConfig()
	cfg.Instructions = "be terse"

	update := newSessionUpdate(cfg)
	require.Equal(t, "be terse", update.Session.Instructions)
}

func TestNewTextItem(t *testing.T) {
	item := newTextItem("hello there")

	require.Equal(t, "conversation.item.create", item.Type)
	require.Equal(t, "message", item.Item.Type)
	require.Equal(t, "user", item.Item.Role)
	require.True(t, strings.HasPrefix(item.Item.ID, "item_"))
	require.Len(t, item.Item.Content, 1)
	require.Equal(t, "input_text", item.Item.Content[0].Type)
	require.Equal(t, "hello there", item.Item.Content[0].Text)
}

func TestNewImageAnalysisItemPartOrder(t *testing.T) {
	item := newImageAnalysisItem("look at these", "data:webcam", "data:screen")

	require.Len(t, item.Item.Content, 3)
	require.Equal(t, "input_text", item.Item.Content[0].Type)
	require.Equal(t, "look at these", item.Item.Content[0].Text)
	require.Equal(t, "input_image", item.Item.Content[1].Type)
	require.Equal(t, "data:webcam", item.Item.Content[1].ImageURL)
	require.Equal(t, "input_image", item.Item.Content[2].Type)
	require.Equal(t, "data:screen", item.Item.Content[2].ImageURL)
}

func TestItemIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := itemID()
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestProjectEvent(t *testing.T) {
	cases := []struct {
		name      string
		ev        serverEvent
		wantType  string
		wantOK    bool
		wantField string
		wantValue any
	}{
		{name: "session created", ev: serverEvent{Type: "session.created"}, wantType: "ai_connected", wantOK: true},
		{name: "session updated", ev: serverEvent{Type: "session.updated"}, wantType: "ai_session_ready", wantOK: true},
		{name: "audio delta", ev: serverEvent{Type: "response.audio.delta", Delta: "UklGRg=="}, wantType: "ai_audio_delta", wantOK: true, wantField: "audioData", wantValue: "UklGRg=="},
		{name: "audio done", ev: serverEvent{Type: "response.audio.done"}, wantType: "ai_audio_done", wantOK: true},
		{name: "speech started", ev: serverEvent{Type: "input_audio_buffer.speech_started"}, wantType: "speech_started", wantOK: true},
		{name: "speech stopped", ev: serverEvent{Type: "input_audio_buffer.speech_stopped"}, wantType: "speech_stopped", wantOK: true},
		{name: "transcription", ev: serverEvent{Type: "conversation.item.input_audio_transcription.completed", Transcript: "hi"}, wantType: "transcription_completed", wantOK: true, wantField: "transcript", wantValue: "hi"},
		{name: "error with message", ev: serverEvent{Type: "error", Error: &serverError{Message: "boom"}}, wantType: "ai_error", wantOK: true, wantField: "message", wantValue: "boom"},
		{name: "error without message", ev: serverEvent{Type: "error"}, wantType: "ai_error", wantOK: true, wantField: "message", wantValue: "upstream error"},
		{name: "response created is internal", ev: serverEvent{Type: "response.created"}, wantOK: false},
		{name: "unknown event", ev: serverEvent{Type: "rate_limits.updated"}, wantOK: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eventType, payload, ok := projectEvent(tc.ev)
			require.Equal(t, tc.wantOK, ok)
			if !tc.wantOK {
				return
			}
			require.Equal(t, tc.wantType, eventType)
			if tc.wantField != "" {
				require.Equal(t, tc.wantValue, payload[tc.wantField])
			}
		})
	}
}

func TestProjectEventResponseDone(t *testing.T) {
	ev := serverEvent{
		Type: "response.done",
		Response: &serverResponse{
			Output: []outputItem{
				{Content: []outputPart{{Type: "text", Text: "part one"}}},
				{Content: []outputPart{{Type: "audio", Transcript: "part two"}}},
			},
		},
	}

	eventType, payload, ok := projectEvent(ev)
	require.True(t, ok)
	require.Equal(t, "ai_response", eventType)
	require.Equal(t, "part one part two", payload["text"])
}

func TestResponseTextNilAndEmpty(t *testing.T) {
	require.Equal(t, "", responseText(nil))
	require.Equal(t, "", responseText(&serverResponse{}))
}

func TestDecodeServerEvent(t *testing.T) {
	raw := []byte(`{"type":"response.audio.delta","event_id":"ev_1","delta":"abc"}`)

	ev, err := decodeServerEvent(raw)
	require.NoError(t, err)
	require.Equal(t, "response.audio.delta", ev.Type)
	require.Equal(t, "ev_1", ev.EventID)
	require.Equal(t, "abc", ev.Delta)
}

func TestAudioMessagesMarshal(t *testing.T) {
	appendMsg, err := json.Marshal(audioAppend{Type: msgAudioAppend, Audio: "abc"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"input_audio_buffer.append","audio":"abc"}`, string(appendMsg))

	commitMsg, err := json.Marshal(audioCommit{Type: msgAudioCommit})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"input_audio_buffer.commit"}`, string(commitMsg))
}
