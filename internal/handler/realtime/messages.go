package realtime

// Inbound client message types. image_analysis is a legacy alias of
// screenshot_analysis kept for older clients.
const (
	typeTextMessage        = "text_message"
	typeAudioMessage       = "audio_message"
	typeScreenshotAnalysis = "screenshot_analysis"
	typeImageAnalysis      = "image_analysis"
	typePing               = "ping"
)

// clientEnvelope discriminates inbound messages before the type-specific
// payload is decoded.
type clientEnvelope struct {
	Type string `json:"type"`
}

// textMessage carries one typed user turn. MaterialID optionally points at
// a study material to discuss.
type textMessage struct {
	Content    string `json:"content" validate:"required"`
	MaterialID string `json:"materialId"`
}

// audioMessage carries one recorded utterance as base64.
type audioMessage struct {
	AudioData string `json:"audioData" validate:"required"`
	Format    string `json:"format"`
}

// studyContext describes what the user was working on before the break.
type studyContext struct {
	StudyContent      string `json:"studyContent"`
	ElapsedTime       int    `json:"elapsedTime"`
	IsRefreshAnalysis bool   `json:"isRefreshAnalysis"`
}

// screenshotAnalysis carries the camera capture and the screen capture as
// data URLs. Both are required.
type screenshotAnalysis struct {
	WebcamImage  string       `json:"webcamImage" validate:"required"`
	ScreenImage  string       `json:"screenImage" validate:"required"`
	StudyContext studyContext `json:"studyContext"`
}
