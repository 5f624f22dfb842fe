package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hanlinwu/studypal/backend/internal/config"
	"github.com/hanlinwu/studypal/backend/internal/model/material"
	"github.com/hanlinwu/studypal/backend/internal/service/fallback"
	"github.com/hanlinwu/studypal/backend/internal/service/relay"
	"github.com/hanlinwu/studypal/backend/internal/service/transcribe"
	"github.com/hanlinwu/studypal/backend/internal/service/upstream"
	"github.com/hanlinwu/studypal/backend/pkg/utils"
)

const (
	// analysisMinInterval is the per-session de-duplication window for
	// screenshot-analysis turns.
	analysisMinInterval = 5 * time.Second

	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Handler terminates the browser's duplex connection for a study break and
// relays turns to the upstream AI channel or the fallback responder.
type Handler struct {
	cfg         config.RealtimeConfig
	registry    *relay.Registry
	creds       *upstream.CredentialService
	responder   *fallback.Responder
	transcriber *transcribe.Client
	materials   material.Store
	upgrader    websocket.Upgrader
	validate    *validator.Validate
	log         zerolog.Logger
}

// NewHandler wires the relay endpoint.
func NewHandler(cfg config.RealtimeConfig, registry *relay.Registry, creds *upstream.CredentialService, responder *fallback.Responder, transcriber *transcribe.Client, materials material.Store, log zerolog.Logger) *Handler {
	return &Handler{
		cfg:         cfg,
		registry:    registry,
		creds:       creds,
		responder:   responder,
		transcriber: transcriber,
		materials:   materials,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		validate: validator.New(),
		log:      log.With().Str("component", "realtime").Logger(),
	}
}

// RegisterRoutes mounts the relay websocket and the token endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/realtime/{breakID}", h.handleWebSocket)
	r.Post("/realtime/token", h.handleMintToken)
}

// handleMintToken lets a browser client negotiate its own upstream channel
// (the WebRTC path) with a short-lived credential.
func (h *Handler) handleMintToken(w http.ResponseWriter, r *http.Request) {
	cred, err := h.creds.Mint(r.Context())
	if errors.Is(err, upstream.ErrNoCredential) {
		utils.RespondError(w, http.StatusServiceUnavailable, "realtime upstream not configured")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("credential mint failed")
		utils.RespondError(w, http.StatusBadGateway, "failed to mint realtime credential")
		return
	}

	utils.RespondJSON(w, http.StatusOK, cred)
}

// handleWebSocket owns one break's client connection for its lifetime.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	breakID := strings.TrimSpace(chi.URLParam(r, "breakID"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	if breakID == "" {
		// Protocol violation: no session is created.
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "break id required")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		conn.Close()
		return
	}

	sess := relay.NewSession(breakID, conn, h.log)
	h.registry.Add(sess)
	defer h.registry.Release(sess)

	h.log.Info().Str("break_id", breakID).Msg("client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	go h.pingLoop(ctx, conn)

	_ = sess.Send("connected", map[string]any{"breakId": breakID})

	if h.cfg.Enabled() {
		// Non-blocking: turns route through the fallback responder until
		// the upstream signals ready.
		go h.establishUpstream(ctx, sess)
	} else {
		sess.Degrade("no upstream credential configured")
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Str("break_id", breakID).Msg("client read error")
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.dispatch(ctx, sess, data)
	}
}

// establishUpstream runs beside the read loop so the client channel is
// usable immediately.
func (h *Handler) establishUpstream(ctx context.Context, sess *relay.Session) {
	link, err := upstream.Connect(ctx, h.cfg, sess.BreakID, h.creds, sess, h.log)
	if err != nil {
		sess.Degrade("upstream connect failed: " + err.Error())
		return
	}

	if !sess.SetUpstream(link) {
		// Client went away while we were connecting.
		link.Close()
	}
}

func (h *Handler) dispatch(ctx context.Context, sess *relay.Session, data []byte) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		sess.SendError("invalid message payload")
		return
	}

	switch env.Type {
	case typeTextMessage:
		h.handleText(ctx, sess, data)
	case typeAudioMessage:
		h.handleAudio(ctx, sess, data)
	case typeScreenshotAnalysis, typeImageAnalysis:
		h.handleScreenshotAnalysis(sess, data)
	case typePing:
		_ = sess.Send("pong", map[string]any{})
	default:
		sess.SendError("unknown message type: " + env.Type)
	}
}

func (h *Handler) handleText(ctx context.Context, sess *relay.Session, data []byte) {
	var msg textMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		sess.SendError("invalid text payload")
		return
	}
	if err := h.validate.Struct(msg); err != nil {
		sess.SendError("content is required")
		return
	}

	content := msg.Content
	if msg.MaterialID != "" {
		mat, ok, err := h.materials.FindByID(msg.MaterialID)
		if err != nil {
			h.log.Error().Err(err).Str("material_id", msg.MaterialID).Msg("material lookup failed")
			sess.SendError("material lookup failed")
			return
		}
		if !ok {
			sess.SendError("material not found: " + msg.MaterialID)
			return
		}
		content = materialContext(mat, msg.Content)
	}

	if link := sess.Upstream(); link != nil && link.Ready() && !sess.InFallback() {
		err := link.SendText(content)
		if err == nil {
			return
		}
		sess.Degrade("upstream text send failed: " + err.Error())
	}

	h.fallbackText(ctx, sess, content)
}

func (h *Handler) fallbackText(ctx context.Context, sess *relay.Session, content string) {
	reply := h.responder.TextReply(ctx, sess.HistoryTurns(), content)
	sess.AppendExchange(content, reply)
	_ = sess.Send("ai_response", map[string]any{"text": reply})
}

func (h *Handler) handleAudio(ctx context.Context, sess *relay.Session, data []byte) {
	var msg audioMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		sess.SendError("invalid audio payload")
		return
	}
	if err := h.validate.Struct(msg); err != nil {
		sess.SendError("audioData is required")
		return
	}

	if link := sess.Upstream(); link != nil && link.Ready() && !sess.InFallback() {
		err := link.SendAudio(msg.AudioData)
		if err == nil {
			return
		}
		sess.Degrade("upstream audio send failed: " + err.Error())
	}

	h.fallbackAudio(ctx, sess, msg)
}

// fallbackAudio transcribes the utterance and treats the result as a text
// turn. Without a transcription capability the reply comes straight from
// the canned pool.
func (h *Handler) fallbackAudio(ctx context.Context, sess *relay.Session, msg audioMessage) {
	audio, err := base64.StdEncoding.DecodeString(msg.AudioData)
	if err != nil {
		sess.SendError("invalid audio encoding")
		return
	}

	if !h.transcriber.Enabled() {
		_ = sess.Send("ai_response", map[string]any{"text": h.responder.CannedReply()})
		return
	}

	text, err := h.transcriber.Transcribe(ctx, audio, msg.Format)
	if err != nil {
		h.log.Warn().Err(err).Str("break_id", sess.BreakID).Msg("fallback transcription failed")
		sess.SendError("transcription failed")
		_ = sess.Send("ai_response", map[string]any{"text": h.responder.CannedReply()})
		return
	}
	if strings.TrimSpace(text) == "" {
		_ = sess.Send("ai_response", map[string]any{"text": h.responder.CannedReply()})
		return
	}

	_ = sess.Send("transcription_completed", map[string]any{"transcript": text})
	h.fallbackText(ctx, sess, text)
}

func (h *Handler) handleScreenshotAnalysis(sess *relay.Session, data []byte) {
	now := time.Now()
	if !sess.AnalysisAllowed(now, analysisMinInterval) {
		// Deliberate no-op: no upstream item, no client event.
		h.log.Debug().Str("break_id", sess.BreakID).Msg("screenshot analysis de-duplicated")
		return
	}

	var msg screenshotAnalysis
	if err := json.Unmarshal(data, &msg); err != nil {
		sess.SendError("invalid screenshot payload")
		return
	}
	if err := h.validate.Struct(msg); err != nil {
		sess.SendError("webcamImage and screenImage are required")
		return
	}

	sess.MarkAnalysis(now)
	_ = sess.Send("screenshot_analysis_started", map[string]any{})

	instructions := analysisInstructions(msg.StudyContext)

	if link := sess.Upstream(); link != nil && link.Ready() && !sess.InFallback() {
		err := link.SendImageAnalysis(instructions, msg.WebcamImage, msg.ScreenImage)
		if err == nil {
			return
		}
		sess.Degrade("upstream analysis send failed: " + err.Error())
	}

	result := h.responder.AnalysisReply()
	_ = sess.Send("screenshot_analysis_result", map[string]any{
		"analysis":    result.Text,
		"suggestions": result.Suggestions,
	})
}

// analysisInstructions turns the study context into the instructional text
// that precedes the two captures.
func analysisInstructions(sc studyContext) string {
	subject := sc.StudyContent
	if subject == "" {
		subject = "their study material"
	}

	base := fmt.Sprintf(
		"The first image is the user's webcam, the second is their screen. "+
			"They have been studying %s for %d minutes and are now on a break. "+
			"Comment warmly on how they seem to be doing and offer one or two "+
			"concrete suggestions for the rest of the session.",
		subject, sc.ElapsedTime,
	)
	if sc.IsRefreshAnalysis {
		base += " This is a refresh of an earlier look, so focus on what changed."
	}
	return base
}

func materialContext(mat material.Material, userText string) string {
	return fmt.Sprintf(
		"The user wants to talk about the study material %q:\n%s\n\nUser message: %s",
		mat.Name, mat.Content, userText,
	)
}

// pingLoop keeps the client connection alive.
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
