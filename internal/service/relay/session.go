package relay

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// historyCap bounds the fallback conversation history. Trimming removes a
// user+assistant pair so the transcript stays aligned.
const historyCap = 20

// ClientConn is the subset of the browser websocket the session writes to.
type ClientConn interface {
	WriteJSON(v any) error
	Close() error
}

// UpstreamLink is the session's view of the AI-side duplex channel.
type UpstreamLink interface {
	Ready() bool
	SendText(text string) error
	SendAudio(audioB64 string) error
	SendImageAnalysis(instructions, webcamImage, screenImage string) error
	Close() error
}

// Turn is one entry of the fallback conversation history.
type Turn struct {
	Role    string
	Content string
}

// Session binds one break's browser connection to its upstream channel and
// per-break conversation state.
type Session struct {
	BreakID string

	writeMu sync.Mutex
	client  ClientConn

	mu           sync.Mutex
	upstream     UpstreamLink
	fallback     bool
	history      []Turn
	lastAnalysis time.Time
	closed       bool

	log zerolog.Logger
}

// NewSession wraps a freshly upgraded client connection.
func NewSession(breakID string, client ClientConn, log zerolog.Logger) *Session {
	return &Session{
		BreakID: breakID,
		client:  client,
		log:     log.With().Str("break_id", breakID).Logger(),
	}
}

// Send writes one client-facing event as {type, ..., timestamp}. Sending on
// a closed session is a no-op.
func (s *Session) Send(eventType string, payload map[string]any) error {
	msg := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		msg[k] = v
	}
	msg["type"] = eventType
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}

	if err := s.client.WriteJSON(msg); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("client write failed")
		return err
	}
	return nil
}

// SendError surfaces a protocol or validation problem without closing the
// connection.
func (s *Session) SendError(message string) {
	_ = s.Send("error", map[string]any{"message": message})
}

// Deliver forwards an upstream-originated event to the client.
func (s *Session) Deliver(eventType string, payload map[string]any) {
	_ = s.Send(eventType, payload)
}

// Degrade switches the session into fallback mode. The flag is sticky for
// the session's lifetime.
func (s *Session) Degrade(reason string) {
	s.mu.Lock()
	already := s.fallback
	s.fallback = true
	s.mu.Unlock()

	if !already {
		s.log.Warn().Str("reason", reason).Msg("session degraded to fallback mode")
	}
}

// Detach drops the upstream channel reference without changing fallback
// mode. A later turn will discover the missing channel and fail over.
func (s *Session) Detach() {
	s.mu.Lock()
	s.upstream = nil
	s.mu.Unlock()
}

// InFallback reports whether the session has been degraded.
func (s *Session) InFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback
}

// SetUpstream attaches the established upstream channel. It reports false
// when the session closed while the channel was being established, in which
// case the caller owns closing the link.
func (s *Session) SetUpstream(link UpstreamLink) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.upstream = link
	return true
}

// Upstream returns the attached channel, or nil.
func (s *Session) Upstream() UpstreamLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstream
}

// AppendExchange records a user line and the assistant reply, trimming the
// oldest pair once the cap is exceeded.
func (s *Session) AppendExchange(userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history,
		Turn{Role: "user", Content: userText},
		Turn{Role: "assistant", Content: assistantText},
	)
	for len(s.history) > historyCap {
		s.history = s.history[2:]
	}
}

// HistoryTurns returns a copy of the fallback conversation history.
func (s *Session) HistoryTurns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// AnalysisAllowed checks the screenshot de-duplication guard.
func (s *Session) AnalysisAllowed(now time.Time, minInterval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAnalysis.IsZero() || now.Sub(s.lastAnalysis) >= minInterval
}

// MarkAnalysis records the acceptance time of a screenshot-analysis turn.
func (s *Session) MarkAnalysis(now time.Time) {
	s.mu.Lock()
	s.lastAnalysis = now
	s.mu.Unlock()
}

// Close tears the session down: the upstream channel first, then the client
// connection. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	link := s.upstream
	s.upstream = nil
	s.mu.Unlock()

	if link != nil {
		if err := link.Close(); err != nil {
			s.log.Debug().Err(err).Msg("upstream close failed")
		}
	}
	if err := s.client.Close(); err != nil {
		s.log.Debug().Err(err).Msg("client close failed")
	}
}
