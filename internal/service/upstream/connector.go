package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hanlinwu/studypal/backend/internal/config"
)

// State tracks the upstream channel lifecycle.
type State int

const (
	StateConnecting State = iota
	StateReady
	StateClosed
	StateErrored
)

// itemPersistDelay is the pause between creating an image-bearing item and
// requesting generation. The upstream offers no persistence ack, so this is
// a workaround for a race, not an ordering guarantee.
const itemPersistDelay = 100 * time.Millisecond

// ErrNotReady is returned when a turn is submitted before the configuration
// acknowledgment arrived, or after the channel went away.
var ErrNotReady = errors.New("upstream channel is not ready")

// EventSink receives upstream-originated events and lifecycle signals. The
// relay session implements it.
type EventSink interface {
	// Deliver forwards a client-facing event.
	Deliver(eventType string, payload map[string]any)
	// Degrade flips the session into fallback mode.
	Degrade(reason string)
	// Detach drops the channel reference without degrading.
	Detach()
}

// Connector owns one session's duplex channel to the realtime AI endpoint.
type Connector struct {
	cfg     config.RealtimeConfig
	breakID string
	conn    *websocket.Conn
	sink    EventSink
	log     zerolog.Logger

	writeMu sync.Mutex

	mu    sync.Mutex
	state State
}

// Connect mints a short-lived credential, dials the realtime endpoint,
// sends the session configuration, and blocks until the upstream
// acknowledges it or the ready timeout expires.
func Connect(ctx context.Context, cfg config.RealtimeConfig, breakID string, creds *CredentialService, sink EventSink, log zerolog.Logger) (*Connector, error) {
	secret, err := creds.Mint(ctx)
	if err != nil {
		return nil, fmt.Errorf("mint upstream credential: %w", err)
	}

	dialer := &websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+secret.Value)
	header.Set("OpenAI-Beta", "realtime=v1")

	endpoint := cfg.WSURL + "?model=" + url.QueryEscape(cfg.Model)
	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dial realtime endpoint: %w", err)
	}

	c := &Connector{
		cfg:     cfg,
		breakID: breakID,
		conn:    conn,
		sink:    sink,
		state:   StateConnecting,
		log:     log.With().Str("break_id", breakID).Str("component", "upstream").Logger(),
	}

	if err := c.writeJSON(newSessionUpdate(cfg)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send session config: %w", err)
	}

	ready := make(chan struct{})
	go c.readLoop(ready)

	select {
	case <-ready:
		return c, nil
	case <-time.After(cfg.ReadyTimeout):
		c.Close()
		return nil, fmt.Errorf("upstream config ack not received within %s", cfg.ReadyTimeout)
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
}

// Ready reports whether the configuration acknowledgment has arrived.
func (c *Connector) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateReady
}

// SendText submits a text turn: one conversation item followed by one
// generation trigger, in that order.
func (c *Connector) SendText(text string) error {
	if !c.Ready() {
		return ErrNotReady
	}
	if err := c.writeJSON(newTextItem(text)); err != nil {
		return fmt.Errorf("send text item: %w", err)
	}
	if err := c.writeJSON(newResponseCreate()); err != nil {
		return fmt.Errorf("trigger response: %w", err)
	}
	return nil
}

// SendAudio submits an audio turn: buffer append, commit, then the
// generation trigger, strictly in that order.
func (c *Connector) SendAudio(audioB64 string) error {
	if !c.Ready() {
		return ErrNotReady
	}
	if err := c.writeJSON(audioAppend{Type: msgAudioAppend, Audio: audioB64}); err != nil {
		return fmt.Errorf("append audio buffer: %w", err)
	}
	if err := c.writeJSON(audioCommit{Type: msgAudioCommit}); err != nil {
		return fmt.Errorf("commit audio buffer: %w", err)
	}
	if err := c.writeJSON(newResponseCreate()); err != nil {
		return fmt.Errorf("trigger response: %w", err)
	}
	return nil
}

// SendImageAnalysis submits a screenshot-analysis turn: one item carrying
// the instructions and both captures, then, after a short settle delay, the
// generation trigger.
func (c *Connector) SendImageAnalysis(instructions, webcamImage, screenImage string) error {
	if !c.Ready() {
		return ErrNotReady
	}
	if err := c.writeJSON(newImageAnalysisItem(instructions, webcamImage, screenImage)); err != nil {
		return fmt.Errorf("send analysis item: %w", err)
	}

	time.Sleep(itemPersistDelay)

	if err := c.writeJSON(newResponseCreate()); err != nil {
		return fmt.Errorf("trigger response: %w", err)
	}
	return nil
}

// Close shuts the upstream channel down. Safe to call more than once.
func (c *Connector) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.mu.Unlock()

	return c.conn.Close()
}

func (c *Connector) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// readLoop pumps upstream events to the sink until the channel goes away.
func (c *Connector) readLoop(ready chan<- struct{}) {
	readySignalled := false

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return
		}

		ev, err := decodeServerEvent(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("undecodable upstream event")
			continue
		}

		switch ev.Type {
		case evSessionUpdated:
			c.mu.Lock()
			if c.state == StateConnecting {
				c.state = StateReady
			}
			c.mu.Unlock()
			if !readySignalled {
				close(ready)
				readySignalled = true
			}
		case evError:
			c.mu.Lock()
			c.state = StateErrored
			c.mu.Unlock()
			message := "upstream error"
			if ev.Error != nil && ev.Error.Message != "" {
				message = ev.Error.Message
			}
			c.log.Warn().Str("code", errorCode(ev.Error)).Msg("upstream error event")
			c.sink.Degrade(message)
		case evResponseCreated:
			// No client-facing counterpart; generation progress arrives
			// through the delta events.
			c.log.Debug().Str("event_id", ev.EventID).Msg("upstream response started")
			continue
		}

		if eventType, payload, ok := projectEvent(ev); ok {
			c.sink.Deliver(eventType, payload)
		} else {
			c.log.Debug().Str("event", ev.Type).Msg("ignoring upstream event")
		}
	}
}

// handleDisconnect clears the channel on any close. Only an abnormal close
// degrades the session; a clean close lets the next turn fail over on its
// own.
func (c *Connector) handleDisconnect(err error) {
	c.mu.Lock()
	wasClosed := c.state == StateClosed
	c.state = StateClosed
	c.mu.Unlock()

	if wasClosed {
		return
	}

	c.sink.Detach()
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.log.Warn().Err(err).Msg("upstream transport error")
		c.sink.Degrade("upstream transport error")
	} else {
		c.log.Info().Msg("upstream channel closed")
	}
	c.conn.Close()
}

func errorCode(e *serverError) string {
	if e == nil {
		return ""
	}
	return e.Code
}
