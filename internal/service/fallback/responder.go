package fallback

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/hanlinwu/studypal/backend/internal/config"
	"github.com/hanlinwu/studypal/backend/internal/service/relay"
)

// personaPrompt seeds the single-turn completion with the same companion
// voice the upstream session uses.
const personaPrompt = "You are a warm, encouraging study companion chatting " +
	"with a user on a short break between study sessions. Keep replies to a " +
	"couple of sentences, stay positive, and help them return to their work " +
	"refreshed."

// cannedReplies is the last-resort pool. Selection is uniform; this path
// never fails.
var cannedReplies = []string{
	"Nice work getting this far. Take a breath, stretch a little, and let your mind wander for a minute.",
	"Breaks are part of studying too. What was the trickiest thing you worked on just now?",
	"You're putting in real effort today. A short walk or a glass of water can do wonders before the next round.",
	"Good timing for a pause. When you go back, try starting with the easiest item to build momentum.",
	"Stepping away is how the learning settles in. I'm here if you want to chat for a bit.",
	"Solid session. Close your eyes for ten seconds, roll your shoulders, and you'll come back sharper.",
}

// AnalysisResult is the canned screenshot-analysis reply used when no
// upstream is available.
type AnalysisResult struct {
	Text        string
	Suggestions []string
}

// Responder produces replies when the realtime upstream is unavailable. It
// never blocks a session on an error: every path bottoms out in the canned
// pool.
type Responder struct {
	chain compose.Runnable[map[string]any, *schema.Message]
	log   zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewResponder builds the responder. When fallback model credentials are
// configured the text path runs a single-turn completion chain; otherwise,
// or when the chain cannot be built, only the canned pool is used.
func NewResponder(ctx context.Context, cfg config.FallbackConfig, log zerolog.Logger) *Responder {
	r := &Responder{
		log: log.With().Str("component", "fallback").Logger(),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if !cfg.Enabled() {
		r.log.Info().Msg("no fallback model configured, canned replies only")
		return r
	}

	chain, err := buildChain(ctx, cfg)
	if err != nil {
		r.log.Warn().Err(err).Msg("fallback model unavailable, canned replies only")
		return r
	}

	r.chain = chain
	r.log.Info().Str("model", cfg.Model).Msg("fallback completion model ready")
	return r
}

func buildChain(ctx context.Context, cfg config.FallbackConfig) (compose.Runnable[map[string]any, *schema.Message], error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("create fallback chat model: %w", err)
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile fallback chain: %w", err)
	}
	return runnable, nil
}

// ModelEnabled reports whether the completion chain is available.
func (r *Responder) ModelEnabled() bool {
	return r.chain != nil
}

// TextReply answers a text turn. The completion chain is tried first when
// configured; any failure degrades to the canned pool.
func (r *Responder) TextReply(ctx context.Context, history []relay.Turn, userText string) string {
	if r.chain == nil {
		return r.canned()
	}

	input := map[string]any{
		"system":  personaPrompt,
		"history": historyMessages(history),
		"query":   userText,
	}

	response, err := r.chain.Invoke(ctx, input)
	if err != nil {
		r.log.Warn().Err(err).Msg("fallback completion failed")
		return r.canned()
	}
	if strings.TrimSpace(response.Content) == "" {
		return r.canned()
	}
	return response.Content
}

// AnalysisReply answers a screenshot-analysis turn. There is no secondary
// vision capability, so the reply is fixed.
func (r *Responder) AnalysisReply() AnalysisResult {
	return AnalysisResult{
		Text: "I couldn't take a close look this time, but you've clearly been at it for a while. How is the material treating you?",
		Suggestions: []string{
			"Stand up and stretch for thirty seconds",
			"Note the one idea you want to remember from this session",
			"Drink some water before the next round",
		},
	}
}

// CannedReply returns one reply from the canned pool.
func (r *Responder) CannedReply() string {
	return r.canned()
}

func (r *Responder) canned() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cannedReplies[r.rng.Intn(len(cannedReplies))]
}

func historyMessages(history []relay.Turn) []*schema.Message {
	if len(history) == 0 {
		return nil
	}

	messages := make([]*schema.Message, 0, len(history))
	for _, turn := range history {
		switch turn.Role {
		case "user":
			messages = append(messages, schema.UserMessage(turn.Content))
		case "assistant":
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return messages
}
