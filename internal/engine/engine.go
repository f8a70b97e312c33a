// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/user/bridgebot/internal/dispatch"
	"github.com/user/bridgebot/internal/types"
)

const noResponseNotice = "The agent returned no response. Please try again."

// Backend is the streaming side of the AI backend the engine talks to.
type Backend interface {
	StreamReply(ctx context.Context, userKey, text string) <-chan types.ReplyRecord
}

// Config holds the engine's tunables.
type Config struct {
	// AgentAddress is the backend-reported wallet address; inbound
	// messages authored by it are filtered out.
	AgentAddress string

	// Greeting is the synthetic text routed through the message path for
	// newly discovered conversations. Empty selects the default.
	Greeting string

	// DiscoveryInterval is the conversation re-listing cadence.
	DiscoveryInterval time.Duration

	// StateFile persists the greeted-conversation set across restarts.
	// Empty keeps the set in memory only, accepting re-greets.
	StateFile string

	// MaxAttempts and RetryDelay bound the message-stream supervision
	// loop. Exhausting the budget is fatal to the process.
	MaxAttempts int
	RetryDelay  time.Duration

	// Model selects the tokenizer for the inbound token ceiling;
	// MaxInputTokens of zero disables clamping.
	Model          string
	MaxInputTokens int
}

const defaultGreeting = "Hi! I'm an onchain agent. Ask me anything to get started."

// Engine is the top-level control loop: it supervises the inbound message
// stream, runs the conversation-discovery poll, and moves each unit of work
// through the backend and dispatcher.
type Engine struct {
	source     types.MessageSource
	backend    Backend
	dispatcher *dispatch.Dispatcher
	cfg        Config

	tokenizer *tiktoken.Tiktoken

	mu    sync.Mutex
	known map[string]struct{}

	// attempts counts consecutive message-stream faults. Successful
	// processing of any unit resets it so a long healthy run is not
	// penalized by an old failure.
	attempts atomic.Int32
}

// New creates an Engine. The tokenizer is initialized only when an input
// ceiling is configured.
func New(source types.MessageSource, backend Backend, dispatcher *dispatch.Dispatcher, cfg Config) (*Engine, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 6
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = 30 * time.Second
	}
	if cfg.Greeting == "" {
		cfg.Greeting = defaultGreeting
	}

	e := &Engine{
		source:     source,
		backend:    backend,
		dispatcher: dispatcher,
		cfg:        cfg,
		known:      make(map[string]struct{}),
	}

	if cfg.MaxInputTokens > 0 {
		enc, err := tiktoken.EncodingForModel(cfg.Model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
			if err != nil {
				return nil, fmt.Errorf("get tokenizer: %w", err)
			}
		}
		e.tokenizer = enc
	}
	return e, nil
}

// Run blocks until the message-stream retry budget is exhausted or ctx is
// cancelled. The discovery poll runs alongside on a cron schedule and is
// best-effort: its failures are logged and swallowed.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.loadKnown(); err != nil {
		slog.Warn("could not load discovery state", "error", err)
	}
	e.seedConversations(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.superviseStream(ctx)
	})

	cr := cron.New()
	_, err := cr.AddFunc(fmt.Sprintf("@every %s", e.cfg.DiscoveryInterval), func() {
		if err := e.syncConversations(ctx); err != nil {
			slog.Warn("conversation discovery failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule discovery poll: %w", err)
	}
	cr.Start()
	defer cr.Stop()

	return g.Wait()
}

// superviseStream keeps the message subscription alive with a fixed-delay,
// budgeted retry loop. Exhausting the budget returns an error, which the
// caller treats as process-fatal.
func (e *Engine) superviseStream(ctx context.Context) error {
	for {
		err := e.source.StreamMessages(ctx, e.handleMessage)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			// Clean end of stream without cancellation: shutdown.
			return nil
		}

		attempts := e.attempts.Add(1)
		slog.Error("message stream faulted",
			"attempt", attempts,
			"max_attempts", e.cfg.MaxAttempts,
			"error", err,
		)
		if int(attempts) >= e.cfg.MaxAttempts {
			return fmt.Errorf("message stream failed after %d attempts: %w", attempts, err)
		}

		select {
		case <-time.After(e.cfg.RetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleMessage processes one inbound unit. Failures are logged, answered
// on the conversation where possible, and never allowed to fault the
// stream: a conversation-reply failure must not crash the engine.
func (e *Engine) handleMessage(ctx context.Context, msg types.Message) error {
	if e.skip(msg) {
		return nil
	}

	conv, err := e.source.ConversationByID(ctx, msg.ConversationID)
	if err != nil {
		slog.Error("could not resolve conversation", "conversation", msg.ConversationID, "error", err)
		return nil
	}

	e.process(ctx, conv, msg.SenderID, msg.Text)
	e.attempts.Store(0)
	return nil
}

// skip filters self-authored and non-text units.
func (e *Engine) skip(msg types.Message) bool {
	if strings.EqualFold(msg.SenderID, e.source.SelfID()) {
		return true
	}
	if e.cfg.AgentAddress != "" && strings.EqualFold(msg.SenderID, e.cfg.AgentAddress) {
		return true
	}
	if msg.ContentType != types.ContentText || strings.TrimSpace(msg.Text) == "" {
		return true
	}
	return false
}

// process streams the backend's reply for one message and dispatches each
// record in arrival order. When nothing gets dispatched the user still
// receives a notice instead of silence.
func (e *Engine) process(ctx context.Context, conv types.Conversation, userKey, text string) {
	text = e.clampInput(text)

	dispatched := 0
	for record := range e.backend.StreamReply(ctx, userKey, text) {
		dispatched += e.dispatcher.Dispatch(ctx, conv, record)
	}
	if dispatched == 0 {
		if err := conv.Send(ctx, noResponseNotice, types.ContentText); err != nil {
			slog.Error("could not send no-response notice", "conversation", conv.ID(), "error", err)
		}
	}
}

// clampInput truncates oversize inbound text to the configured model-token
// budget before it is forwarded to the backend.
func (e *Engine) clampInput(text string) string {
	if e.tokenizer == nil {
		return text
	}
	tokens := e.tokenizer.Encode(text, nil, nil)
	if len(tokens) <= e.cfg.MaxInputTokens {
		return text
	}
	slog.Warn("truncating oversize inbound message",
		"tokens", len(tokens),
		"max_tokens", e.cfg.MaxInputTokens,
	)
	return e.tokenizer.Decode(tokens[:e.cfg.MaxInputTokens])
}
