// internal/engine/discovery.go
package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/user/bridgebot/internal/types"
)

// seedConversations marks everything present at startup as known so only
// conversations appearing afterwards get greeted. Ids restored from the
// state file stay marked regardless of the current listing.
func (e *Engine) seedConversations(ctx context.Context) {
	convs, err := e.source.ListConversations(ctx)
	if err != nil {
		slog.Warn("could not seed conversation listing", "error", err)
		return
	}
	for _, conv := range convs {
		e.markKnown(conv.ID())
	}
	if err := e.saveKnown(); err != nil {
		slog.Warn("could not save discovery state", "error", err)
	}
	slog.Info("seeded conversations", "count", len(convs))
}

// syncConversations is one discovery iteration: re-list, diff against the
// known set, and greet what is new. A conversation is marked known before
// the greeting is attempted so a failed greeting cannot repeat on the next
// poll, and the check-and-mark is atomic so overlapping polls greet each
// conversation at most once.
func (e *Engine) syncConversations(ctx context.Context) error {
	convs, err := e.source.ListConversations(ctx)
	if err != nil {
		return err
	}
	for _, conv := range convs {
		if !e.markKnown(conv.ID()) {
			continue
		}
		if err := e.saveKnown(); err != nil {
			slog.Warn("could not save discovery state", "error", err)
		}
		slog.Info("greeting new conversation", "conversation", conv.ID(), "peer", conv.Peer())
		e.greet(ctx, conv)
	}
	return nil
}

// greet routes a synthetic greeting through the same per-message path as
// real traffic, attributed to the conversation's counterpart identity.
func (e *Engine) greet(ctx context.Context, conv types.Conversation) {
	sender := conv.Peer()
	if sender == "" {
		sender = conv.ID()
	}
	msg := types.Message{
		ID:             uuid.NewString(),
		SenderID:       sender,
		ConversationID: conv.ID(),
		ContentType:    types.ContentText,
		Text:           e.cfg.Greeting,
	}
	if err := e.handleMessage(ctx, msg); err != nil {
		slog.Error("greeting failed", "conversation", conv.ID(), "error", err)
	}
}

// markKnown inserts id into the known set, reporting whether it was new.
func (e *Engine) markKnown(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.known[id]; ok {
		return false
	}
	e.known[id] = struct{}{}
	return true
}

// KnownConversations reports the size of the greeted set.
func (e *Engine) KnownConversations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.known)
}
