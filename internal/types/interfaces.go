// internal/types/interfaces.go
package types

import (
	"context"
)

// Conversation is one chat on the messaging network.
type Conversation interface {
	// ID is the network-level conversation identifier.
	ID() string
	// Peer is a representative counterpart identity for the conversation.
	Peer() string
	// Send delivers one outbound payload. The hint selects the wire
	// content encoding; transports that cannot encode a hint natively
	// fall back to a textual rendering.
	Send(ctx context.Context, payload string, hint ContentType) error
}

// MessageSource is the inbound side of the messaging network: an ordered
// stream of messages plus conversation lookup.
type MessageSource interface {
	// StreamMessages blocks, invoking handle for each inbound message in
	// arrival order, until the stream fails or ctx is cancelled. A nil
	// return means ctx was cancelled; any other return is a stream fault
	// the caller may retry.
	StreamMessages(ctx context.Context, handle func(context.Context, Message) error) error

	// ListConversations returns the currently known conversations.
	ListConversations(ctx context.Context) ([]Conversation, error)

	// ConversationByID resolves a single conversation.
	ConversationByID(ctx context.Context, id string) (Conversation, error)

	// SelfID is the transport identity of this process, used to filter
	// out messages authored by the agent itself.
	SelfID() string
}
