package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/user/bridgebot/internal/types"
)

const (
	// alertPrefix marks system-authored notices so users can tell them
	// apart from agent replies.
	alertPrefix = "⚠️ "

	// fallbackText is sent when an outbound payload cannot be delivered.
	fallbackText = "failed to process response"
)

// payload is one outbound send derived from a reply record.
type payload struct {
	body string
	hint types.ContentType
}

// Dispatcher expands one backend reply record into ordered outbound sends
// on the originating conversation.
type Dispatcher struct{}

// New creates a Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Dispatch sends the record's payloads in order and returns how many were
// delivered. Records with no content produce zero sends. A send failure for
// one payload is logged and answered with a single generic fallback rather
// than aborting the rest of the record.
func (d *Dispatcher) Dispatch(ctx context.Context, conv types.Conversation, record types.ReplyRecord) int {
	sent := 0
	for _, p := range d.payloads(record) {
		if err := conv.Send(ctx, p.body, p.hint); err != nil {
			slog.Error("outbound send failed",
				"conversation", conv.ID(),
				"content_type", string(p.hint),
				"error", err,
			)
			if err := conv.Send(ctx, fallbackText, types.ContentText); err != nil {
				slog.Error("fallback send failed", "conversation", conv.ID(), "error", err)
				continue
			}
		}
		sent++
	}
	return sent
}

// payloads builds the ordered outbound sequence for a record: transaction
// requests first as structured payloads, then one textual payload carrying
// the reply text, tool-call summaries, transaction summaries, and a listing
// of any remaining attachments.
func (d *Dispatcher) payloads(record types.ReplyRecord) []payload {
	if record.Empty() {
		return nil
	}

	var out []payload
	var txSummaries []string
	var other []types.Attachment
	for _, att := range record.Attachments {
		if att.Kind != types.AttachmentTransaction {
			other = append(other, att)
			continue
		}
		tx, err := att.Transaction()
		if err != nil {
			slog.Warn("undecodable transaction attachment", "error", err)
			other = append(other, att)
			continue
		}
		out = append(out, payload{body: string(att.Payload), hint: types.ContentTransaction})
		txSummaries = append(txSummaries, summarizeTransaction(tx))
	}

	var sections []string
	if record.Text != "" {
		sections = append(sections, renderText(record.Text))
	}
	for _, call := range record.ToolCalls {
		sections = append(sections, renderToolCall(call))
	}
	sections = append(sections, txSummaries...)
	if len(other) > 0 {
		sections = append(sections, renderAttachments(other))
	}

	body := strings.TrimSpace(strings.Join(sections, "\n\n"))
	if body != "" {
		if record.AuthorType == types.AuthorSystem {
			body = alertPrefix + body
		}
		out = append(out, payload{body: body, hint: types.ContentText})
	}
	return out
}
