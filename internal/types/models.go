// internal/types/models.go
package types

import (
	"encoding/json"
	"fmt"
)

// AuthorType identifies which part of the backend produced a reply record.
type AuthorType string

const (
	AuthorAgent  AuthorType = "agent"
	AuthorSystem AuthorType = "system"
	AuthorSkill  AuthorType = "skill"
	AuthorAPI    AuthorType = "api-generic"
)

// ContentType hints how an outbound payload should be encoded on the wire.
type ContentType string

const (
	ContentText        ContentType = "text"
	ContentTransaction ContentType = "transaction"
)

// Message is one inbound unit from the messaging network.
type Message struct {
	ID             string      `json:"id"`
	SenderID       string      `json:"sender_id"`
	ConversationID string      `json:"conversation_id"`
	ContentType    ContentType `json:"content_type"`
	Text           string      `json:"text"`
}

// ToolCall is one structured skill invocation reported by the backend.
// Succeeded is tri-state: nil means the backend did not report an outcome.
type ToolCall struct {
	Name            string         `json:"name"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	Succeeded       *bool          `json:"succeeded,omitempty"`
	ErrorMessage    string         `json:"errorMessage,omitempty"`
	ResponseSummary string         `json:"responseSummary,omitempty"`
}

// Failed reports whether the backend explicitly marked the call as failed.
func (t *ToolCall) Failed() bool {
	return t.Succeeded != nil && !*t.Succeeded
}

// AttachmentKind classifies an attachment's payload shape.
type AttachmentKind string

const (
	AttachmentLink        AttachmentKind = "link"
	AttachmentImage       AttachmentKind = "image"
	AttachmentFile        AttachmentKind = "file"
	AttachmentTransaction AttachmentKind = "transaction-request"
)

// Attachment is one structured artifact on a reply record. Payload is
// kind-dependent and kept raw until a consumer needs it.
type Attachment struct {
	Kind    AttachmentKind  `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TransactionCall is one call in a transaction-request batch.
type TransactionCall struct {
	To    string `json:"to"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
}

// TransactionPayload is the decoded payload of a transaction-request
// attachment: a ready-to-send batch of calls.
type TransactionPayload struct {
	ChainID     string            `json:"chainId,omitempty"`
	Description string            `json:"description,omitempty"`
	Calls       []TransactionCall `json:"calls"`
}

// Transaction decodes the attachment payload as a transaction-request batch.
func (a *Attachment) Transaction() (*TransactionPayload, error) {
	if a.Kind != AttachmentTransaction {
		return nil, fmt.Errorf("attachment kind %q is not a transaction request", a.Kind)
	}
	var tx TransactionPayload
	if err := json.Unmarshal(a.Payload, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction payload: %w", err)
	}
	return &tx, nil
}

// ReplyRecord is one unit of backend output attributable to one author.
type ReplyRecord struct {
	AuthorType  AuthorType   `json:"authorType"`
	Text        string       `json:"text"`
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Empty reports whether the record carries no content at all. Empty records
// are dropped rather than dispatched.
func (r *ReplyRecord) Empty() bool {
	return r.Text == "" && len(r.ToolCalls) == 0 && len(r.Attachments) == 0
}

// StreamEvent is the transient decode result for one stream frame. Exactly
// one of Data, Err, or Done is populated.
type StreamEvent struct {
	Data *ReplyRecord
	Err  string
	Done bool
}
