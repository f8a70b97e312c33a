// internal/stream/decoder.go
package stream

import (
	"encoding/json"
	"strings"

	"github.com/user/bridgebot/internal/types"
)

// The backend's wire format is not contractually fixed frame-to-frame:
// enveloped events, bare reply records, and arrays of records all occur in
// practice. Decode runs an ordered list of strategies and the first match
// wins; a frame no strategy recognizes is dropped by the caller, not an
// error.
type decodeStrategy struct {
	name   string
	decode func(raw []byte) (*types.StreamEvent, bool)
}

var strategies = []decodeStrategy{
	{"envelope", decodeEnvelope},
	{"record", decodeRecord},
	{"record-array", decodeRecordArray},
}

// Decode classifies one candidate frame into a StreamEvent. The second
// return value is false when no strategy recognized the frame.
func Decode(frame string) (*types.StreamEvent, bool) {
	raw := []byte(frame)
	for _, s := range strategies {
		if event, ok := s.decode(raw); ok {
			return event, true
		}
	}
	return nil, false
}

// decodeEnvelope matches frames that already carry a top-level data, error,
// or done key.
func decodeEnvelope(raw []byte) (*types.StreamEvent, bool) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, false
	}

	if data, ok := envelope["data"]; ok {
		record, ok := unmarshalRecord(data)
		if !ok {
			// Enveloped records occasionally omit the author marker;
			// attribute them to the agent rather than dropping data.
			record, ok = unmarshalLenient(data)
			if !ok {
				return nil, false
			}
		}
		return &types.StreamEvent{Data: record}, true
	}
	if errRaw, ok := envelope["error"]; ok {
		return &types.StreamEvent{Err: errorText(errRaw)}, true
	}
	if _, ok := envelope["done"]; ok {
		return &types.StreamEvent{Done: true}, true
	}
	return nil, false
}

// decodeRecord matches a bare reply record: an author field plus
// non-trivial content.
func decodeRecord(raw []byte) (*types.StreamEvent, bool) {
	record, ok := unmarshalRecord(raw)
	if !ok || record.Empty() {
		return nil, false
	}
	return &types.StreamEvent{Data: record}, true
}

// decodeRecordArray matches an array whose first element is a bare record.
func decodeRecordArray(raw []byte) (*types.StreamEvent, bool) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil || len(elements) == 0 {
		return nil, false
	}
	return decodeRecord(elements[0])
}

// wireRecord accepts the field aliases seen across backend versions.
type wireRecord struct {
	AuthorType    string             `json:"authorType"`
	AuthorTypeAlt string             `json:"author_type"`
	Author        string             `json:"author"`
	Text          string             `json:"text"`
	Message       string             `json:"message"`
	Content       string             `json:"content"`
	ToolCalls     []types.ToolCall   `json:"toolCalls"`
	ToolCallsAlt  []types.ToolCall   `json:"tool_calls"`
	Attachments   []types.Attachment `json:"attachments"`
}

// unmarshalRecord decodes a reply record, coalescing wire aliases. It
// requires an author marker; records with no recognizable author are not
// records at all.
func unmarshalRecord(raw []byte) (*types.ReplyRecord, bool) {
	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, false
	}

	author := coalesce(w.AuthorType, w.AuthorTypeAlt, w.Author)
	if author == "" {
		return nil, false
	}
	return w.toRecord(types.AuthorType(strings.ToLower(author))), true
}

// unmarshalLenient decodes a reply record without an author marker,
// defaulting authorship to the agent. Trivial records still fail.
func unmarshalLenient(raw []byte) (*types.ReplyRecord, bool) {
	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, false
	}
	record := w.toRecord(types.AuthorAgent)
	if record.Empty() {
		return nil, false
	}
	return record, true
}

func (w *wireRecord) toRecord(author types.AuthorType) *types.ReplyRecord {
	record := &types.ReplyRecord{
		AuthorType:  author,
		Text:        coalesce(w.Text, w.Message, w.Content),
		ToolCalls:   w.ToolCalls,
		Attachments: w.Attachments,
	}
	if len(record.ToolCalls) == 0 {
		record.ToolCalls = w.ToolCallsAlt
	}
	return record
}

// errorText renders an error payload (string or structured) as one line.
func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
