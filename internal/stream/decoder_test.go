package stream

import (
	"testing"

	"github.com/user/bridgebot/internal/types"
)

func TestDecodeEnvelopeData(t *testing.T) {
	event, ok := Decode(`{"data":{"authorType":"agent","text":"hi"}}`)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if event.Data == nil || event.Data.Text != "hi" || event.Data.AuthorType != types.AuthorAgent {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestDecodeEnvelopeDataWithoutAuthor(t *testing.T) {
	event, ok := Decode(`{"data":{"text":"hi"}}`)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if event.Data == nil || event.Data.AuthorType != types.AuthorAgent {
		t.Errorf("expected agent-attributed record, got %+v", event)
	}
}

func TestDecodeEnvelopeError(t *testing.T) {
	event, ok := Decode(`{"error":"rate limited"}`)
	if !ok || event.Err != "rate limited" {
		t.Errorf("expected error event, got %+v ok=%v", event, ok)
	}

	// Structured error payloads come through as their raw rendering.
	event, ok = Decode(`{"error":{"code":429}}`)
	if !ok || event.Err == "" {
		t.Errorf("expected structured error text, got %+v ok=%v", event, ok)
	}
}

func TestDecodeEnvelopeDone(t *testing.T) {
	event, ok := Decode(`{"done":true}`)
	if !ok || !event.Done {
		t.Errorf("expected done event, got %+v ok=%v", event, ok)
	}
}

func TestDecodeBareRecord(t *testing.T) {
	event, ok := Decode(`{"authorType":"skill","text":"","toolCalls":[{"name":"swap"}]}`)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if event.Data == nil || event.Data.AuthorType != types.AuthorSkill || len(event.Data.ToolCalls) != 1 {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestDecodeBareRecordAliases(t *testing.T) {
	event, ok := Decode(`{"author_type":"Agent","message":"aliased","tool_calls":[{"name":"x"}]}`)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if event.Data.AuthorType != types.AuthorAgent {
		t.Errorf("expected normalized author, got %q", event.Data.AuthorType)
	}
	if event.Data.Text != "aliased" || len(event.Data.ToolCalls) != 1 {
		t.Errorf("unexpected record %+v", event.Data)
	}
}

func TestDecodeBareRecordTrivialRejected(t *testing.T) {
	// An author marker with no content is not a data event.
	if event, ok := Decode(`{"authorType":"agent","text":""}`); ok {
		t.Errorf("expected trivial record rejected, got %+v", event)
	}
}

func TestDecodeRecordArray(t *testing.T) {
	event, ok := Decode(`[{"authorType":"agent","text":"first"},{"authorType":"agent","text":"second"}]`)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if event.Data == nil || event.Data.Text != "first" {
		t.Errorf("expected first element wrapped, got %+v", event)
	}
}

func TestDecodeUnrecognized(t *testing.T) {
	for _, frame := range []string{
		"not json at all",
		`{"unrelated":"object"}`,
		`[]`,
		`[{"no":"author"}]`,
		`42`,
	} {
		if event, ok := Decode(frame); ok {
			t.Errorf("frame %q: expected no event, got %+v", frame, event)
		}
	}
}

func TestDecodeEnvelopeWinsOverRecord(t *testing.T) {
	// A frame with both an envelope key and record-ish fields decodes as
	// an envelope: first strategy wins.
	event, ok := Decode(`{"done":true,"authorType":"agent","text":"x"}`)
	if !ok || !event.Done {
		t.Errorf("expected done event, got %+v ok=%v", event, ok)
	}
}
