package stream

import (
	"reflect"
	"testing"

	"github.com/user/bridgebot/internal/types"
)

func kindOf(event *types.StreamEvent) string {
	switch {
	case event.Done:
		return "done"
	case event.Err != "":
		return "error:" + event.Err
	default:
		return "data:" + event.Data.Text
	}
}

// feedAll runs a chunked stream through a fresh extractor and returns every
// frame, including the end-of-stream flush.
func feedAll(chunks [][]byte) []string {
	ex := NewFrameExtractor()
	var frames []string
	for _, chunk := range chunks {
		frames = append(frames, ex.Feed(chunk)...)
	}
	if frame, ok := ex.Flush(); ok {
		frames = append(frames, frame)
	}
	return frames
}

func TestExtractorSSELines(t *testing.T) {
	ex := NewFrameExtractor()
	frames := ex.Feed([]byte("data: {\"a\":1}\n\ndata: {\"b\":2}\n"))
	want := []string{`{"a":1}`, `{"b":2}`}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("expected %v, got %v", want, frames)
	}
}

func TestExtractorSkipsSentinels(t *testing.T) {
	ex := NewFrameExtractor()
	frames := ex.Feed([]byte("data: [DONE]\ndata: null\ndata:\n"))
	if len(frames) != 0 {
		t.Errorf("expected no frames, got %v", frames)
	}
}

func TestExtractorBareJSONLine(t *testing.T) {
	ex := NewFrameExtractor()
	frames := ex.Feed([]byte("{\"x\":true}\n"))
	if len(frames) != 1 || frames[0] != `{"x":true}` {
		t.Errorf("expected bare object frame, got %v", frames)
	}
}

func TestExtractorSalvagesEmbeddedObject(t *testing.T) {
	ex := NewFrameExtractor()
	frames := ex.Feed([]byte("event: message {\"x\":1} trailing\n"))
	if len(frames) != 1 || frames[0] != `{"x":1}` {
		t.Errorf("expected embedded object, got %v", frames)
	}
}

func TestExtractorDropsNoise(t *testing.T) {
	ex := NewFrameExtractor()
	frames := ex.Feed([]byte("retry: 3000\n: keepalive\n\n"))
	if len(frames) != 0 {
		t.Errorf("expected noise dropped, got %v", frames)
	}
}

func TestExtractorEmitsUnterminatedFinalObject(t *testing.T) {
	ex := NewFrameExtractor()
	// No trailing newline: a complete retained object must come out
	// immediately, not wait for a newline that never arrives.
	frames := ex.Feed([]byte(`{"tail":1}`))
	if len(frames) != 1 || frames[0] != `{"tail":1}` {
		t.Errorf("expected immediate emit, got %v", frames)
	}
	if frame, ok := ex.Flush(); ok {
		t.Errorf("expected empty flush, got %q", frame)
	}
}

func TestExtractorFlushSalvagesRemainder(t *testing.T) {
	ex := NewFrameExtractor()
	if frames := ex.Feed([]byte("data: {\"a\":")); len(frames) != 0 {
		t.Fatalf("expected no frames mid-line, got %v", frames)
	}
	ex.Feed([]byte("1}"))
	// The SSE line never got its newline; flush must still recover it.
	frame, ok := ex.Flush()
	if !ok || frame != `{"a":1}` {
		t.Errorf("expected flushed frame, got %q ok=%v", frame, ok)
	}
}

func TestExtractorChunkBoundaryInvariance(t *testing.T) {
	full := "data: {\"authorType\":\"agent\",\"text\":\"one\"}\n\n" +
		"log line without payload\n" +
		"{\"authorType\":\"skill\",\"text\":\"two\"}\n" +
		"data: [DONE]\n" +
		"data: {\"done\":true}\n" +
		`{"authorType":"agent","text":"tail"}`

	baseline := feedAll([][]byte{[]byte(full)})
	if len(baseline) != 4 {
		t.Fatalf("expected 4 baseline frames, got %v", baseline)
	}

	// Every two-chunk partition of the same bytes must yield the same
	// ordered frames.
	for i := 0; i <= len(full); i++ {
		got := feedAll([][]byte{[]byte(full[:i]), []byte(full[i:])})
		if !reflect.DeepEqual(got, baseline) {
			t.Fatalf("split at %d diverged: %v vs %v", i, got, baseline)
		}
	}

	// Worst case: one byte per chunk.
	var single [][]byte
	for i := 0; i < len(full); i++ {
		single = append(single, []byte{full[i]})
	}
	if got := feedAll(single); !reflect.DeepEqual(got, baseline) {
		t.Fatalf("byte-at-a-time diverged: %v vs %v", got, baseline)
	}
}

func TestExtractorEventSequenceInvariance(t *testing.T) {
	// The same property one level up: extraction plus decoding must give
	// the same ordered events for any chunking.
	full := "data: {\"data\":{\"authorType\":\"agent\",\"text\":\"hello\"}}\n" +
		"data: {\"error\":\"overloaded\"}\n" +
		"data: {\"done\":true}\n"

	decodeAll := func(chunks [][]byte) []string {
		var kinds []string
		ex := NewFrameExtractor()
		for _, chunk := range chunks {
			for _, frame := range ex.Feed(chunk) {
				if event, ok := Decode(frame); ok {
					kinds = append(kinds, kindOf(event))
				}
			}
		}
		if frame, ok := ex.Flush(); ok {
			if event, ok := Decode(frame); ok {
				kinds = append(kinds, kindOf(event))
			}
		}
		return kinds
	}

	baseline := decodeAll([][]byte{[]byte(full)})
	want := []string{"data:hello", "error:overloaded", "done"}
	if !reflect.DeepEqual(baseline, want) {
		t.Fatalf("unexpected baseline %v", baseline)
	}
	for i := 0; i <= len(full); i++ {
		got := decodeAll([][]byte{[]byte(full[:i]), []byte(full[i:])})
		if !reflect.DeepEqual(got, baseline) {
			t.Fatalf("split at %d diverged: %v", i, got)
		}
	}
}
