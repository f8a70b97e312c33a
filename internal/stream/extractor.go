// internal/stream/extractor.go
package stream

import (
	"encoding/json"
	"strings"
)

const (
	ssePrefix    = "data:"
	doneSentinel = "[DONE]"
)

// FrameExtractor reassembles discrete JSON-shaped frames out of a raw
// chunked byte stream. The backend interleaves SSE-framed lines, bare JSON
// objects, and line-delimited mixtures, and chunk boundaries carry no
// relation to frame boundaries, so the extractor buffers the tail of each
// chunk and only commits a frame once a full line (or a provably complete
// object) has arrived.
//
// Malformed candidates are dropped, never surfaced as errors: partial
// frames are expected mid-stream.
type FrameExtractor struct {
	remainder string
}

// NewFrameExtractor returns an extractor with an empty buffer.
func NewFrameExtractor() *FrameExtractor {
	return &FrameExtractor{}
}

// Feed appends one chunk to the buffer and returns the frames completed by
// it, in arrival order. Feed never blocks and never fails.
func (e *FrameExtractor) Feed(chunk []byte) []string {
	e.remainder += string(chunk)

	var frames []string
	lines := strings.Split(e.remainder, "\n")
	e.remainder = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		if frame, ok := extractFrame(line); ok {
			frames = append(frames, frame)
		}
	}

	// A final chunk may carry a complete object with no trailing newline.
	// Emit it now rather than waiting for a newline that never comes.
	if rest := strings.TrimSpace(e.remainder); isJSONObject(rest) && json.Valid([]byte(rest)) {
		frames = append(frames, rest)
		e.remainder = ""
	}
	return frames
}

// Flush drains the buffer at end-of-stream and returns a last candidate
// frame, if one can be salvaged.
func (e *FrameExtractor) Flush() (string, bool) {
	rest := e.remainder
	e.remainder = ""
	return extractFrame(rest)
}

// extractFrame turns one complete line into a candidate frame. SSE data
// lines are unwrapped (terminal sentinel and null literal excluded), bare
// objects pass through, and anything else gets a best-effort scan for an
// embedded object before being discarded.
func extractFrame(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}

	if strings.HasPrefix(line, ssePrefix) {
		payload := strings.TrimSpace(line[len(ssePrefix):])
		if payload == "" || payload == doneSentinel || payload == "null" {
			return "", false
		}
		return payload, true
	}

	if isJSONObject(line) {
		return line, true
	}

	start := strings.IndexByte(line, '{')
	end := strings.LastIndexByte(line, '}')
	if start >= 0 && end > start {
		return line[start : end+1], true
	}
	return "", false
}

func isJSONObject(s string) bool {
	return strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
}
