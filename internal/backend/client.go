package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/user/bridgebot/internal/stream"
	"github.com/user/bridgebot/internal/types"
)

// defaultIdleTimeout bounds how long a single streaming call may sit with
// no bytes arriving before the reply sequence is ended early.
const defaultIdleTimeout = 30 * time.Second

// Config holds the backend connection settings.
type Config struct {
	BaseURL     string
	APIKey      string
	IdleTimeout time.Duration
}

// Client owns all HTTP traffic to the AI backend: the startup probe, agent
// identity lookup, session creation, and the streaming send-message call.
type Client struct {
	baseURL  string
	apiKey   string
	idle     time.Duration
	http     *http.Client
	sessions *SessionCache
}

// New creates a backend client. The embedded session cache is wired to this
// client's session-creation call.
func New(cfg Config) *Client {
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	c := &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		idle:    idle,
		// No client-level timeout: streaming responses stay open for
		// as long as the backend keeps producing. The idle budget
		// bounds the worst case instead.
		http: &http.Client{},
	}
	c.sessions = NewSessionCache(c.CreateSession)
	return c
}

// Sessions exposes the client's session cache.
func (c *Client) Sessions() *SessionCache {
	return c.sessions
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Probe checks backend reachability against the schema endpoint. Any 2xx
// counts as alive. Used once at startup; a failure is fatal there.
func (c *Client) Probe(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/openapi.json", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend probe returned status %d", resp.StatusCode)
	}
	return nil
}

// AgentIdentity fetches the backend-side agent wallet address used to
// initialize the outbound identity and to filter self-authored messages.
func (c *Client) AgentIdentity(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/agent", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch agent identity: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read agent identity: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("agent identity returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var agent struct {
		WalletAddress string `json:"evm_wallet_address"`
	}
	if err := json.Unmarshal(body, &agent); err != nil {
		return "", fmt.Errorf("parse agent identity: %w", err)
	}
	if agent.WalletAddress == "" {
		return "", fmt.Errorf("agent identity response has no wallet address")
	}
	return agent.WalletAddress, nil
}

// CreateSession materializes a backend chat for the given user key. Not
// retried here: the per-message path simply attempts again next time.
func (c *Client) CreateSession(ctx context.Context, userKey string) (string, error) {
	path := "/v1/chats?user_id=" + url.QueryEscape(userKey)
	req, err := c.newRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read session response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("create session returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var chat struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &chat); err != nil {
		return "", fmt.Errorf("parse session response: %w", err)
	}
	if chat.ID == "" {
		return "", fmt.Errorf("session response has no id")
	}
	return chat.ID, nil
}

// messageRequest is the streaming send-message body.
type messageRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Stream  bool   `json:"stream"`
}

// StreamReply sends text on behalf of userKey and returns the backend's
// reply records in arrival order. The session handle is resolved (or
// created) through the cache first.
//
// The returned channel always yields at least the records the caller must
// relay: if the call fails before any data arrives, it carries exactly one
// synthetic system-authored record describing the failure, so the user
// sees an acknowledgment rather than silence. Backend error events are
// logged and skipped; a done event or the idle budget ends the sequence.
func (c *Client) StreamReply(ctx context.Context, userKey, text string) <-chan types.ReplyRecord {
	out := make(chan types.ReplyRecord)
	go func() {
		defer close(out)

		handle, err := c.sessions.Resolve(ctx, userKey)
		if err != nil {
			emit(ctx, out, failureRecord(fmt.Sprintf("could not start a session: %v", err)))
			return
		}

		body, err := json.Marshal(messageRequest{Message: text, UserID: userKey, Stream: true})
		if err != nil {
			emit(ctx, out, failureRecord(fmt.Sprintf("could not encode message: %v", err)))
			return
		}
		req, err := c.newRequest(ctx, http.MethodPost, "/v1/chats/"+handle+"/messages", body)
		if err != nil {
			emit(ctx, out, failureRecord(fmt.Sprintf("could not build request: %v", err)))
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.http.Do(req)
		if err != nil {
			emit(ctx, out, failureRecord(fmt.Sprintf("backend request failed: %v", err)))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
			emit(ctx, out, failureRecord(fmt.Sprintf("backend returned status %d: %s", resp.StatusCode, snippet)))
			return
		}

		c.consume(ctx, resp.Body, out)
	}()
	return out
}

// consume pumps the response body through the frame extractor and event
// decoder, forwarding non-trivial data records until the stream ends.
func (c *Client) consume(ctx context.Context, body io.Reader, out chan<- types.ReplyRecord) {
	extractor := stream.NewFrameExtractor()

	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-done:
					return
				}
			}
			if err != nil {
				select {
				case readErr <- err:
				case <-done:
				}
				return
			}
		}
	}()

	idle := time.NewTimer(c.idle)
	defer idle.Stop()

	for {
		select {
		case chunk := <-chunks:
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(c.idle)
			for _, frame := range extractor.Feed(chunk) {
				if terminal := forwardFrame(ctx, frame, out); terminal {
					return
				}
			}
		case err := <-readErr:
			if err != io.EOF {
				slog.Warn("reply stream read failed", "error", err)
			}
			if frame, ok := extractor.Flush(); ok {
				forwardFrame(ctx, frame, out)
			}
			return
		case <-idle.C:
			slog.Warn("reply stream idle budget exceeded", "budget", c.idle)
			return
		case <-ctx.Done():
			return
		}
	}
}

// forwardFrame decodes one frame and forwards a data record if it carries
// content. Returns true when the frame terminates the sequence.
func forwardFrame(ctx context.Context, frame string, out chan<- types.ReplyRecord) bool {
	event, ok := stream.Decode(frame)
	if !ok {
		slog.Debug("dropping unrecognized frame", "frame", truncate([]byte(frame), 120))
		return false
	}
	switch {
	case event.Done:
		return true
	case event.Err != "":
		// The backend may recover after an error event; keep reading.
		slog.Warn("backend reported stream error", "error", event.Err)
		return false
	case event.Data != nil && !event.Data.Empty():
		return !emit(ctx, out, *event.Data)
	}
	return false
}

func emit(ctx context.Context, out chan<- types.ReplyRecord, record types.ReplyRecord) bool {
	select {
	case out <- record:
		return true
	case <-ctx.Done():
		return false
	}
}

func failureRecord(description string) types.ReplyRecord {
	return types.ReplyRecord{
		AuthorType: types.AuthorSystem,
		Text:       description,
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
