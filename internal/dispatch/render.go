package dispatch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/bridgebot/internal/types"
)

var htmlTagPattern = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

// renderText prepares reply text for the messaging network. Some backend
// skills emit HTML; messaging clients render markdown, so convert when the
// text looks like markup.
func renderText(text string) string {
	if !htmlTagPattern.MatchString(text) {
		return text
	}
	md, err := htmltomarkdown.ConvertString(text)
	if err != nil {
		slog.Warn("html conversion failed, sending raw text", "error", err)
		return text
	}
	return strings.TrimSpace(md)
}

// renderToolCall produces the deterministic textual summary of a skill
// invocation. On failure the error message is appended; on success the raw
// tool response is deliberately omitted so internal data never reaches the
// user.
func renderToolCall(call types.ToolCall) string {
	var b strings.Builder
	b.WriteString("Calling skill " + call.Name)
	if len(call.Parameters) > 0 {
		keys := make([]string, 0, len(call.Parameters))
		for k := range call.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s:%v", k, call.Parameters[k]))
		}
		b.WriteString(" with " + strings.Join(parts, ", "))
	}
	if call.Failed() && call.ErrorMessage != "" {
		b.WriteString("\nError: " + call.ErrorMessage)
	}
	return b.String()
}

// summarizeTransaction renders a human-readable companion to a structured
// transaction-request payload.
func summarizeTransaction(tx *types.TransactionPayload) string {
	var b strings.Builder
	b.WriteString("Review and sign the transaction request")
	if tx.Description != "" {
		b.WriteString(": " + tx.Description)
	}
	if tx.ChainID != "" {
		fmt.Fprintf(&b, " (chain %s)", tx.ChainID)
	}
	for _, call := range tx.Calls {
		b.WriteString("\n• to " + call.To)
		if call.Value != "" {
			b.WriteString(", value " + call.Value)
		}
	}
	return b.String()
}

// renderAttachments lists non-transaction attachments in one short block.
func renderAttachments(attachments []types.Attachment) string {
	lines := make([]string, 0, len(attachments))
	for _, att := range attachments {
		if url := attachmentURL(att); url != "" {
			lines = append(lines, fmt.Sprintf("• %s: %s", att.Kind, url))
			continue
		}
		lines = append(lines, fmt.Sprintf("• %s attachment", att.Kind))
	}
	return strings.Join(lines, "\n")
}

// attachmentURL pulls a url field out of link-shaped payloads, best effort.
func attachmentURL(att types.Attachment) string {
	var p struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(att.Payload, &p); err != nil {
		return ""
	}
	return p.URL
}
