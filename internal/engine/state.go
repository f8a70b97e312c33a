// internal/engine/state.go
package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// The greeted-conversation set is optionally persisted so a restart does
// not re-greet existing conversations. With no state file configured the
// set is in-memory only and a restart may re-greet; greetings are cheap
// and idempotent on the backend side, so that is an accepted mode.

// loadKnown restores the known set from the configured state file.
func (e *Engine) loadKnown() error {
	if e.cfg.StateFile == "" {
		return nil
	}
	data, err := os.ReadFile(e.cfg.StateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read discovery state: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("unmarshal discovery state: %w", err)
	}

	e.mu.Lock()
	for _, id := range ids {
		e.known[id] = struct{}{}
	}
	e.mu.Unlock()
	return nil
}

// saveKnown writes the known set atomically (temp file then rename).
func (e *Engine) saveKnown() error {
	if e.cfg.StateFile == "" {
		return nil
	}

	e.mu.Lock()
	ids := make([]string, 0, len(e.known))
	for id := range e.known {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	sort.Strings(ids)

	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal discovery state: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(e.cfg.StateFile), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := e.cfg.StateFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write discovery state: %w", err)
	}
	if err := os.Rename(tmp, e.cfg.StateFile); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename discovery state: %w", err)
	}
	return nil
}
