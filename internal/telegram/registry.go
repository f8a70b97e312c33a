package telegram

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// chatEntry is one chat the bot has seen.
type chatEntry struct {
	ChatID int64  `json:"chat_id"`
	Peer   string `json:"peer,omitempty"`
	Title  string `json:"title,omitempty"`
}

// chatRegistry tracks every chat observed on the update stream, backing the
// conversation listing the discovery poll diffs against. Optionally
// persisted as a JSON file so listings survive restarts.
type chatRegistry struct {
	path string

	mu    sync.RWMutex
	chats map[int64]chatEntry
}

func newChatRegistry(path string) (*chatRegistry, error) {
	r := &chatRegistry{path: path, chats: make(map[int64]chatEntry)}
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read chat registry: %w", err)
	}
	var entries []chatEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal chat registry: %w", err)
	}
	for _, entry := range entries {
		r.chats[entry.ChatID] = entry
	}
	return r, nil
}

// observe records the chat a message arrived on. New chats are persisted
// immediately so the next discovery poll can see them.
func (r *chatRegistry) observe(msg *tgbotapi.Message) {
	entry := chatEntry{ChatID: msg.Chat.ID, Title: msg.Chat.Title}
	if msg.From != nil {
		entry.Peer = strconv.FormatInt(msg.From.ID, 10)
	}

	r.mu.Lock()
	existing, known := r.chats[entry.ChatID]
	if known && existing == entry {
		r.mu.Unlock()
		return
	}
	r.chats[entry.ChatID] = entry
	r.mu.Unlock()

	r.save()
}

func (r *chatRegistry) get(chatID int64) (chatEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.chats[chatID]
	return entry, ok
}

func (r *chatRegistry) list() []chatEntry {
	r.mu.RLock()
	entries := make([]chatEntry, 0, len(r.chats))
	for _, entry := range r.chats {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].ChatID < entries[j].ChatID })
	return entries
}

// save writes the registry atomically. Best effort: a failed save costs a
// re-listing gap after restart, not correctness.
func (r *chatRegistry) save() {
	if r.path == "" {
		return
	}
	entries := r.list()
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
	}
}
