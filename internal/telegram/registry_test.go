package telegram

import (
	"path/filepath"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func observeMessage(r *chatRegistry, chatID, userID int64) {
	r.observe(&tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: chatID},
	})
}

func TestRegistryObserveAndList(t *testing.T) {
	r, err := newChatRegistry("")
	if err != nil {
		t.Fatal(err)
	}

	observeMessage(r, 100, 1)
	observeMessage(r, 50, 2)
	observeMessage(r, 100, 1) // repeat observation is a no-op

	entries := r.list()
	if len(entries) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(entries))
	}
	// Listing is sorted by chat id for stable diffs.
	if entries[0].ChatID != 50 || entries[1].ChatID != 100 {
		t.Errorf("unexpected order %v", entries)
	}
	if entries[1].Peer != "1" {
		t.Errorf("expected peer recorded, got %+v", entries[1])
	}
}

func TestRegistryPersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chats.json")

	r, err := newChatRegistry(path)
	if err != nil {
		t.Fatal(err)
	}
	observeMessage(r, 200, 9)

	reloaded, err := newChatRegistry(path)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := reloaded.get(200)
	if !ok {
		t.Fatal("expected chat restored from disk")
	}
	if entry.Peer != "9" {
		t.Errorf("expected peer restored, got %+v", entry)
	}
}
