package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/bridgebot/internal/types"
)

const maxTelegramMessage = 4096

// Config holds the transport settings.
type Config struct {
	Token string
	// APIEndpoint optionally overrides the bot API endpoint (format
	// string with token and method placeholders, as the bot API expects).
	APIEndpoint string
	// RegistryFile persists the chat registry so ListConversations
	// survives restarts. Empty keeps it in memory.
	RegistryFile string
}

// Adapter implements the messaging ports over the Telegram bot API. The bot
// API cannot enumerate chats, so the adapter records every chat it sees in
// a registry and serves conversation listings from that.
type Adapter struct {
	bot      *tgbotapi.BotAPI
	registry *chatRegistry
}

// connectStrategy is one named way of establishing the bot client.
// Strategies are tried in order; the errors of failed tiers accumulate into
// the final failure.
type connectStrategy struct {
	name    string
	connect func(token string) (*tgbotapi.BotAPI, error)
}

// New connects the bot client, trying the configured endpoint first and the
// default public endpoint as fallback. Total failure is fatal to startup.
func New(cfg Config) (*Adapter, error) {
	var strategies []connectStrategy
	if cfg.APIEndpoint != "" {
		strategies = append(strategies, connectStrategy{
			name: "configured endpoint",
			connect: func(token string) (*tgbotapi.BotAPI, error) {
				return tgbotapi.NewBotAPIWithAPIEndpoint(token, cfg.APIEndpoint)
			},
		})
	}
	strategies = append(strategies, connectStrategy{
		name:    "default endpoint",
		connect: tgbotapi.NewBotAPI,
	})

	var errs []error
	for _, s := range strategies {
		bot, err := s.connect(cfg.Token)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		slog.Info("telegram client connected", "strategy", s.name, "account", bot.Self.UserName)
		registry, err := newChatRegistry(cfg.RegistryFile)
		if err != nil {
			return nil, fmt.Errorf("load chat registry: %w", err)
		}
		return &Adapter{bot: bot, registry: registry}, nil
	}
	return nil, fmt.Errorf("all telegram connection strategies failed: %w", errors.Join(errs...))
}

// SelfID is the bot's own user id; the engine filters self-authored units.
func (a *Adapter) SelfID() string {
	return strconv.FormatInt(a.bot.Self.ID, 10)
}

// StreamMessages long-polls for updates, invoking handle for each inbound
// message in arrival order. Returns nil on ctx cancellation; a closed
// update channel is a stream fault the engine may retry.
func (a *Adapter) StreamMessages(ctx context.Context, handle func(context.Context, types.Message) error) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	defer a.bot.StopReceivingUpdates()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("telegram update channel closed")
			}
			msg := update.Message
			if msg == nil || msg.Chat == nil {
				continue
			}
			a.registry.observe(msg)
			if err := handle(ctx, inboundMessage(msg)); err != nil {
				// One bad unit must not tear down the long poll.
				slog.Error("inbound handler failed", "chat", msg.Chat.ID, "error", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// ListConversations serves the registry snapshot.
func (a *Adapter) ListConversations(ctx context.Context) ([]types.Conversation, error) {
	entries := a.registry.list()
	convs := make([]types.Conversation, 0, len(entries))
	for _, entry := range entries {
		convs = append(convs, &conversation{bot: a.bot, chatID: entry.ChatID, peer: entry.Peer})
	}
	return convs, nil
}

// ConversationByID resolves one conversation. Unregistered ids still
// resolve: the bot API can send to any chat id it has access to.
func (a *Adapter) ConversationByID(ctx context.Context, id string) (types.Conversation, error) {
	chatID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id %q: %w", id, err)
	}
	peer := ""
	if entry, ok := a.registry.get(chatID); ok {
		peer = entry.Peer
	}
	return &conversation{bot: a.bot, chatID: chatID, peer: peer}, nil
}

// inboundMessage maps a bot API update to the engine's inbound unit.
// Non-text content keeps an empty content type so the engine filters it.
func inboundMessage(msg *tgbotapi.Message) types.Message {
	contentType := types.ContentType("")
	if msg.Text != "" {
		contentType = types.ContentText
	}
	senderID := ""
	if msg.From != nil {
		senderID = strconv.FormatInt(msg.From.ID, 10)
	}
	return types.Message{
		ID:             strconv.Itoa(msg.MessageID),
		SenderID:       senderID,
		ConversationID: strconv.FormatInt(msg.Chat.ID, 10),
		ContentType:    contentType,
		Text:           msg.Text,
	}
}

// conversation is one Telegram chat seen through the conversations port.
type conversation struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	peer   string
}

func (c *conversation) ID() string {
	return strconv.FormatInt(c.chatID, 10)
}

func (c *conversation) Peer() string {
	return c.peer
}

// Send delivers one payload. Transaction payloads have no native encoding
// on this transport; they are rendered as a fenced JSON block the user can
// carry into a wallet. Markdown failures retry as plain text.
func (c *conversation) Send(ctx context.Context, payload string, hint types.ContentType) error {
	if hint == types.ContentTransaction {
		payload = "Transaction request:\n```json\n" + payload + "\n```"
	}
	for _, part := range splitMessage(payload) {
		msg := tgbotapi.NewMessage(c.chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := c.bot.Send(msg); err != nil {
			msg.ParseMode = ""
			if _, err := c.bot.Send(msg); err != nil {
				return fmt.Errorf("send to chat %d: %w", c.chatID, err)
			}
		}
	}
	return nil
}

// splitMessage chunks text at the bot API's message size limit.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
