// Package telegram adapts the Telegram bot API to the messaging ports.
package telegram

import "github.com/user/bridgebot/internal/types"

// Compile-time interface compliance checks.
var _ types.MessageSource = (*Adapter)(nil)
var _ types.Conversation = (*conversation)(nil)
