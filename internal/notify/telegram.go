package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/leads"
)

// TelegramSender posts notifications to the user's Telegram chat through the
// telegram channel adapter, using the hub's own bot token.
type TelegramSender struct {
	sender   channel.TextSender
	botToken string
}

// NewTelegramSender returns nil when no bot token is configured so the
// result can be passed straight to NewService.
func NewTelegramSender(sender channel.TextSender, botToken string) Sender {
	botToken = strings.TrimSpace(botToken)
	if sender == nil || botToken == "" {
		return nil
	}
	return &TelegramSender{sender: sender, botToken: botToken}
}

func (s *TelegramSender) Name() string { return "telegram" }

func (s *TelegramSender) Reachable(user leads.User) bool {
	return strings.TrimSpace(user.TelegramChatID) != ""
}

func (s *TelegramSender) Send(ctx context.Context, user leads.User, msg Message) error {
	credentials := map[string]any{"bot_token": s.botToken}
	chatID := strings.TrimSpace(user.TelegramChatID)
	for _, part := range splitText(msg.Body, telegramTextLimit) {
		if err := s.sender.SendText(ctx, credentials, chatID, part); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}
