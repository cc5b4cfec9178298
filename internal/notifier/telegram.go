// Package notifier delivers transaction alerts to wallet owners.
package notifier

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	apperrors "github.com/wallet-watch/internal/errors"
	"github.com/wallet-watch/internal/logging"
)

// Sender is the part of *bot.Bot the notifier needs
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramNotifier sends HTML messages through the Telegram Bot API
type TelegramNotifier struct {
	sender Sender
	logger *logging.Logger
}

// NewTelegramNotifier creates a notifier on top of a bot client
func NewTelegramNotifier(sender Sender) *TelegramNotifier {
	return &TelegramNotifier{
		sender: sender,
		logger: logging.GetGlobalLogger().WithComponent("notifier"),
	}
}

// Notify sends text to chatID. Any failure is returned as ErrDeliveryFailed;
// the caller decides whether it matters.
func (n *TelegramNotifier) Notify(ctx context.Context, chatID int64, text string) error {
	if _, err := n.sender.SendMessage(ctx, HTMLMessage(chatID, text)); err != nil {
		n.logger.WithFields(map[string]interface{}{
			"chatId": chatID,
		}).WithError(err).Warn("Telegram delivery failed")
		return apperrors.NewDeliveryFailedError(chatID, err)
	}
	return nil
}

// HTMLMessage builds send params with HTML parse mode and link previews off
func HTMLMessage(chatID int64, text string) *bot.SendMessageParams {
	disable := true
	return &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disable,
		},
	}
}
