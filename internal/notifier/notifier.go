// Package notifier sends operator notifications for confirmed tips.
package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/orangefortress/vote-backend/internal/storage"
)

// Notifier posts a Telegram message to the admin chat for every confirmed
// tip. Delivery failures are logged and never surface to the reconciler.
type Notifier struct {
	bot    *bot.Bot
	chatID int64
	log    *slog.Logger
}

// New creates a Notifier
func New(token string, chatID int64, log *slog.Logger) (*Notifier, error) {
	tgBot, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	return &Notifier{
		bot:    tgBot,
		chatID: chatID,
		log:    log,
	}, nil
}

// TipConfirmed implements reconcile.Notifier
func (n *Notifier) TipConfirmed(ctx context.Context, tip *storage.ConfirmedTip) {
	disablePreview := true
	params := &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      formatTipMessage(tip),
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	}

	if _, err := n.bot.SendMessage(ctx, params); err != nil {
		n.log.Error("send tip notification", "error", err)
	}
}

func formatTipMessage(tip *storage.ConfirmedTip) string {
	target := "the page"
	if tip.TargetType == storage.TargetImage && tip.TargetID != "" {
		target = fmt.Sprintf("image <code>%s</code>", tip.TargetID)
	}

	who := tip.DisplayName
	if who == "" && tip.PayerPubkey != "" {
		who = shortKey(tip.PayerPubkey)
	}
	if who == "" {
		who = "someone"
	}

	return fmt.Sprintf(
		"⚡ <b>Tip confirmed</b>\n\n"+
			"+%d sats on %s\n"+
			"from %s",
		tip.AmountSats, target, who,
	)
}

func shortKey(key string) string {
	if len(key) <= 11 {
		return key
	}
	return key[:4] + "..." + key[len(key)-4:]
}
