package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/BatmanBruc/dmg-bot/types"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Alerter tells operators about completed and revoked purchases.
type Alerter interface {
	PaymentCompleted(ctx context.Context, rec *types.PaymentRecord, source string)
	PaymentRevoked(ctx context.Context, key types.AccountKey, actorID string)
}

type Nop struct{}

func (Nop) PaymentCompleted(context.Context, *types.PaymentRecord, string) {}
func (Nop) PaymentRevoked(context.Context, types.AccountKey, string)       {}

// sender is the part of the Telegram client the alerter uses.
type sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type Telegram struct {
	bot    sender
	chatID int64
	log    *zap.Logger
}

// NewTelegram returns Nop when the token or chat is missing.
func NewTelegram(token string, chatID int64, log *zap.Logger) (Alerter, error) {
	if token == "" || chatID == 0 {
		return Nop{}, nil
	}
	b, err := bot.New(
		token,
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(10*time.Second, &http.Client{Timeout: 15 * time.Second}),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram alerts: %w", err)
	}
	return newTelegram(b, chatID, log), nil
}

func newTelegram(s sender, chatID int64, log *zap.Logger) *Telegram {
	return &Telegram{bot: s, chatID: chatID, log: log.Named("notify")}
}

func (t *Telegram) PaymentCompleted(ctx context.Context, rec *types.PaymentRecord, source string) {
	if rec == nil {
		return
	}
	text := fmt.Sprintf("<b>Payment completed</b>\nuser: <code>%s</code>\nguild: <code>%s</code>\namount: %s %s\nreference: <code>%s</code>\norder: <code>%s</code>\nvia: %s",
		html.EscapeString(rec.UserID),
		html.EscapeString(rec.GuildID),
		html.EscapeString(rec.Amount),
		html.EscapeString(rec.Currency),
		html.EscapeString(rec.Reference),
		html.EscapeString(rec.OrderID),
		html.EscapeString(source),
	)
	t.send(ctx, text)
}

func (t *Telegram) PaymentRevoked(ctx context.Context, key types.AccountKey, actorID string) {
	text := fmt.Sprintf("<b>Premium revoked</b>\nuser: <code>%s</code>\nguild: <code>%s</code>\nby: <code>%s</code>",
		html.EscapeString(key.UserID),
		html.EscapeString(key.GuildID),
		html.EscapeString(actorID),
	)
	t.send(ctx, text)
}

func (t *Telegram) send(ctx context.Context, text string) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		t.log.Warn("operator alert failed", zap.Error(err))
	}
}
