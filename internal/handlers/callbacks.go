package handlers

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/BatmanBruc/dmg-bot/internal/i18n"
	"github.com/BatmanBruc/dmg-bot/internal/messages"
	"github.com/BatmanBruc/dmg-bot/types"
)

func (bh *Handlers) HandleClickButton(ctx context.Context, i *discordgo.InteractionCreate, key types.AccountKey, lang i18n.Lang) {
	data := strings.TrimSpace(i.MessageComponentData().CustomID)
	switch data {
	case ButtonBuyPremium:
		bh.HandleBuyPremium(ctx, i, key, lang)
	case ButtonCheckPayment:
		bh.HandleCheckPayment(ctx, i, key, lang)
	default:
		bh.log.Debug("unknown button", zap.String("custom_id", data))
		bh.reply(ctx, i, messages.ErrorUnknownCommand(lang), true)
	}
}
