package handlers

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/BatmanBruc/dmg-bot/internal/contextkeys"
	"github.com/BatmanBruc/dmg-bot/internal/i18n"
	"github.com/BatmanBruc/dmg-bot/internal/messages"
	"github.com/BatmanBruc/dmg-bot/internal/payments"
	"github.com/BatmanBruc/dmg-bot/internal/utils"
	"github.com/BatmanBruc/dmg-bot/types"
)

func (bh *Handlers) HandleBuyPremium(ctx context.Context, i *discordgo.InteractionCreate, key types.AccountKey, lang i18n.Lang) {
	if !bh.deferReply(ctx, i, true) {
		return
	}

	order, err := bh.payments.CreateOrder(ctx, key, contextkeys.GetDisplayName(ctx))
	switch {
	case errors.Is(err, payments.ErrAlreadyEntitled):
		bh.edit(ctx, i, messages.AlreadyPremium(lang), nil)
		return
	case err != nil:
		bh.log.Error("create order failed",
			zap.String("user_id", key.UserID),
			zap.String("guild_id", key.GuildID),
			zap.Error(err))
		bh.edit(ctx, i, messages.PaymentUnavailable(lang), nil)
		return
	}

	price := bh.payments.Plan().Display()
	bh.edit(ctx, i, messages.PaymentLink(lang, order.Reference, price), utils.BuildButtonRows([]utils.Button{
		{Label: messages.PayButton(lang), URL: order.ApprovalURL},
		{Label: messages.CheckButton(lang), CustomID: ButtonCheckPayment, Style: discordgo.SecondaryButton},
	}))
}
