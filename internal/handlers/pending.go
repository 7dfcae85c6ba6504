package handlers

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/BatmanBruc/dmg-bot/internal/i18n"
	"github.com/BatmanBruc/dmg-bot/internal/messages"
	"github.com/BatmanBruc/dmg-bot/internal/payments"
	"github.com/BatmanBruc/dmg-bot/internal/scheduler"
	"github.com/BatmanBruc/dmg-bot/types"
)

func (bh *Handlers) HandleCheckPayment(ctx context.Context, i *discordgo.InteractionCreate, key types.AccountKey, lang i18n.Lang) {
	if !bh.deferReply(ctx, i, true) {
		return
	}

	outcome, err := bh.payments.CheckNow(ctx, key)
	switch {
	case errors.Is(err, payments.ErrNoPendingOrder):
		bh.edit(ctx, i, messages.NoPendingOrder(lang), nil)
		return
	case err != nil:
		bh.log.Warn("check payment failed",
			zap.String("user_id", key.UserID),
			zap.String("guild_id", key.GuildID),
			zap.Error(err))
		bh.edit(ctx, i, messages.PaymentUnavailable(lang), nil)
		return
	}

	switch outcome {
	case scheduler.OutcomeCompleted, scheduler.OutcomeAlreadyCompleted:
		bh.edit(ctx, i, messages.CheckCompleted(lang), nil)
	case scheduler.OutcomeStale:
		bh.edit(ctx, i, messages.NoPendingOrder(lang), nil)
	default:
		bh.edit(ctx, i, messages.CheckPending(lang), nil)
	}
}
