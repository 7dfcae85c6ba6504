package handlers

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/BatmanBruc/dmg-bot/internal/i18n"
	"github.com/BatmanBruc/dmg-bot/internal/messages"
	"github.com/BatmanBruc/dmg-bot/internal/payments"
	"github.com/BatmanBruc/dmg-bot/types"
)

func (bh *Handlers) isAdminUser(i *discordgo.InteractionCreate, userID string) bool {
	if bh.isAdmin(userID) {
		return true
	}
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator == discordgo.PermissionAdministrator
}

func (bh *Handlers) adminTarget(ctx context.Context, i *discordgo.InteractionCreate, actor types.AccountKey, lang i18n.Lang) (types.AccountKey, bool) {
	if !bh.isAdminUser(i, actor.UserID) {
		bh.reply(ctx, i, messages.AdminOnly(lang), true)
		return types.AccountKey{}, false
	}
	target := types.NewAccountKey(userOption(optionMap(i), "user"), actor.GuildID)
	if !target.Valid() {
		bh.reply(ctx, i, messages.ErrorDefault(lang), true)
		return types.AccountKey{}, false
	}
	return target, true
}

func (bh *Handlers) HandleAdminGrant(ctx context.Context, i *discordgo.InteractionCreate, actor types.AccountKey, lang i18n.Lang) {
	target, ok := bh.adminTarget(ctx, i, actor, lang)
	if !ok {
		return
	}
	if !bh.deferReply(ctx, i, true) {
		return
	}
	already, err := bh.payments.Grant(ctx, target, actor.UserID)
	if err != nil {
		bh.log.Error("manual grant failed", zap.String("key", target.String()), zap.Error(err))
		bh.edit(ctx, i, messages.ErrorDefault(lang), nil)
		return
	}
	bh.edit(ctx, i, messages.AdminGranted(lang, target.UserID, already), nil)
}

func (bh *Handlers) HandleAdminRevoke(ctx context.Context, i *discordgo.InteractionCreate, actor types.AccountKey, lang i18n.Lang) {
	target, ok := bh.adminTarget(ctx, i, actor, lang)
	if !ok {
		return
	}
	if !bh.deferReply(ctx, i, true) {
		return
	}
	err := bh.payments.Revoke(ctx, target, actor.UserID)
	switch {
	case errors.Is(err, payments.ErrNotEntitled):
		bh.edit(ctx, i, messages.AdminNotEntitled(lang, target.UserID), nil)
	case err != nil:
		bh.log.Error("revoke failed", zap.String("key", target.String()), zap.Error(err))
		bh.edit(ctx, i, messages.ErrorDefault(lang), nil)
	default:
		bh.edit(ctx, i, messages.AdminRevoked(lang, target.UserID), nil)
	}
}
