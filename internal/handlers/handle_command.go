package handlers

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/BatmanBruc/dmg-bot/internal/features"
	"github.com/BatmanBruc/dmg-bot/internal/i18n"
	"github.com/BatmanBruc/dmg-bot/internal/messages"
	"github.com/BatmanBruc/dmg-bot/types"
)

func (bh *Handlers) HandleCommand(ctx context.Context, i *discordgo.InteractionCreate, key types.AccountKey, lang i18n.Lang) {
	switch i.ApplicationCommandData().Name {
	case CommandChat:
		bh.HandleFeature(ctx, i, key, lang, features.Chat)
	case CommandSpeak:
		bh.HandleFeature(ctx, i, key, lang, features.Speak)
	case CommandImagine:
		bh.HandleFeature(ctx, i, key, lang, features.Imagine)
	case CommandLipsync:
		bh.HandleFeature(ctx, i, key, lang, features.Lipsync)
	case CommandPremium:
		bh.HandleBuyPremium(ctx, i, key, lang)
	case CommandCheckPayment:
		bh.HandleCheckPayment(ctx, i, key, lang)
	case CommandDemo:
		bh.HandleDemoStatus(ctx, i, key, lang)
	case CommandPremiumGrant:
		bh.HandleAdminGrant(ctx, i, key, lang)
	case CommandPremiumRevoke:
		bh.HandleAdminRevoke(ctx, i, key, lang)
	default:
		bh.reply(ctx, i, messages.ErrorUnknownCommand(lang), true)
	}
}
