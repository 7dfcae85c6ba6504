package handlers

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/BatmanBruc/dmg-bot/internal/i18n"
	"github.com/BatmanBruc/dmg-bot/internal/messages"
	"github.com/BatmanBruc/dmg-bot/internal/utils"
	"github.com/BatmanBruc/dmg-bot/types"
)

func (bh *Handlers) sendUpsell(ctx context.Context, i *discordgo.InteractionCreate, lang i18n.Lang) {
	bh.respond(ctx, i, &discordgo.InteractionResponseData{
		Content: messages.Upsell(lang, bh.payments.Plan().Display()),
		Components: utils.BuildButtonRows([]utils.Button{
			{Label: messages.PayButton(lang), CustomID: ButtonBuyPremium, Style: discordgo.SuccessButton},
		}),
	}, true)
}

func (bh *Handlers) HandleDemoStatus(ctx context.Context, i *discordgo.InteractionCreate, key types.AccountKey, lang i18n.Lang) {
	member := bh.memberSnapshot(ctx, i, key)
	if bh.entitlements.HasEntitlement(ctx, key, member) {
		bh.reply(ctx, i, messages.EntitledStatus(lang, bh.entitlements.IsSponsor(member)), true)
		return
	}
	usage := bh.meter.GetUsage(ctx, key)
	bh.respond(ctx, i, &discordgo.InteractionResponseData{
		Content: messages.DemoStatus(lang, usage.Used, usage.Max),
		Components: utils.BuildButtonRows([]utils.Button{
			{Label: messages.PayButton(lang), CustomID: ButtonBuyPremium, Style: discordgo.SuccessButton},
		}),
	}, true)
}
