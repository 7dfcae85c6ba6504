package handlers

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/BatmanBruc/dmg-bot/internal/contextkeys"
	"github.com/BatmanBruc/dmg-bot/internal/features"
	"github.com/BatmanBruc/dmg-bot/internal/gate"
	"github.com/BatmanBruc/dmg-bot/internal/i18n"
	"github.com/BatmanBruc/dmg-bot/internal/messages"
	"github.com/BatmanBruc/dmg-bot/internal/payments"
	"github.com/BatmanBruc/dmg-bot/internal/pricing"
	"github.com/BatmanBruc/dmg-bot/internal/scheduler"
	"github.com/BatmanBruc/dmg-bot/types"
)

// Interactions is the part of *discordgo.Session the handlers answer with.
type Interactions interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type UsageGate interface {
	Evaluate(ctx context.Context, key types.AccountKey, member *types.MemberSnapshot) gate.Decision
}

type UsageMeter interface {
	GetUsage(ctx context.Context, key types.AccountKey) types.DemoUsageRecord
	Increment(ctx context.Context, key types.AccountKey, command string) (types.DemoUsageRecord, error)
}

type Entitlements interface {
	HasEntitlement(ctx context.Context, key types.AccountKey, member *types.MemberSnapshot) bool
	IsSponsor(member *types.MemberSnapshot) bool
}

type PaymentService interface {
	Plan() pricing.Plan
	CreateOrder(ctx context.Context, key types.AccountKey, displayName string) (*payments.OrderResult, error)
	CheckNow(ctx context.Context, key types.AccountKey) (scheduler.Outcome, error)
	Grant(ctx context.Context, key types.AccountKey, actorID string) (bool, error)
	Revoke(ctx context.Context, key types.AccountKey, actorID string) error
}

type MemberLookup interface {
	Member(ctx context.Context, key types.AccountKey) (*types.MemberSnapshot, error)
}

type Options struct {
	Interactions Interactions
	Gate         UsageGate
	Meter        UsageMeter
	Entitlements Entitlements
	Payments     PaymentService
	Members      MemberLookup
	Features     features.Runner
	IsAdmin      func(userID string) bool
	Log          *zap.Logger
}

type Handlers struct {
	discord      Interactions
	gate         UsageGate
	meter        UsageMeter
	entitlements Entitlements
	payments     PaymentService
	members      MemberLookup
	features     features.Runner
	isAdmin      func(userID string) bool
	log          *zap.Logger
}

func NewHandlers(opts Options) *Handlers {
	isAdmin := opts.IsAdmin
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &Handlers{
		discord:      opts.Interactions,
		gate:         opts.Gate,
		meter:        opts.Meter,
		entitlements: opts.Entitlements,
		payments:     opts.Payments,
		members:      opts.Members,
		features:     opts.Features,
		isAdmin:      isAdmin,
		log:          opts.Log.Named("handlers"),
	}
}

func langFromCtx(ctx context.Context) i18n.Lang {
	if v, ok := contextkeys.GetLang(ctx); ok {
		return i18n.Parse(v)
	}
	return i18n.EN
}

func (bh *Handlers) MainHandler(ctx context.Context, i *discordgo.InteractionCreate) {
	lang := langFromCtx(ctx)
	interactionType, _ := contextkeys.GetInteractionType(ctx)

	key, ok := contextkeys.GetAccountKey(ctx)
	if !ok || !key.Valid() {
		if interactionType != contextkeys.InteractionUnknown {
			bh.reply(ctx, i, messages.ErrorGuildOnly(lang), true)
		}
		return
	}

	switch interactionType {
	case contextkeys.InteractionCommand:
		bh.HandleCommand(ctx, i, key, lang)
	case contextkeys.InteractionClickButton:
		bh.HandleClickButton(ctx, i, key, lang)
	default:
		bh.log.Debug("ignoring interaction", zap.String("interaction_id", i.ID), zap.Int("type", int(i.Type)))
	}
}

// memberSnapshot prefers the member payload delivered with the interaction and
// falls back to a lookup. A nil result means membership data is unavailable.
func (bh *Handlers) memberSnapshot(ctx context.Context, i *discordgo.InteractionCreate, key types.AccountKey) *types.MemberSnapshot {
	if i.Member != nil {
		return &types.MemberSnapshot{
			UserID:       key.UserID,
			GuildID:      key.GuildID,
			Roles:        i.Member.Roles,
			PremiumSince: i.Member.PremiumSince,
		}
	}
	if bh.members == nil {
		return nil
	}
	member, err := bh.members.Member(ctx, key)
	if err != nil {
		if !errors.Is(err, types.ErrMemberNotFound) {
			bh.log.Warn("member lookup failed", zap.String("key", key.String()), zap.Error(err))
		}
		return nil
	}
	return member
}

func (bh *Handlers) reply(ctx context.Context, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	bh.respond(ctx, i, &discordgo.InteractionResponseData{Content: content}, ephemeral)
}

func (bh *Handlers) respond(ctx context.Context, i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData, ephemeral bool) {
	if ephemeral {
		data.Flags |= discordgo.MessageFlagsEphemeral
	}
	err := bh.discord.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
	if err != nil {
		bh.log.Warn("interaction respond failed", zap.String("interaction_id", i.ID), zap.Error(err))
	}
}

// deferReply acknowledges the interaction so slow work can finish with edit.
func (bh *Handlers) deferReply(ctx context.Context, i *discordgo.InteractionCreate, ephemeral bool) bool {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	if err := bh.discord.InteractionRespond(i.Interaction, resp, discordgo.WithContext(ctx)); err != nil {
		bh.log.Warn("interaction defer failed", zap.String("interaction_id", i.ID), zap.Error(err))
		return false
	}
	return true
}

func (bh *Handlers) edit(ctx context.Context, i *discordgo.InteractionCreate, content string, components []discordgo.MessageComponent) {
	content = truncate(content, maxContentLen)
	e := &discordgo.WebhookEdit{Content: &content}
	if components != nil {
		e.Components = &components
	}
	if _, err := bh.discord.InteractionResponseEdit(i.Interaction, e, discordgo.WithContext(ctx)); err != nil {
		bh.log.Warn("interaction edit failed", zap.String("interaction_id", i.ID), zap.Error(err))
	}
}

const maxContentLen = 2000

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
