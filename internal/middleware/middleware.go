package middleware

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/BatmanBruc/dmg-bot/internal/contextkeys"
	"github.com/BatmanBruc/dmg-bot/internal/i18n"
	"github.com/BatmanBruc/dmg-bot/types"
)

type HandlerFunc func(ctx context.Context, i *discordgo.InteractionCreate)

type Middlewares struct {
	log *zap.Logger
}

func NewInteractionAnalyzer(log *zap.Logger) *Middlewares {
	return &Middlewares{log: log.Named("interactions")}
}

// Adapt turns a chain into a discordgo event handler. Every interaction gets
// its own context derived from base, bounded by timeout.
func Adapt(base context.Context, timeout time.Duration, next HandlerFunc) func(*discordgo.Session, *discordgo.InteractionCreate) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		if i == nil || i.Interaction == nil {
			return
		}
		ctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()
		next(ctx, i)
	}
}

func (m *Middlewares) RecoverMiddleware(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, i *discordgo.InteractionCreate) {
		defer func() {
			if rec := recover(); rec != nil {
				m.log.Error("panic in interaction handler",
					zap.Any("panic", rec),
					zap.String("interaction_id", i.ID),
					zap.ByteString("stack", debug.Stack()))
			}
		}()
		next(ctx, i)
	}
}

// IdentifyMiddleware puts the invoking account, its language and display name
// into the context. Interactions outside a guild get no account key.
func (m *Middlewares) IdentifyMiddleware(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, i *discordgo.InteractionCreate) {
		user := interactionUser(i.Interaction)
		if user == nil || user.ID == "" {
			m.log.Warn("interaction without user", zap.String("interaction_id", i.ID))
			return
		}

		if i.GuildID != "" {
			ctx = contextkeys.WithAccountKey(ctx, types.NewAccountKey(user.ID, i.GuildID))
		}

		var guildLocale discordgo.Locale
		if i.GuildLocale != nil {
			guildLocale = *i.GuildLocale
		}
		ctx = contextkeys.WithLang(ctx, string(i18n.FromLocale(i.Locale, guildLocale)))
		ctx = contextkeys.WithDisplayName(ctx, displayName(i.Interaction, user))

		next(ctx, i)
	}
}

func (m *Middlewares) AnalyzeInteractionMiddleware(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, i *discordgo.InteractionCreate) {
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			ctx = contextkeys.WithInteractionType(ctx, contextkeys.InteractionCommand)
			ctx = contextkeys.WithAction(ctx, i.ApplicationCommandData().Name)
		case discordgo.InteractionMessageComponent:
			ctx = contextkeys.WithInteractionType(ctx, contextkeys.InteractionClickButton)
			ctx = contextkeys.WithAction(ctx, i.MessageComponentData().CustomID)
		default:
			ctx = contextkeys.WithInteractionType(ctx, contextkeys.InteractionUnknown)
		}
		next(ctx, i)
	}
}

func (m *Middlewares) LogMiddleware(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, i *discordgo.InteractionCreate) {
		start := time.Now()
		next(ctx, i)

		fields := []zap.Field{
			zap.String("interaction_id", i.ID),
			zap.Duration("duration", time.Since(start)),
		}
		if action, ok := contextkeys.GetAction(ctx); ok {
			fields = append(fields, zap.String("action", action))
		}
		if key, ok := contextkeys.GetAccountKey(ctx); ok {
			fields = append(fields, zap.String("user_id", key.UserID), zap.String("guild_id", key.GuildID))
		}
		m.log.Debug("interaction handled", fields...)
	}
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func displayName(i *discordgo.Interaction, user *discordgo.User) string {
	if i.Member != nil && i.Member.Nick != "" {
		return i.Member.Nick
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}
