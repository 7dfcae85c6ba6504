package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BatmanBruc/dmg-bot/internal/contextkeys"
	"github.com/BatmanBruc/dmg-bot/types"
)

func guildCommand() *discordgo.InteractionCreate {
	guildLocale := discordgo.EnglishUS
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:          "i1",
		Type:        discordgo.InteractionApplicationCommand,
		GuildID:     "664",
		Locale:      discordgo.Russian,
		GuildLocale: &guildLocale,
		Member: &discordgo.Member{
			Nick: "Ali",
			User: &discordgo.User{ID: "120", Username: "alice"},
		},
		Data: discordgo.ApplicationCommandInteractionData{Name: "chat"},
	}}
}

func TestChainPopulatesContext(t *testing.T) {
	m := NewInteractionAnalyzer(zap.NewNop())

	var got context.Context
	chain := m.IdentifyMiddleware(m.AnalyzeInteractionMiddleware(m.LogMiddleware(func(ctx context.Context, _ *discordgo.InteractionCreate) {
		got = ctx
	})))
	chain(context.Background(), guildCommand())

	require.NotNil(t, got)
	key, ok := contextkeys.GetAccountKey(got)
	require.True(t, ok)
	assert.Equal(t, types.NewAccountKey("120", "664"), key)
	lang, _ := contextkeys.GetLang(got)
	assert.Equal(t, "ru", lang)
	assert.Equal(t, "Ali", contextkeys.GetDisplayName(got))
	it, _ := contextkeys.GetInteractionType(got)
	assert.Equal(t, contextkeys.InteractionCommand, it)
	action, _ := contextkeys.GetAction(got)
	assert.Equal(t, "chat", action)
}

func TestButtonInDirectMessageHasNoAccountKey(t *testing.T) {
	m := NewInteractionAnalyzer(zap.NewNop())
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		User: &discordgo.User{ID: "120", GlobalName: "Alice G"},
		Data: discordgo.MessageComponentInteractionData{CustomID: "premium:check"},
	}}

	var got context.Context
	m.IdentifyMiddleware(m.AnalyzeInteractionMiddleware(func(ctx context.Context, _ *discordgo.InteractionCreate) {
		got = ctx
	}))(context.Background(), i)

	require.NotNil(t, got)
	_, ok := contextkeys.GetAccountKey(got)
	assert.False(t, ok)
	assert.Equal(t, "Alice G", contextkeys.GetDisplayName(got))
	action, _ := contextkeys.GetAction(got)
	assert.Equal(t, "premium:check", action)
	lang, _ := contextkeys.GetLang(got)
	assert.Equal(t, "en", lang)
}

func TestInteractionWithoutUserIsDropped(t *testing.T) {
	m := NewInteractionAnalyzer(zap.NewNop())
	called := false
	m.IdentifyMiddleware(func(context.Context, *discordgo.InteractionCreate) { called = true })(
		context.Background(), &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{GuildID: "664"}})
	assert.False(t, called)
}

func TestRecoverMiddleware(t *testing.T) {
	m := NewInteractionAnalyzer(zap.NewNop())
	h := m.RecoverMiddleware(func(context.Context, *discordgo.InteractionCreate) { panic("boom") })
	assert.NotPanics(t, func() { h(context.Background(), guildCommand()) })
}

func TestAdaptBoundsContext(t *testing.T) {
	var deadline bool
	h := Adapt(context.Background(), time.Minute, func(ctx context.Context, _ *discordgo.InteractionCreate) {
		_, deadline = ctx.Deadline()
	})
	h(nil, guildCommand())
	assert.True(t, deadline)

	assert.NotPanics(t, func() { h(nil, &discordgo.InteractionCreate{}) })
}
