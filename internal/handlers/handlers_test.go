package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BatmanBruc/dmg-bot/internal/demo"
	"github.com/BatmanBruc/dmg-bot/internal/entitlement"
	"github.com/BatmanBruc/dmg-bot/internal/features"
	"github.com/BatmanBruc/dmg-bot/internal/gate"
	"github.com/BatmanBruc/dmg-bot/internal/middleware"
	"github.com/BatmanBruc/dmg-bot/internal/payments"
	"github.com/BatmanBruc/dmg-bot/internal/pricing"
	"github.com/BatmanBruc/dmg-bot/internal/scheduler"
	"github.com/BatmanBruc/dmg-bot/store"
	"github.com/BatmanBruc/dmg-bot/types"
)

const (
	testUser    = "120000000000000001"
	testGuild   = "664000000000000002"
	premiumRole = "role-premium"
)

type fakeDiscord struct {
	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	edits     []*discordgo.WebhookEdit
}

func (f *fakeDiscord) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeDiscord) InteractionResponseEdit(_ *discordgo.Interaction, e *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, e)
	return &discordgo.Message{}, nil
}

func (f *fakeDiscord) lastResponse(t *testing.T) *discordgo.InteractionResponse {
	t.Helper()
	require.NotEmpty(t, f.responses)
	return f.responses[len(f.responses)-1]
}

func (f *fakeDiscord) lastEdit(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.edits)
	return *f.edits[len(f.edits)-1].Content
}

type fakeRunner struct {
	err   error
	calls []features.Request
}

func (f *fakeRunner) Run(_ context.Context, kind features.Kind, req features.Request) (*features.Result, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	if kind == features.Chat {
		return &features.Result{Text: "answer to " + req.Prompt}, nil
	}
	return &features.Result{URL: "https://cdn.test/out"}, nil
}

type fakePayments struct {
	createErr error
	checkErr  error
	outcome   scheduler.Outcome
	grantErr  error
	revokeErr error
	granted   []types.AccountKey
	revoked   []types.AccountKey
	names     []string
}

func (f *fakePayments) Plan() pricing.Plan { return pricing.NewPlan("25.00", "USD") }

func (f *fakePayments) CreateOrder(_ context.Context, _ types.AccountKey, displayName string) (*payments.OrderResult, error) {
	f.names = append(f.names, displayName)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &payments.OrderResult{OrderID: "O1", ApprovalURL: "https://pay.test/O1", Reference: "DMG-002-001-ABC123"}, nil
}

func (f *fakePayments) CheckNow(context.Context, types.AccountKey) (scheduler.Outcome, error) {
	return f.outcome, f.checkErr
}

func (f *fakePayments) Grant(_ context.Context, key types.AccountKey, _ string) (bool, error) {
	f.granted = append(f.granted, key)
	return false, f.grantErr
}

func (f *fakePayments) Revoke(_ context.Context, key types.AccountKey, _ string) error {
	f.revoked = append(f.revoked, key)
	return f.revokeErr
}

type harness struct {
	discord  *fakeDiscord
	runner   *fakeRunner
	payments *fakePayments
	records  *store.Records
	meter    *demo.Meter
	chain    middleware.HandlerFunc
	admins   map[string]bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zap.NewNop()
	records := store.NewRecords(store.NewMemoryStore())
	meter := demo.NewMeter(records, 3, log)
	resolver := entitlement.NewResolver(records, premiumRole, "", log)

	h := &harness{
		discord:  &fakeDiscord{},
		runner:   &fakeRunner{},
		payments: &fakePayments{outcome: scheduler.OutcomePending},
		records:  records,
		meter:    meter,
		admins:   map[string]bool{},
	}
	bh := NewHandlers(Options{
		Interactions: h.discord,
		Gate:         gate.New(resolver, meter, nil),
		Meter:        meter,
		Entitlements: resolver,
		Payments:     h.payments,
		Features:     h.runner,
		IsAdmin:      func(id string) bool { return h.admins[id] },
		Log:          log,
	})
	m := middleware.NewInteractionAnalyzer(log)
	h.chain = m.RecoverMiddleware(m.IdentifyMiddleware(m.AnalyzeInteractionMiddleware(bh.MainHandler)))
	return h
}

func (h *harness) run(i *discordgo.InteractionCreate) {
	h.chain(context.Background(), i)
}

func member(roles ...string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: testUser, Username: "alice"}, Roles: roles}
}

func command(name string, m *discordgo.Member, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:      "interaction",
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: testGuild,
		Member:  m,
		Locale:  discordgo.EnglishUS,
		Data:    discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
	}}
}

func button(customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:      "interaction",
		Type:    discordgo.InteractionMessageComponent,
		GuildID: testGuild,
		Member:  member(),
		Data:    discordgo.MessageComponentInteractionData{CustomID: customID},
	}}
}

func str(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

func userOpt(id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: id}
}

var testKey = types.NewAccountKey(testUser, testGuild)

func TestDemoUseCountsOnlySuccessfulRuns(t *testing.T) {
	h := newHarness(t)

	h.run(command(CommandChat, member(), str("prompt", "hello")))
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, h.discord.lastResponse(t).Type)
	assert.Contains(t, h.discord.lastEdit(t), "answer to hello")
	assert.Contains(t, h.discord.lastEdit(t), "Demo uses left: **2**")
	assert.Equal(t, 1, h.meter.GetUsage(context.Background(), testKey).Used)

	h.runner.err = errors.New("backend down")
	h.run(command(CommandChat, member(), str("prompt", "again")))
	assert.Equal(t, 1, h.meter.GetUsage(context.Background(), testKey).Used)
}

func TestExhaustedDemoShowsUpsell(t *testing.T) {
	h := newHarness(t)
	for n := 0; n < 3; n++ {
		_, err := h.meter.Increment(context.Background(), testKey, "chat")
		require.NoError(t, err)
	}

	h.run(command(CommandImagine, member(), str("prompt", "a cat")))

	resp := h.discord.lastResponse(t)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags&discordgo.MessageFlagsEphemeral)
	assert.Contains(t, resp.Data.Content, "25.00 USD")
	require.Len(t, resp.Data.Components, 1)
	btn := resp.Data.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	assert.Equal(t, ButtonBuyPremium, btn.CustomID)
	assert.Empty(t, h.runner.calls)
}

func TestEntitledMemberIsNotMetered(t *testing.T) {
	h := newHarness(t)
	for n := 0; n < 3; n++ {
		_, _ = h.meter.Increment(context.Background(), testKey, "chat")
	}

	h.run(command(CommandSpeak, member(premiumRole), str("text", "hi")))

	assert.Equal(t, "https://cdn.test/out", h.discord.lastEdit(t))
	assert.Equal(t, 3, h.meter.GetUsage(context.Background(), testKey).Used)
}

func TestPaidMemberInOtherGuildIsStillMetered(t *testing.T) {
	h := newHarness(t)
	now := time.Now()
	require.NoError(t, h.records.PutPayment(context.Background(), &types.PaymentRecord{
		UserID: testUser, GuildID: "999", Status: types.PaymentCompleted, CreatedAt: now, UpdatedAt: now,
	}))

	h.run(command(CommandChat, member(), str("prompt", "hello")))
	assert.Equal(t, 1, h.meter.GetUsage(context.Background(), testKey).Used)
}

func TestEmptyPromptIsRejected(t *testing.T) {
	h := newHarness(t)
	h.run(command(CommandLipsync, member(), str("text", "hi")))

	resp := h.discord.lastResponse(t)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	assert.Empty(t, h.runner.calls)
}

func TestPremiumCommandSendsPaymentLink(t *testing.T) {
	h := newHarness(t)
	h.run(command(CommandPremium, member()))

	require.Len(t, h.discord.edits, 1)
	e := h.discord.edits[0]
	assert.Contains(t, *e.Content, "DMG-002-001-ABC123")
	require.NotNil(t, e.Components)
	row := (*e.Components)[0].(discordgo.ActionsRow)
	assert.Equal(t, "https://pay.test/O1", row.Components[0].(discordgo.Button).URL)
	assert.Equal(t, ButtonCheckPayment, row.Components[1].(discordgo.Button).CustomID)
	assert.Equal(t, []string{"alice"}, h.payments.names)
}

func TestPremiumCommandErrors(t *testing.T) {
	h := newHarness(t)
	h.payments.createErr = payments.ErrAlreadyEntitled
	h.run(button(ButtonBuyPremium))
	assert.Contains(t, h.discord.lastEdit(t), "already have premium")

	h.payments.createErr = &types.ProviderError{Op: "create order", StatusCode: 500, Err: errors.New("boom")}
	h.run(command(CommandPremium, member()))
	assert.Contains(t, h.discord.lastEdit(t), "temporarily unavailable")
}

func TestCheckPayment(t *testing.T) {
	h := newHarness(t)

	h.run(button(ButtonCheckPayment))
	assert.Contains(t, h.discord.lastEdit(t), "not received yet")

	h.payments.outcome = scheduler.OutcomeCompleted
	h.run(command(CommandCheckPayment, member()))
	assert.Contains(t, h.discord.lastEdit(t), "Payment confirmed")

	h.payments.checkErr = payments.ErrNoPendingOrder
	h.run(command(CommandCheckPayment, member()))
	assert.Contains(t, h.discord.lastEdit(t), "No open payment")
}

func TestDemoStatus(t *testing.T) {
	h := newHarness(t)
	h.run(command(CommandDemo, member()))
	assert.Contains(t, h.discord.lastResponse(t).Data.Content, "Used 0 of 3")

	booster := member()
	since := time.Now()
	booster.PremiumSince = &since
	h.run(command(CommandDemo, booster))
	assert.Contains(t, h.discord.lastResponse(t).Data.Content, "Unlimited")
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	h := newHarness(t)
	h.run(command(CommandPremiumGrant, member(), userOpt("555")))
	assert.Contains(t, h.discord.lastResponse(t).Data.Content, "Administrators only")
	assert.Empty(t, h.payments.granted)

	h.admins[testUser] = true
	h.run(command(CommandPremiumGrant, member(), userOpt("555")))
	require.Len(t, h.payments.granted, 1)
	assert.Equal(t, types.NewAccountKey("555", testGuild), h.payments.granted[0])
	assert.Contains(t, h.discord.lastEdit(t), "<@555>")
}

func TestAdminRevokeByPermission(t *testing.T) {
	h := newHarness(t)
	admin := member()
	admin.Permissions = discordgo.PermissionAdministrator

	h.payments.revokeErr = payments.ErrNotEntitled
	h.run(command(CommandPremiumRevoke, admin, userOpt("555")))
	assert.Contains(t, h.discord.lastEdit(t), "no completed payment")

	h.payments.revokeErr = nil
	h.run(command(CommandPremiumRevoke, admin, userOpt("555")))
	assert.Contains(t, h.discord.lastEdit(t), "revoked")
	assert.Len(t, h.payments.revoked, 2)
}

func TestDirectMessagesAreRefused(t *testing.T) {
	h := newHarness(t)
	i := command(CommandChat, nil, str("prompt", "hi"))
	i.GuildID = ""
	i.User = &discordgo.User{ID: testUser}

	h.run(i)
	assert.Contains(t, h.discord.lastResponse(t).Data.Content, "server")
	assert.Empty(t, h.runner.calls)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}

func TestCommandsAreGuildOnly(t *testing.T) {
	for _, c := range Commands() {
		require.NotNil(t, c.DMPermission, c.Name)
		assert.False(t, *c.DMPermission, c.Name)
	}
}
