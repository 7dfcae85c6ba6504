package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/BatmanBruc/dmg-bot/store"
	"github.com/BatmanBruc/dmg-bot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSponsor(t *testing.T) {
	r := NewResolver(nil, "premium", "sponsor", nil)
	boosted := time.Now()

	cases := []struct {
		name   string
		member *types.MemberSnapshot
		want   bool
	}{
		{name: "nil snapshot", member: nil, want: false},
		{name: "no roles", member: &types.MemberSnapshot{}, want: false},
		{name: "sponsor role", member: &types.MemberSnapshot{Roles: []string{"x", "sponsor"}}, want: true},
		{name: "premium role", member: &types.MemberSnapshot{Roles: []string{"premium"}}, want: true},
		{name: "booster", member: &types.MemberSnapshot{PremiumSince: &boosted}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.IsSponsor(tc.member))
		})
	}
}

func TestIsSponsorIgnoresUnconfiguredRoles(t *testing.T) {
	r := NewResolver(nil, "", "", nil)
	assert.False(t, r.IsSponsor(&types.MemberSnapshot{Roles: []string{""}}))
}

func TestHasEntitlementFromCompletedPayment(t *testing.T) {
	records := store.NewRecords(store.NewMemoryStore())
	ctx := context.Background()
	r := NewResolver(records, "premium", "sponsor", nil)

	g1 := types.NewAccountKey("u", "g1")
	g2 := types.NewAccountKey("u", "g2")
	g3 := types.NewAccountKey("u", "g3")
	require.NoError(t, records.PutPayment(ctx, &types.PaymentRecord{UserID: "u", GuildID: "g1", Status: types.PaymentCompleted}))
	require.NoError(t, records.PutPayment(ctx, &types.PaymentRecord{UserID: "u", GuildID: "g2", Status: types.PaymentPending}))
	require.NoError(t, records.PutPayment(ctx, &types.PaymentRecord{UserID: "u", GuildID: "g3", Status: types.PaymentRevoked}))

	assert.True(t, r.HasEntitlement(ctx, g1, nil))
	assert.False(t, r.HasEntitlement(ctx, g2, nil))
	assert.False(t, r.HasEntitlement(ctx, g3, nil))
	assert.False(t, r.HasEntitlement(ctx, types.NewAccountKey("u", "g4"), nil))
	assert.True(t, r.HasEntitlement(ctx, g2, &types.MemberSnapshot{Roles: []string{"sponsor"}}))
}
