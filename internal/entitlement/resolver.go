package entitlement

import (
	"context"

	"github.com/BatmanBruc/dmg-bot/types"
	"go.uber.org/zap"
)

// Resolver decides whether a member may skip demo metering in a guild.
type Resolver struct {
	payments      types.PaymentStore
	premiumRoleID string
	sponsorRoleID string
	log           *zap.Logger
}

func NewResolver(payments types.PaymentStore, premiumRoleID, sponsorRoleID string, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		payments:      payments,
		premiumRoleID: premiumRoleID,
		sponsorRoleID: sponsorRoleID,
		log:           log.Named("entitlement"),
	}
}

// HasEntitlement is true for a completed payment in this guild or for a
// sponsor membership. It only reads.
func (r *Resolver) HasEntitlement(ctx context.Context, key types.AccountKey, member *types.MemberSnapshot) bool {
	if r.IsSponsor(member) {
		return true
	}
	rec, err := r.payments.GetPayment(ctx, key)
	if err != nil {
		r.log.Warn("read payment failed, assuming no entitlement", zap.String("key", key.String()), zap.Error(err))
		return false
	}
	return rec.IsCompleted()
}

// IsSponsor reports server boosters and holders of the sponsor or premium role.
func (r *Resolver) IsSponsor(member *types.MemberSnapshot) bool {
	if member == nil {
		return false
	}
	if member.PremiumSince != nil {
		return true
	}
	return member.HasRole(r.sponsorRoleID) || member.HasRole(r.premiumRoleID)
}
