package roles

import (
	"context"
	"errors"

	"github.com/BatmanBruc/dmg-bot/types"
	"go.uber.org/zap"
)

// Actuator applies and removes the premium role. Both directions are
// idempotent and report failure as false instead of an error; the caller
// has already committed the payment state by the time they run.
type Actuator struct {
	members types.Membership
	roleID  string
	log     *zap.Logger
}

func NewActuator(members types.Membership, premiumRoleID string, log *zap.Logger) *Actuator {
	return &Actuator{
		members: members,
		roleID:  premiumRoleID,
		log:     log.Named("roles"),
	}
}

func (a *Actuator) Grant(ctx context.Context, key types.AccountKey) bool {
	return a.apply(ctx, key, true)
}

func (a *Actuator) Revoke(ctx context.Context, key types.AccountKey) bool {
	return a.apply(ctx, key, false)
}

func (a *Actuator) apply(ctx context.Context, key types.AccountKey, grant bool) bool {
	log := a.log.With(zap.String("user_id", key.UserID), zap.String("guild_id", key.GuildID), zap.Bool("grant", grant))
	if a.roleID == "" {
		log.Error("premium role id is not configured")
		return false
	}

	member, err := a.members.GetMemberRoles(ctx, key.GuildID, key.UserID)
	if err != nil {
		if errors.Is(err, types.ErrMemberNotFound) {
			log.Warn("member not found in guild")
		} else {
			log.Error("fetch member failed", zap.Error(err))
		}
		return false
	}

	has := member.HasRole(a.roleID)
	switch {
	case grant && has, !grant && !has:
		return true
	case grant:
		err = a.members.AddRole(ctx, key.GuildID, key.UserID, a.roleID)
	default:
		err = a.members.RemoveRole(ctx, key.GuildID, key.UserID, a.roleID)
	}
	if err != nil {
		log.Error("role change failed", zap.String("role_id", a.roleID), zap.Error(err))
		return false
	}
	log.Info("role changed", zap.String("role_id", a.roleID))
	return true
}

// Notify sends a direct message. Users with closed DMs are common, so a
// failure is logged at warn level only.
func (a *Actuator) Notify(ctx context.Context, userID, content string) bool {
	if err := a.members.SendDirectMessage(ctx, userID, content); err != nil {
		a.log.Warn("direct message failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return true
}

// Member returns the member snapshot used for entitlement checks.
func (a *Actuator) Member(ctx context.Context, key types.AccountKey) (*types.MemberSnapshot, error) {
	return a.members.GetMemberRoles(ctx, key.GuildID, key.UserID)
}
