package roles

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/BatmanBruc/dmg-bot/types"
	"github.com/bwmarrin/discordgo"
)

// discordAPI is the slice of *discordgo.Session used here.
type discordAPI interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ discordAPI = (*discordgo.Session)(nil)

type DiscordMembership struct {
	api discordAPI
}

var _ types.Membership = (*DiscordMembership)(nil)

func NewDiscordMembership(s *discordgo.Session) *DiscordMembership {
	return &DiscordMembership{api: s}
}

func restCode(err error) (status, code int) {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return 0, 0
	}
	if restErr.Response != nil {
		status = restErr.Response.StatusCode
	}
	if restErr.Message != nil {
		code = restErr.Message.Code
	}
	return status, code
}

func (d *DiscordMembership) GetMemberRoles(ctx context.Context, guildID, userID string) (*types.MemberSnapshot, error) {
	m, err := d.api.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		status, code := restCode(err)
		if code == discordgo.ErrCodeUnknownMember || code == discordgo.ErrCodeUnknownUser || status == http.StatusNotFound {
			return nil, fmt.Errorf("guild %s user %s: %w", guildID, userID, types.ErrMemberNotFound)
		}
		return nil, err
	}
	return &types.MemberSnapshot{
		UserID:       userID,
		GuildID:      guildID,
		Roles:        m.Roles,
		PremiumSince: m.PremiumSince,
	}, nil
}

func (d *DiscordMembership) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return d.wrapRoleErr(d.api.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)), roleID)
}

func (d *DiscordMembership) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return d.wrapRoleErr(d.api.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)), roleID)
}

func (d *DiscordMembership) wrapRoleErr(err error, roleID string) error {
	if err == nil {
		return nil
	}
	switch _, code := restCode(err); code {
	case discordgo.ErrCodeUnknownRole:
		return fmt.Errorf("role %s: %w", roleID, types.ErrRoleNotConfigured)
	case discordgo.ErrCodeUnknownMember:
		return types.ErrMemberNotFound
	}
	return err
}

func (d *DiscordMembership) SendDirectMessage(ctx context.Context, userID, content string) error {
	ch, err := d.api.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	if _, err := d.api.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}
