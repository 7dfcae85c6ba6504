package handlers

import (
	"github.com/bwmarrin/discordgo"
)

const (
	CommandChat          = "chat"
	CommandSpeak         = "speak"
	CommandImagine       = "imagine"
	CommandLipsync       = "lipsync"
	CommandPremium       = "premium"
	CommandCheckPayment  = "checkpayment"
	CommandDemo          = "demo"
	CommandPremiumGrant  = "premium-grant"
	CommandPremiumRevoke = "premium-revoke"

	ButtonBuyPremium   = "premium:buy"
	ButtonCheckPayment = "premium:check"
)

// Commands returns the slash commands the bot registers in every guild.
func Commands() []*discordgo.ApplicationCommand {
	dm := false
	admin := int64(discordgo.PermissionAdministrator)

	prompt := func(name, description string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        name,
			Description: description,
			Required:    true,
			MaxLength:   1500,
		}
	}
	target := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: "Member to update",
		Required:    true,
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:         CommandChat,
			Description:  "Talk to the assistant",
			DMPermission: &dm,
			Options:      []*discordgo.ApplicationCommandOption{prompt("prompt", "What to ask")},
		},
		{
			Name:         CommandSpeak,
			Description:  "Turn text into speech",
			DMPermission: &dm,
			Options:      []*discordgo.ApplicationCommandOption{prompt("text", "Text to speak")},
		},
		{
			Name:         CommandImagine,
			Description:  "Generate an image",
			DMPermission: &dm,
			Options:      []*discordgo.ApplicationCommandOption{prompt("prompt", "Describe the image")},
		},
		{
			Name:         CommandLipsync,
			Description:  "Animate a portrait saying your text",
			DMPermission: &dm,
			Options: []*discordgo.ApplicationCommandOption{
				prompt("text", "Text to say"),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "image_url",
					Description: "Portrait image URL",
					Required:    true,
				},
			},
		},
		{
			Name:         CommandPremium,
			Description:  "Buy unlimited access in this server",
			DMPermission: &dm,
		},
		{
			Name:         CommandCheckPayment,
			Description:  "Check your pending payment",
			DMPermission: &dm,
		},
		{
			Name:         CommandDemo,
			Description:  "Show your free requests left",
			DMPermission: &dm,
		},
		{
			Name:                     CommandPremiumGrant,
			Description:              "Grant premium to a member",
			DMPermission:             &dm,
			DefaultMemberPermissions: &admin,
			Options:                  []*discordgo.ApplicationCommandOption{target},
		},
		{
			Name:                     CommandPremiumRevoke,
			Description:              "Revoke premium from a member",
			DMPermission:             &dm,
			DefaultMemberPermissions: &admin,
			Options:                  []*discordgo.ApplicationCommandOption{target},
		},
	}
}

type commandRegistrar interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// RegisterCommands replaces the application's commands. An empty guildID
// registers them globally.
func RegisterCommands(r commandRegistrar, appID, guildID string) ([]*discordgo.ApplicationCommand, error) {
	return r.ApplicationCommandBulkOverwrite(appID, guildID, Commands())
}

func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func stringOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	o, ok := opts[name]
	if !ok || o.Type != discordgo.ApplicationCommandOptionString {
		return ""
	}
	return o.StringValue()
}

func userOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	o, ok := opts[name]
	if !ok || o.Type != discordgo.ApplicationCommandOptionUser {
		return ""
	}
	if u := o.UserValue(nil); u != nil {
		return u.ID
	}
	return ""
}
