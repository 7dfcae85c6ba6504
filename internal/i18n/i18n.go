package i18n

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

type Lang string

const (
	RU Lang = "ru"
	EN Lang = "en"
)

func FromLanguageCode(code string) Lang {
	code = strings.ToLower(strings.TrimSpace(code))
	if strings.HasPrefix(code, "ru") || strings.HasPrefix(code, "uk") {
		return RU
	}
	return EN
}

// FromLocale picks the language for a Discord client locale, falling back to
// the guild's preferred locale.
func FromLocale(user, guild discordgo.Locale) Lang {
	if user != "" {
		return FromLanguageCode(string(user))
	}
	return FromLanguageCode(string(guild))
}

func Parse(s string) Lang {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "ru":
		return RU
	case "en":
		return EN
	default:
		return EN
	}
}
