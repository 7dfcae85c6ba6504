package utils

import "github.com/bwmarrin/discordgo"

const maxButtonsPerRow = 5

// Button is either a link (URL set) or an interaction button (CustomID set).
type Button struct {
	Label    string
	CustomID string
	URL      string
	Style    discordgo.ButtonStyle
}

func BuildButtonRows(buttons []Button) []discordgo.MessageComponent {
	rows := make([]discordgo.MessageComponent, 0)
	row := make([]discordgo.MessageComponent, 0, maxButtonsPerRow)
	for i, button := range buttons {
		if i > 0 && i%maxButtonsPerRow == 0 {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = make([]discordgo.MessageComponent, 0, maxButtonsPerRow)
		}
		row = append(row, toComponent(button))
	}
	if len(row) > 0 {
		rows = append(rows, discordgo.ActionsRow{Components: row})
	}
	return rows
}

func toComponent(b Button) discordgo.Button {
	if b.URL != "" {
		return discordgo.Button{Label: b.Label, Style: discordgo.LinkButton, URL: b.URL}
	}
	style := b.Style
	if style == 0 {
		style = discordgo.PrimaryButton
	}
	return discordgo.Button{Label: b.Label, Style: style, CustomID: b.CustomID}
}
