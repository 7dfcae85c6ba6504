package handlers

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/BatmanBruc/dmg-bot/internal/features"
	"github.com/BatmanBruc/dmg-bot/internal/i18n"
	"github.com/BatmanBruc/dmg-bot/internal/messages"
	"github.com/BatmanBruc/dmg-bot/types"
)

// HandleFeature runs one gated command. Demo quota is consumed only after the
// backend produced output.
func (bh *Handlers) HandleFeature(ctx context.Context, i *discordgo.InteractionCreate, key types.AccountKey, lang i18n.Lang, kind features.Kind) {
	opts := optionMap(i)
	req := features.Request{
		UserID:  key.UserID,
		GuildID: key.GuildID,
		Locale:  string(lang),
	}
	switch kind {
	case features.Chat, features.Imagine:
		req.Prompt = strings.TrimSpace(stringOption(opts, "prompt"))
	case features.Speak:
		req.Prompt = strings.TrimSpace(stringOption(opts, "text"))
	case features.Lipsync:
		req.Prompt = strings.TrimSpace(stringOption(opts, "text"))
		req.ImageURL = strings.TrimSpace(stringOption(opts, "image_url"))
	}
	if req.Prompt == "" || (kind == features.Lipsync && req.ImageURL == "") {
		bh.reply(ctx, i, messages.ErrorEmptyPrompt(lang), true)
		return
	}

	decision := bh.gate.Evaluate(ctx, key, bh.memberSnapshot(ctx, i, key))
	if !decision.Allowed {
		bh.sendUpsell(ctx, i, lang)
		return
	}

	if !bh.deferReply(ctx, i, false) {
		return
	}

	log := bh.log.With(zap.String("user_id", key.UserID), zap.String("guild_id", key.GuildID), zap.String("feature", string(kind)))

	res, err := bh.features.Run(ctx, kind, req)
	if err != nil {
		log.Error("feature failed", zap.Error(err))
		bh.edit(ctx, i, messages.ErrorFeatureFailed(lang), nil)
		return
	}

	content := renderResult(res)
	if decision.IsDemo {
		remaining := decision.Remaining - 1
		usage, err := bh.meter.Increment(ctx, key, string(kind))
		if err != nil {
			log.Error("demo usage increment failed", zap.Error(err))
		} else {
			remaining = usage.Remaining()
		}
		if remaining < 0 {
			remaining = 0
		}
		footer := "\n\n" + messages.DemoRemaining(lang, remaining)
		content = truncate(content, maxContentLen-len([]rune(footer))) + footer
	}
	bh.edit(ctx, i, content, nil)
}

func renderResult(res *features.Result) string {
	text := strings.TrimSpace(res.Text)
	url := strings.TrimSpace(res.URL)
	switch {
	case text != "" && url != "":
		return text + "\n" + url
	case url != "":
		return url
	default:
		return text
	}
}
