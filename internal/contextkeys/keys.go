package contextkeys

import (
	"context"

	"github.com/BatmanBruc/dmg-bot/types"
)

type accountKeyKey struct{}
type langKey struct{}
type interactionTypeKey struct{}
type actionKey struct{}
type displayNameKey struct{}

type InteractionType string

const (
	InteractionCommand     InteractionType = "command"
	InteractionClickButton InteractionType = "clickButton"
	InteractionUnknown     InteractionType = "unknown"
)

func WithAccountKey(ctx context.Context, key types.AccountKey) context.Context {
	return context.WithValue(ctx, accountKeyKey{}, key)
}

func GetAccountKey(ctx context.Context) (types.AccountKey, bool) {
	v, ok := ctx.Value(accountKeyKey{}).(types.AccountKey)
	return v, ok
}

func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, langKey{}, lang)
}

func GetLang(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(langKey{}).(string)
	return v, ok
}

func WithInteractionType(ctx context.Context, t InteractionType) context.Context {
	return context.WithValue(ctx, interactionTypeKey{}, t)
}

func GetInteractionType(ctx context.Context) (InteractionType, bool) {
	v, ok := ctx.Value(interactionTypeKey{}).(InteractionType)
	if !ok {
		return InteractionUnknown, false
	}
	return v, true
}

// WithAction stores the slash command name or the clicked button's custom id.
func WithAction(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, actionKey{}, action)
}

func GetAction(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actionKey{}).(string)
	return v, ok
}

func WithDisplayName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, displayNameKey{}, name)
}

func GetDisplayName(ctx context.Context) string {
	v, _ := ctx.Value(displayNameKey{}).(string)
	return v
}
