package types

import "context"

type OrderRequest struct {
	Key         AccountKey
	Reference   string
	CustomID    string
	Amount      string
	Currency    string
	Description string
	DisplayName string
}

type ProviderOrder struct {
	ID          string
	Status      OrderStatus
	ApprovalURL string
	CustomID    string
}

type PaymentProvider interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (*ProviderOrder, error)
	GetOrder(ctx context.Context, orderID string) (*ProviderOrder, error)
	CaptureOrder(ctx context.Context, orderID string) (*ProviderOrder, error)
}

// Membership is the guild membership system the bot grants privileges in.
type Membership interface {
	GetMemberRoles(ctx context.Context, guildID, userID string) (*MemberSnapshot, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	SendDirectMessage(ctx context.Context, userID, content string) error
}
