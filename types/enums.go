package types

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentRevoked   PaymentStatus = "revoked"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentRevoked:
		return true
	default:
		return false
	}
}

// OrderStatus is the provider order state normalised across providers.
type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderApproved  OrderStatus = "approved"
	OrderCompleted OrderStatus = "completed"
	OrderVoided    OrderStatus = "voided"
	OrderUnknown   OrderStatus = "unknown"
)

const (
	CollectionPayments  = "payments"
	CollectionDemoUsage = "demo_usage"
)
