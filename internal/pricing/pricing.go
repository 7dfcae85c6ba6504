package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DefaultAmount   = "25.00"
	DefaultCurrency = "USD"
)

var ErrInvalidAmount = errors.New("invalid amount")

func normalizeCommand(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
}

// IsGated reports whether a command consumes demo quota for users without
// an entitlement.
func IsGated(command string) bool {
	switch normalizeCommand(command) {
	case "chat", "speak", "imagine", "lipsync":
		return true
	default:
		return false
	}
}

// Plan is the one-time premium purchase.
type Plan struct {
	Amount   string
	Currency string
}

func NewPlan(amount, currency string) Plan {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		amount = DefaultAmount
	}
	if d, err := decimal.NewFromString(amount); err == nil && d.IsPositive() {
		amount = d.StringFixed(2)
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return Plan{Amount: amount, Currency: currency}
}

func (p Plan) Display() string {
	return fmt.Sprintf("%s %s", p.Amount, p.Currency)
}

// MinorUnits converts a decimal amount such as "25.00" into cents.
func MinorUnits(amount string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if d.IsNegative() {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}
