package types

import (
	"errors"
	"fmt"
)

var (
	ErrProviderNotConfigured = errors.New("payment provider not configured")
	ErrProviderUnavailable   = errors.New("payment provider unavailable")
	ErrOrderNotFound         = errors.New("order not found")
	ErrMemberNotFound        = errors.New("member not found")
	ErrRoleNotConfigured     = errors.New("role not configured")
)

// ProviderError describes a failed call to the payment provider. It always
// matches ErrProviderUnavailable, and ErrOrderNotFound for 404 responses.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	if target == ErrProviderUnavailable {
		return true
	}
	return target == ErrOrderNotFound && e.StatusCode == 404
}
