package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates a referenced product, material or order does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a disallowed order status change.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError rejects malformed input before any transaction opens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Reason)
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ShortfallKind distinguishes raw-material from finished-goods shortfalls.
type ShortfallKind string

const (
	ShortfallMaterial ShortfallKind = "material"
	ShortfallProduct  ShortfallKind = "product"
)

// Shortfall describes one insufficient requirement discovered by the gate.
type Shortfall struct {
	Kind      ShortfallKind   `json:"kind"`
	EntityID  int64           `json:"entity_id"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit,omitempty"`
	Required  decimal.Decimal `json:"required"`
	Available decimal.Decimal `json:"available"`
	Missing   decimal.Decimal `json:"missing"`
}

// InsufficiencyError carries every shortfall found while gating an order.
// Nothing has been written when callers see it.
type InsufficiencyError struct {
	Shortfalls []Shortfall
}

func (e *InsufficiencyError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s %q requires %s, available %s", s.Kind, s.Name, s.Required, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}
