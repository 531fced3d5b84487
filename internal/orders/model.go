package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusInProgress OrderStatus = "IN_PROGRESS"
	StatusCompleted  OrderStatus = "COMPLETED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

var statusRank = map[OrderStatus]int{
	StatusPending:    0,
	StatusInProgress: 1,
	StatusCompleted:  2,
	StatusDelivered:  3,
}

// Known reports whether the status is a recognised lifecycle state.
func (s OrderStatus) Known() bool {
	_, ok := statusRank[s]
	return ok || s == StatusCancelled
}

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo reports whether the move from s to next is legal. The
// lifecycle only moves forward through pending, in-progress, completed and
// delivered; any non-terminal state may move to cancelled.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Order is created once; status transitions are its only header mutation
// besides the patchable delivery date and notes.
type Order struct {
	ID           int64       `json:"id"`
	CustomerID   int64       `json:"customer_id"`
	DeliveryDate time.Time   `json:"delivery_date"`
	Status       OrderStatus `json:"status"`
	Notes        *string     `json:"notes,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Lines        []LineItem  `json:"lines,omitempty"`
}

// LineItem is one product entry within an order. Identity is
// (order_id, product_id); line items are created with the order and replaced
// wholesale on edit, never partially mutated. UnitPrice is the price snapshot
// taken at order time.
type LineItem struct {
	OrderID             int64            `json:"order_id"`
	ProductID           int64            `json:"product_id"`
	ProductName         string           `json:"product_name,omitempty"`
	Quantity            int64            `json:"quantity"`
	UnitPrice           decimal.Decimal  `json:"unit_price"`
	CustomAmountPerUnit *decimal.Decimal `json:"custom_amount_per_unit,omitempty"`
	IsCustomSize        bool             `json:"is_custom_size"`
	WidthCM             *decimal.Decimal `json:"width_cm,omitempty"`
	HeightCM            *decimal.Decimal `json:"height_cm,omitempty"`
	OrderFromStock      bool             `json:"order_from_stock"`
	CreatedAt           time.Time        `json:"created_at"`
}

// ReconciliationStatus tracks compensation bookkeeping.
type ReconciliationStatus string

const (
	ReconciliationPending  ReconciliationStatus = "PENDING"
	ReconciliationResolved ReconciliationStatus = "RESOLVED"
)

// Reconciliation is the durable marker for a cancellation whose stock
// restoration may still be outstanding. It commits together with the status
// transition, so a crash between the transition and the restoration leaves a
// pending row for the sweep to pick up.
type Reconciliation struct {
	ID         int64                `json:"id"`
	OrderID    int64                `json:"order_id"`
	Status     ReconciliationStatus `json:"status"`
	Detail     string               `json:"detail,omitempty"`
	Attempts   int                  `json:"attempts"`
	CreatedAt  time.Time            `json:"created_at"`
	ResolvedAt *time.Time           `json:"resolved_at,omitempty"`
}

// OrderPatch carries optional header updates. Only populated fields reach the
// database; the repository never assembles SQL from request shape.
type OrderPatch struct {
	DeliveryDate *time.Time
	Notes        *string
}

// Empty reports whether the patch carries no change.
func (p OrderPatch) Empty() bool {
	return p.DeliveryDate == nil && p.Notes == nil
}
