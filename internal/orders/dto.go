package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItemRequest is one requested line within a create or replace call.
type LineItemRequest struct {
	ProductID           int64            `json:"product_id" validate:"required,gt=0"`
	Quantity            int64            `json:"quantity" validate:"required,gt=0"`
	UnitPrice           decimal.Decimal  `json:"unit_price" validate:"required"`
	CustomAmountPerUnit *decimal.Decimal `json:"custom_amount_per_unit,omitempty"`
	IsCustomSize        bool             `json:"is_custom_size"`
	WidthCM             *decimal.Decimal `json:"width_cm,omitempty"`
	HeightCM            *decimal.Decimal `json:"height_cm,omitempty"`
	OrderFromStock      bool             `json:"order_from_stock"`
}

// CreateOrderRequest is the payload for order creation. IdempotencyKey is
// optional; when present a retried submit with the same key is rejected
// instead of consuming stock twice.
type CreateOrderRequest struct {
	CustomerID     int64             `json:"customer_id" validate:"required,gt=0"`
	DeliveryDate   time.Time         `json:"delivery_date" validate:"required"`
	Notes          *string           `json:"notes,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty" validate:"max=128"`
	ActorID        int64             `json:"actor_id" validate:"gte=0"`
	ActorName      string            `json:"actor_name" validate:"required,max=100"`
	Lines          []LineItemRequest `json:"lines" validate:"required,min=1,dive"`
}

// UpdateStatusRequest transitions an order's lifecycle state.
type UpdateStatusRequest struct {
	Status    OrderStatus `json:"status" validate:"required"`
	ActorID   int64       `json:"actor_id" validate:"gte=0"`
	ActorName string      `json:"actor_name" validate:"required,max=100"`
}

// ReplaceLinesRequest swaps an order's line items wholesale.
type ReplaceLinesRequest struct {
	ActorID   int64             `json:"actor_id" validate:"gte=0"`
	ActorName string            `json:"actor_name" validate:"required,max=100"`
	Lines     []LineItemRequest `json:"lines" validate:"required,min=1,dive"`
}

// PatchOrderRequest updates optional header fields.
type PatchOrderRequest struct {
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
}

// ListOrdersRequest filters the order list.
type ListOrdersRequest struct {
	Status *OrderStatus `json:"status,omitempty"`
	Limit  int          `json:"limit" validate:"gte=0,lte=1000"`
	Offset int          `json:"offset" validate:"gte=0"`
}
