package materials

import "github.com/shopspring/decimal"

// AddStockRequest is the payload for a manual stock addition.
type AddStockRequest struct {
	Quantity  decimal.Decimal `json:"quantity" validate:"required"`
	Reason    string          `json:"reason,omitempty" validate:"max=500"`
	ActorID   int64           `json:"actor_id" validate:"gte=0"`
	ActorName string          `json:"actor_name" validate:"required,max=100"`
}
