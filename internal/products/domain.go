package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog item. StockQuantity counts finished goods and is
// mutated only by the fulfillment and compensation paths for line items
// flagged order-from-stock.
type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	BasePrice     decimal.Decimal `json:"base_price"`
	StockQuantity int64           `json:"stock_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
