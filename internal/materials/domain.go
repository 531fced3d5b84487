package materials

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MaterialStatus is derived from current stock against the minimum level.
type MaterialStatus string

const (
	StatusAvailable  MaterialStatus = "AVAILABLE"
	StatusLowStock   MaterialStatus = "LOW_STOCK"
	StatusOutOfStock MaterialStatus = "OUT_OF_STOCK"
)

// RawMaterial is consumable stock. CurrentStock is a cache of the ledger: at
// all times it equals initial stock plus the signed sum of all stock
// transactions for the material. It is mutated only through ledger-producing
// operations.
type RawMaterial struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	Unit         string          `json:"unit"`
	MinStock     decimal.Decimal `json:"min_stock"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Status derives the stock state. Out of stock wins over low stock.
func (m RawMaterial) Status() MaterialStatus {
	if m.CurrentStock.Sign() <= 0 {
		return StatusOutOfStock
	}
	if m.CurrentStock.Cmp(m.MinStock) <= 0 {
		return StatusLowStock
	}
	return StatusAvailable
}

// BOMEntry maps a product to one raw material with the amount consumed per
// unit produced. A product may reference zero, one or many materials.
type BOMEntry struct {
	ProductID     int64           `json:"product_id"`
	MaterialID    int64           `json:"material_id"`
	AmountPerUnit decimal.Decimal `json:"amount_per_unit"`
}

// BOMLine joins a BOM entry with its material, as read for requirement
// calculation.
type BOMLine struct {
	Entry    BOMEntry
	Material RawMaterial
}

// TransactionType enumerates ledger movements.
type TransactionType string

const (
	// TransactionAdd increases stock by a positive magnitude.
	TransactionAdd TransactionType = "ADD"
	// TransactionSubtract decreases stock by a positive magnitude.
	TransactionSubtract TransactionType = "SUBTRACT"
	// TransactionAdjustment applies a signed delta supplied by the caller.
	TransactionAdjustment TransactionType = "ADJUSTMENT"
)

// Reference types recorded on ledger rows.
const (
	ReferenceOrder  = "ORDER"
	ReferenceManual = "MANUAL"
)

// StockTransaction is one append-only ledger row. For every row
// previous_stock + signed(type, quantity) = new_stock, and the latest row's
// new_stock equals the material's current_stock.
type StockTransaction struct {
	ID            int64           `json:"id"`
	MaterialID    int64           `json:"material_id"`
	Type          TransactionType `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	PreviousStock decimal.Decimal `json:"previous_stock"`
	NewStock      decimal.Decimal `json:"new_stock"`
	Reason        string          `json:"reason"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Requirement is one row of the requirement calculator output.
type Requirement struct {
	MaterialID    int64           `json:"material_id"`
	MaterialName  string          `json:"material_name"`
	CurrentStock  decimal.Decimal `json:"current_stock"`
	Unit          string          `json:"unit"`
	AmountPerUnit decimal.Decimal `json:"amount_per_unit"`
	TotalRequired decimal.Decimal `json:"total_required"`
	Sufficient    bool            `json:"sufficient"`
}

// ErrNegativeStock triggered when a movement would drive stock negative.
var ErrNegativeStock = errors.New("materials: negative stock not allowed")

// ErrInvalidQuantity indicates an invalid movement quantity.
var ErrInvalidQuantity = errors.New("materials: invalid quantity")
