package materials

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fabrica-erp/fabrica-erp/internal/shared"
)

// LedgerTx is the slice of a storage transaction the ledger writer needs. The
// materials and orders transaction repositories both implement it, so order
// commits append ledger rows inside their own transaction.
type LedgerTx interface {
	GetMaterialForUpdate(ctx context.Context, materialID int64) (RawMaterial, error)
	UpdateMaterialStock(ctx context.Context, materialID int64, newStock decimal.Decimal) error
	InsertStockTransaction(ctx context.Context, tx StockTransaction) (int64, error)
}

// AppendInput describes one ledger append.
type AppendInput struct {
	MaterialID int64
	Type       TransactionType
	// Quantity is a positive magnitude for ADD and SUBTRACT; for ADJUSTMENT it
	// is the signed delta to apply.
	Quantity      decimal.Decimal
	Reason        string
	ReferenceType string
	ReferenceID   string
	Actor         shared.Actor
}

// LedgerWriter appends stock transactions. Every append atomically reads the
// material under a row lock, writes the updated stock, and inserts the ledger
// row with matching before/after quantities. The ledger records truth, it does
// not police it: callers must have gated sufficiency before a SUBTRACT, and a
// subtract that would go negative is an invariant violation, not business
// feedback.
type LedgerWriter struct{}

// NewLedgerWriter constructs a LedgerWriter.
func NewLedgerWriter() *LedgerWriter {
	return &LedgerWriter{}
}

// Append records one stock mutation within the caller's transaction.
func (w *LedgerWriter) Append(ctx context.Context, tx LedgerTx, in AppendInput) (StockTransaction, error) {
	switch in.Type {
	case TransactionAdd, TransactionSubtract:
		if in.Quantity.Sign() <= 0 {
			return StockTransaction{}, ErrInvalidQuantity
		}
	case TransactionAdjustment:
		if in.Quantity.IsZero() {
			return StockTransaction{}, ErrInvalidQuantity
		}
	default:
		return StockTransaction{}, fmt.Errorf("materials: unknown transaction type %q", in.Type)
	}
	if !in.Actor.Valid() {
		return StockTransaction{}, fmt.Errorf("materials: ledger append requires an actor")
	}

	mat, err := tx.GetMaterialForUpdate(ctx, in.MaterialID)
	if err != nil {
		return StockTransaction{}, err
	}

	delta := signedDelta(in.Type, in.Quantity)
	newStock := mat.CurrentStock.Add(delta)
	if newStock.IsNegative() {
		return StockTransaction{}, fmt.Errorf("material %d (%s): %w", mat.ID, mat.Name, ErrNegativeStock)
	}

	if err := tx.UpdateMaterialStock(ctx, in.MaterialID, newStock); err != nil {
		return StockTransaction{}, err
	}

	row := StockTransaction{
		MaterialID:    in.MaterialID,
		Type:          in.Type,
		Quantity:      in.Quantity.Abs(),
		PreviousStock: mat.CurrentStock,
		NewStock:      newStock,
		Reason:        in.Reason,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		CreatedBy:     in.Actor.Name,
	}
	id, err := tx.InsertStockTransaction(ctx, row)
	if err != nil {
		return StockTransaction{}, err
	}
	row.ID = id
	return row, nil
}

func signedDelta(t TransactionType, qty decimal.Decimal) decimal.Decimal {
	switch t {
	case TransactionSubtract:
		return qty.Neg()
	default:
		return qty
	}
}
