package materials

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fabrica-erp/fabrica-erp/internal/shared"
)

type fakeLedgerTx struct {
	materials map[int64]RawMaterial
	rows      []StockTransaction
	nextID    int64
}

func newFakeLedgerTx(mats ...RawMaterial) *fakeLedgerTx {
	tx := &fakeLedgerTx{materials: map[int64]RawMaterial{}, nextID: 1}
	for _, m := range mats {
		tx.materials[m.ID] = m
	}
	return tx
}

func (f *fakeLedgerTx) GetMaterialForUpdate(ctx context.Context, materialID int64) (RawMaterial, error) {
	m, ok := f.materials[materialID]
	if !ok {
		return RawMaterial{}, shared.ErrNotFound
	}
	return m, nil
}

func (f *fakeLedgerTx) UpdateMaterialStock(ctx context.Context, materialID int64, newStock decimal.Decimal) error {
	m := f.materials[materialID]
	m.CurrentStock = newStock
	f.materials[materialID] = m
	return nil
}

func (f *fakeLedgerTx) InsertStockTransaction(ctx context.Context, row StockTransaction) (int64, error) {
	id := f.nextID
	f.nextID++
	row.ID = id
	f.rows = append(f.rows, row)
	return id, nil
}

var testActor = shared.Actor{ID: 7, Name: "warehouse"}

func TestLedgerAppendAdd(t *testing.T) {
	tx := newFakeLedgerTx(RawMaterial{ID: 1, Name: "Aluminium", CurrentStock: dec("10")})
	w := NewLedgerWriter()

	row, err := w.Append(context.Background(), tx, AppendInput{
		MaterialID: 1,
		Type:       TransactionAdd,
		Quantity:   dec("5.5"),
		Reason:     "restock",
		Actor:      testActor,
	})
	require.NoError(t, err)
	require.True(t, row.PreviousStock.Equal(dec("10")))
	require.True(t, row.NewStock.Equal(dec("15.5")))
	require.True(t, tx.materials[1].CurrentStock.Equal(dec("15.5")))
	require.Equal(t, "warehouse", row.CreatedBy)
	require.Len(t, tx.rows, 1)
}

func TestLedgerAppendSubtract(t *testing.T) {
	tx := newFakeLedgerTx(RawMaterial{ID: 1, CurrentStock: dec("10")})
	w := NewLedgerWriter()

	row, err := w.Append(context.Background(), tx, AppendInput{
		MaterialID: 1,
		Type:       TransactionSubtract,
		Quantity:   dec("4"),
		Actor:      testActor,
	})
	require.NoError(t, err)
	require.True(t, row.NewStock.Equal(dec("6")))
	// Ledger stores the magnitude; direction lives in the type.
	require.True(t, row.Quantity.Equal(dec("4")))
}

func TestLedgerAppendSubtractToZero(t *testing.T) {
	tx := newFakeLedgerTx(RawMaterial{ID: 1, CurrentStock: dec("4")})
	w := NewLedgerWriter()

	row, err := w.Append(context.Background(), tx, AppendInput{
		MaterialID: 1,
		Type:       TransactionSubtract,
		Quantity:   dec("4"),
		Actor:      testActor,
	})
	require.NoError(t, err)
	require.True(t, row.NewStock.IsZero())
}

func TestLedgerAppendRefusesNegativeStock(t *testing.T) {
	tx := newFakeLedgerTx(RawMaterial{ID: 1, Name: "Glass", CurrentStock: dec("3")})
	w := NewLedgerWriter()

	_, err := w.Append(context.Background(), tx, AppendInput{
		MaterialID: 1,
		Type:       TransactionSubtract,
		Quantity:   dec("3.001"),
		Actor:      testActor,
	})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.True(t, tx.materials[1].CurrentStock.Equal(dec("3")))
	require.Empty(t, tx.rows)
}

func TestLedgerAppendAdjustmentSigned(t *testing.T) {
	tx := newFakeLedgerTx(RawMaterial{ID: 1, CurrentStock: dec("10")})
	w := NewLedgerWriter()

	row, err := w.Append(context.Background(), tx, AppendInput{
		MaterialID: 1,
		Type:       TransactionAdjustment,
		Quantity:   dec("-2.5"),
		Reason:     "stocktake correction",
		Actor:      testActor,
	})
	require.NoError(t, err)
	require.True(t, row.NewStock.Equal(dec("7.5")))
	require.True(t, row.Quantity.Equal(dec("2.5")))
}

func TestLedgerAppendRejectsInvalidQuantity(t *testing.T) {
	tx := newFakeLedgerTx(RawMaterial{ID: 1, CurrentStock: dec("10")})
	w := NewLedgerWriter()

	for _, in := range []AppendInput{
		{MaterialID: 1, Type: TransactionAdd, Quantity: dec("0"), Actor: testActor},
		{MaterialID: 1, Type: TransactionSubtract, Quantity: dec("-1"), Actor: testActor},
		{MaterialID: 1, Type: TransactionAdjustment, Quantity: dec("0"), Actor: testActor},
	} {
		_, err := w.Append(context.Background(), tx, in)
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
}

func TestLedgerAppendRequiresActor(t *testing.T) {
	tx := newFakeLedgerTx(RawMaterial{ID: 1, CurrentStock: dec("10")})
	w := NewLedgerWriter()

	_, err := w.Append(context.Background(), tx, AppendInput{
		MaterialID: 1,
		Type:       TransactionAdd,
		Quantity:   dec("1"),
	})
	require.Error(t, err)
}

func TestLedgerAppendUnknownMaterial(t *testing.T) {
	tx := newFakeLedgerTx()
	w := NewLedgerWriter()

	_, err := w.Append(context.Background(), tx, AppendInput{
		MaterialID: 99,
		Type:       TransactionAdd,
		Quantity:   dec("1"),
		Actor:      testActor,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
