package materials

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fabrica-erp/fabrica-erp/internal/products"
	"github.com/fabrica-erp/fabrica-erp/internal/shared"
)

type stubRepo struct {
	materials map[int64]RawMaterial
	boms      map[int64][]BOMLine
	rows      []StockTransaction
	listCalls int
}

func (s *stubRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, stubTx{repo: s})
}

func (s *stubRepo) GetMaterial(ctx context.Context, id int64) (RawMaterial, error) {
	m, ok := s.materials[id]
	if !ok {
		return RawMaterial{}, shared.ErrNotFound
	}
	return m, nil
}

func (s *stubRepo) ListMaterials(ctx context.Context) ([]RawMaterial, error) {
	s.listCalls++
	var out []RawMaterial
	for _, m := range s.materials {
		out = append(out, m)
	}
	return out, nil
}

func (s *stubRepo) ListBOMForProduct(ctx context.Context, productID int64) ([]BOMLine, error) {
	return s.boms[productID], nil
}

func (s *stubRepo) ListTransactions(ctx context.Context, materialID int64, limit int) ([]StockTransaction, error) {
	var out []StockTransaction
	for _, row := range s.rows {
		if row.MaterialID == materialID {
			out = append(out, row)
		}
	}
	return out, nil
}

type stubTx struct {
	repo *stubRepo
}

func (t stubTx) GetMaterialForUpdate(ctx context.Context, materialID int64) (RawMaterial, error) {
	return t.repo.GetMaterial(ctx, materialID)
}

func (t stubTx) UpdateMaterialStock(ctx context.Context, materialID int64, newStock decimal.Decimal) error {
	m := t.repo.materials[materialID]
	m.CurrentStock = newStock
	t.repo.materials[materialID] = m
	return nil
}

func (t stubTx) InsertStockTransaction(ctx context.Context, row StockTransaction) (int64, error) {
	row.ID = int64(len(t.repo.rows) + 1)
	t.repo.rows = append(t.repo.rows, row)
	return row.ID, nil
}

type stubProducts struct {
	known map[int64]bool
}

func (s stubProducts) Get(ctx context.Context, id int64) (products.Product, error) {
	if !s.known[id] {
		return products.Product{}, shared.ErrNotFound
	}
	return products.Product{ID: id}, nil
}

func newMaterialsService(t *testing.T, repo *stubRepo) (*Service, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewStatusCache(client, time.Minute)
	svc := NewService(repo, stubProducts{known: map[int64]bool{10: true}}, NewLedgerWriter(), cache, nil)
	return svc, func() {
		_ = client.Close()
		mr.Close()
	}
}

func fixtureRepo() *stubRepo {
	alu := RawMaterial{ID: 1, Name: "Aluminium Profile", CurrentStock: dec("100"), Unit: "m", MinStock: dec("10")}
	glass := RawMaterial{ID: 2, Name: "Glass Sheet 5mm", CurrentStock: dec("5"), Unit: "m2", MinStock: dec("20")}
	return &stubRepo{
		materials: map[int64]RawMaterial{1: alu, 2: glass},
		boms: map[int64][]BOMLine{
			10: {
				{Entry: BOMEntry{ProductID: 10, MaterialID: 1, AmountPerUnit: dec("4")}, Material: alu},
				{Entry: BOMEntry{ProductID: 10, MaterialID: 2, AmountPerUnit: dec("1.5")}, Material: glass},
			},
		},
	}
}

func TestCheckMaterials(t *testing.T) {
	svc, cleanup := newMaterialsService(t, fixtureRepo())
	defer cleanup()

	reqs, err := svc.CheckMaterials(context.Background(), 10, 2, nil)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	require.True(t, reqs[0].Sufficient)
	require.True(t, reqs[0].TotalRequired.Equal(dec("8")))
	require.False(t, reqs[1].Sufficient)
}

func TestCheckMaterialsUnknownProduct(t *testing.T) {
	svc, cleanup := newMaterialsService(t, fixtureRepo())
	defer cleanup()

	_, err := svc.CheckMaterials(context.Background(), 99, 1, nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCheckMaterialsNoBOM(t *testing.T) {
	repo := fixtureRepo()
	repo.boms = map[int64][]BOMLine{}
	svc, cleanup := newMaterialsService(t, repo)
	defer cleanup()

	reqs, err := svc.CheckMaterials(context.Background(), 10, 3, nil)
	require.NoError(t, err)
	require.Empty(t, reqs)
}

func TestCheckMaterialsRejectsBadInput(t *testing.T) {
	svc, cleanup := newMaterialsService(t, fixtureRepo())
	defer cleanup()
	ctx := context.Background()

	var vErr *shared.ValidationError
	_, err := svc.CheckMaterials(ctx, 10, 0, nil)
	require.ErrorAs(t, err, &vErr)

	bad := dec("-1")
	_, err = svc.CheckMaterials(ctx, 10, 1, &bad)
	require.ErrorAs(t, err, &vErr)
}

func TestAddStockAppendsLedgerAndInvalidatesCache(t *testing.T) {
	repo := fixtureRepo()
	svc, cleanup := newMaterialsService(t, repo)
	defer cleanup()
	ctx := context.Background()

	// Prime the cache.
	_, err := svc.ListStatuses(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.listCalls)
	_, err = svc.ListStatuses(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.listCalls)

	mat, row, err := svc.AddStock(ctx, AddStockInput{
		MaterialID: 2,
		Quantity:   dec("30"),
		Reason:     "supplier delivery",
		Actor:      shared.Actor{ID: 5, Name: "warehouse"},
	})
	require.NoError(t, err)
	require.True(t, mat.CurrentStock.Equal(dec("35")))
	require.Equal(t, TransactionAdd, row.Type)
	require.Equal(t, ReferenceManual, row.ReferenceType)
	require.NotEmpty(t, row.ReferenceID)

	// The mutation dropped the snapshot, so the next read hits the database.
	_, err = svc.ListStatuses(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.listCalls)
}

func TestAddStockValidation(t *testing.T) {
	svc, cleanup := newMaterialsService(t, fixtureRepo())
	defer cleanup()
	ctx := context.Background()

	var vErr *shared.ValidationError
	_, _, err := svc.AddStock(ctx, AddStockInput{MaterialID: 1, Quantity: dec("0"), Actor: shared.Actor{ID: 1, Name: "x"}})
	require.ErrorAs(t, err, &vErr)

	_, _, err = svc.AddStock(ctx, AddStockInput{MaterialID: 1, Quantity: dec("1")})
	require.ErrorAs(t, err, &vErr)
}

func TestListStatusesDerivesStatus(t *testing.T) {
	svc, cleanup := newMaterialsService(t, fixtureRepo())
	defer cleanup()

	snapshots, err := svc.ListStatuses(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshots, 2)

	byID := map[int64]MaterialStatus{}
	for _, s := range snapshots {
		byID[s.ID] = s.Status
	}
	require.Equal(t, StatusAvailable, byID[1])
	require.Equal(t, StatusLowStock, byID[2])
}
