package materials

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fabrica-erp/fabrica-erp/internal/platform/db"
	"github.com/fabrica-erp/fabrica-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMaterial(ctx context.Context, id int64) (RawMaterial, error)
	ListMaterials(ctx context.Context) ([]RawMaterial, error)
	ListBOMForProduct(ctx context.Context, productID int64) ([]BOMLine, error)
	ListTransactions(ctx context.Context, materialID int64, limit int) ([]StockTransaction, error)
}

// TxRepository exposes transactional operations used by the ledger writer.
type TxRepository interface {
	LedgerTx
}

// Repository persists materials, BOM entries and the stock ledger in PostgreSQL.
type Repository struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, txTimeout time.Duration) *Repository {
	return &Repository{pool: pool, txTimeout: txTimeout}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("materials repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.txTimeout, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const materialColumns = `id, name, current_stock, unit, min_stock, created_at, updated_at`

// GetMaterial returns one raw material by id.
func (r *Repository) GetMaterial(ctx context.Context, id int64) (RawMaterial, error) {
	return scanMaterial(r.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM raw_materials WHERE id=$1`, id))
}

// ListMaterials returns all raw materials ordered by name.
func (r *Repository) ListMaterials(ctx context.Context) ([]RawMaterial, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+materialColumns+` FROM raw_materials ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []RawMaterial{}
	for rows.Next() {
		var m RawMaterial
		if err := rows.Scan(&m.ID, &m.Name, &m.CurrentStock, &m.Unit, &m.MinStock, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ListBOMForProduct returns the product's BOM entries joined with their
// materials, ordered by material id.
func (r *Repository) ListBOMForProduct(ctx context.Context, productID int64) ([]BOMLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT b.product_id, b.material_id, b.amount_per_unit,
m.id, m.name, m.current_stock, m.unit, m.min_stock, m.created_at, m.updated_at
FROM bill_of_materials b
JOIN raw_materials m ON m.id = b.material_id
WHERE b.product_id = $1
ORDER BY b.material_id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []BOMLine{}
	for rows.Next() {
		var line BOMLine
		if err := rows.Scan(&line.Entry.ProductID, &line.Entry.MaterialID, &line.Entry.AmountPerUnit,
			&line.Material.ID, &line.Material.Name, &line.Material.CurrentStock, &line.Material.Unit,
			&line.Material.MinStock, &line.Material.CreatedAt, &line.Material.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListTransactions returns ledger rows for one material, newest first.
func (r *Repository) ListTransactions(ctx context.Context, materialID int64, limit int) ([]StockTransaction, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, material_id, tx_type, quantity, previous_stock, new_stock, reason, reference_type, reference_id, created_by, created_at
FROM stock_transactions WHERE material_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, materialID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []StockTransaction{}
	for rows.Next() {
		var t StockTransaction
		if err := rows.Scan(&t.ID, &t.MaterialID, &t.Type, &t.Quantity, &t.PreviousStock, &t.NewStock,
			&t.Reason, &t.ReferenceType, &t.ReferenceID, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetMaterialForUpdate(ctx context.Context, materialID int64) (RawMaterial, error) {
	return scanMaterial(r.tx.QueryRow(ctx, `SELECT `+materialColumns+` FROM raw_materials WHERE id=$1 FOR UPDATE`, materialID))
}

func (r *txRepository) UpdateMaterialStock(ctx context.Context, materialID int64, newStock decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE raw_materials SET current_stock=$2, updated_at=NOW() WHERE id=$1`, materialID, newStock)
	return err
}

func (r *txRepository) InsertStockTransaction(ctx context.Context, t StockTransaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transactions (material_id, tx_type, quantity, previous_stock, new_stock, reason, reference_type, reference_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		t.MaterialID, string(t.Type), t.Quantity, t.PreviousStock, t.NewStock, t.Reason, t.ReferenceType, t.ReferenceID, t.CreatedBy).Scan(&id)
	return id, err
}

func scanMaterial(row pgx.Row) (RawMaterial, error) {
	var m RawMaterial
	err := row.Scan(&m.ID, &m.Name, &m.CurrentStock, &m.Unit, &m.MinStock, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RawMaterial{}, shared.ErrNotFound
		}
		return RawMaterial{}, err
	}
	return m, nil
}
