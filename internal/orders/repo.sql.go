package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fabrica-erp/fabrica-erp/internal/materials"
	"github.com/fabrica-erp/fabrica-erp/internal/platform/db"
	"github.com/fabrica-erp/fabrica-erp/internal/products"
	"github.com/fabrica-erp/fabrica-erp/internal/shared"
)

// Repository persists orders, line items and reconciliations in PostgreSQL.
type Repository struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, txTimeout time.Duration) *Repository {
	return &Repository{pool: pool, txTimeout: txTimeout}
}

// WithTx executes the callback inside a repeatable-read transaction bounded by
// the configured transaction timeout.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("orders repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.txTimeout, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const orderColumns = `id, customer_id, delivery_date, status, notes, created_at, updated_at`

// Get returns one order with its line items.
func (r *Repository) Get(ctx context.Context, id int64) (*Order, error) {
	return getOrder(ctx, r.pool, id, false)
}

// List returns orders filtered by status, newest first.
func (r *Repository) List(ctx context.Context, req ListOrdersRequest) ([]Order, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders
WHERE ($1::text IS NULL OR status = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, nullStatus(req.Status), limit, req.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Order{}
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.DeliveryDate, &o.Status, &o.Notes, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// CustomerExists reports whether the customer row is present.
func (r *Repository) CustomerExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

const reconciliationColumns = `id, order_id, status, detail, attempts, created_at, resolved_at`

// GetReconciliation returns one reconciliation marker.
func (r *Repository) GetReconciliation(ctx context.Context, id int64) (Reconciliation, error) {
	var rec Reconciliation
	err := r.pool.QueryRow(ctx, `SELECT `+reconciliationColumns+` FROM stock_reconciliations WHERE id=$1`, id).
		Scan(&rec.ID, &rec.OrderID, &rec.Status, &rec.Detail, &rec.Attempts, &rec.CreatedAt, &rec.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reconciliation{}, shared.ErrNotFound
		}
		return Reconciliation{}, err
	}
	return rec, nil
}

// ListPendingReconciliations returns pending markers older than the cutoff.
func (r *Repository) ListPendingReconciliations(ctx context.Context, olderThan time.Duration) ([]Reconciliation, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := r.pool.Query(ctx, `SELECT `+reconciliationColumns+` FROM stock_reconciliations
WHERE status=$1 AND created_at < $2 ORDER BY created_at ASC`, string(ReconciliationPending), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Reconciliation{}
	for rows.Next() {
		var rec Reconciliation
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.Status, &rec.Detail, &rec.Attempts, &rec.CreatedAt, &rec.ResolvedAt); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// MarkReconciliationAttempt records a failed restoration attempt. Runs outside
// the restoration transaction so the failure detail survives the rollback.
func (r *Repository) MarkReconciliationAttempt(ctx context.Context, id int64, detail string) error {
	_, err := r.pool.Exec(ctx, `UPDATE stock_reconciliations SET attempts = attempts + 1, detail = $2 WHERE id=$1`, id, detail)
	return err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (*Order, error) {
	return getOrder(ctx, r.tx, id, true)
}

func (r *txRepository) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO orders (customer_id, delivery_date, status, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,NOW(),NOW()) RETURNING id`, o.CustomerID, o.DeliveryDate, string(o.Status), o.Notes).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLineItems(ctx context.Context, orderID int64, items []LineItem) error {
	for _, item := range items {
		_, err := r.tx.Exec(ctx, `INSERT INTO order_line_items (order_id, product_id, quantity, unit_price, custom_amount_per_unit, is_custom_size, width_cm, height_cm, order_from_stock, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())`,
			orderID, item.ProductID, item.Quantity, item.UnitPrice, item.CustomAmountPerUnit,
			item.IsCustomSize, item.WidthCM, item.HeightCM, item.OrderFromStock)
		if err != nil {
			return fmt.Errorf("insert line item (order %d, product %d): %w", orderID, item.ProductID, err)
		}
	}
	return nil
}

func (r *txRepository) DeleteLineItems(ctx context.Context, orderID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM order_line_items WHERE order_id=$1`, orderID)
	return err
}

func (r *txRepository) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ApplyOrderPatch writes only the populated patch fields. The statement is
// fixed; absent fields fall through to their current value.
func (r *txRepository) ApplyOrderPatch(ctx context.Context, id int64, patch OrderPatch) error {
	tag, err := r.tx.Exec(ctx, `UPDATE orders SET
delivery_date = COALESCE($2, delivery_date),
notes = COALESCE($3, notes),
updated_at = NOW()
WHERE id=$1`, id, patch.DeliveryDate, patch.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const productColumns = `id, name, base_price, stock_quantity, created_at, updated_at`

func (r *txRepository) GetProduct(ctx context.Context, id int64) (products.Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, id int64) (products.Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateProductStock(ctx context.Context, id int64, newQuantity int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET stock_quantity=$2, updated_at=NOW() WHERE id=$1`, id, newQuantity)
	return err
}

func (r *txRepository) ListBOMForProduct(ctx context.Context, productID int64) ([]materials.BOMLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT b.product_id, b.material_id, b.amount_per_unit,
m.id, m.name, m.current_stock, m.unit, m.min_stock, m.created_at, m.updated_at
FROM bill_of_materials b
JOIN raw_materials m ON m.id = b.material_id
WHERE b.product_id = $1
ORDER BY b.material_id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []materials.BOMLine{}
	for rows.Next() {
		var line materials.BOMLine
		if err := rows.Scan(&line.Entry.ProductID, &line.Entry.MaterialID, &line.Entry.AmountPerUnit,
			&line.Material.ID, &line.Material.Name, &line.Material.CurrentStock, &line.Material.Unit,
			&line.Material.MinStock, &line.Material.CreatedAt, &line.Material.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) GetMaterialForUpdate(ctx context.Context, materialID int64) (materials.RawMaterial, error) {
	var m materials.RawMaterial
	err := r.tx.QueryRow(ctx, `SELECT id, name, current_stock, unit, min_stock, created_at, updated_at FROM raw_materials WHERE id=$1 FOR UPDATE`, materialID).
		Scan(&m.ID, &m.Name, &m.CurrentStock, &m.Unit, &m.MinStock, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return materials.RawMaterial{}, shared.ErrNotFound
		}
		return materials.RawMaterial{}, err
	}
	return m, nil
}

func (r *txRepository) UpdateMaterialStock(ctx context.Context, materialID int64, newStock decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE raw_materials SET current_stock=$2, updated_at=NOW() WHERE id=$1`, materialID, newStock)
	return err
}

func (r *txRepository) InsertStockTransaction(ctx context.Context, t materials.StockTransaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transactions (material_id, tx_type, quantity, previous_stock, new_stock, reason, reference_type, reference_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		t.MaterialID, string(t.Type), t.Quantity, t.PreviousStock, t.NewStock, t.Reason, t.ReferenceType, t.ReferenceID, t.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertReconciliation(ctx context.Context, orderID int64) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_reconciliations (order_id, status, detail, attempts, created_at)
VALUES ($1,$2,'',0,NOW()) RETURNING id`, orderID, string(ReconciliationPending)).Scan(&id)
	return id, err
}

func (r *txRepository) ResolveReconciliation(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_reconciliations SET status=$2, resolved_at=NOW() WHERE id=$1`, id, string(ReconciliationResolved))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func getOrder(ctx context.Context, q queryer, id int64, forUpdate bool) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var o Order
	err := q.QueryRow(ctx, query, id).Scan(&o.ID, &o.CustomerID, &o.DeliveryDate, &o.Status, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT li.order_id, li.product_id, p.name, li.quantity, li.unit_price, li.custom_amount_per_unit, li.is_custom_size, li.width_cm, li.height_cm, li.order_from_stock, li.created_at
FROM order_line_items li
JOIN products p ON p.id = li.product_id
WHERE li.order_id = $1
ORDER BY li.product_id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice,
			&item.CustomAmountPerUnit, &item.IsCustomSize, &item.WidthCM, &item.HeightCM, &item.OrderFromStock, &item.CreatedAt); err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanProduct(row pgx.Row) (products.Product, error) {
	var p products.Product
	err := row.Scan(&p.ID, &p.Name, &p.BasePrice, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return products.Product{}, shared.ErrNotFound
		}
		return products.Product{}, err
	}
	return p, nil
}

func nullStatus(s *OrderStatus) any {
	if s == nil {
		return nil
	}
	return string(*s)
}
