package orders

import (
	"context"
	"time"

	"github.com/fabrica-erp/fabrica-erp/internal/materials"
	"github.com/fabrica-erp/fabrica-erp/internal/products"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, req ListOrdersRequest) ([]Order, error)
	CustomerExists(ctx context.Context, id int64) (bool, error)
	GetReconciliation(ctx context.Context, id int64) (Reconciliation, error)
	ListPendingReconciliations(ctx context.Context, olderThan time.Duration) ([]Reconciliation, error)
	MarkReconciliationAttempt(ctx context.Context, id int64, detail string) error
}

// TxRepository exposes the transactional operations the fulfillment and
// compensation paths need. It embeds the ledger transaction surface so stock
// transactions append inside the same database transaction as the order
// mutation.
type TxRepository interface {
	materials.LedgerTx

	GetOrderForUpdate(ctx context.Context, id int64) (*Order, error)
	InsertOrder(ctx context.Context, o Order) (int64, error)
	InsertLineItems(ctx context.Context, orderID int64, items []LineItem) error
	DeleteLineItems(ctx context.Context, orderID int64) error
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error
	ApplyOrderPatch(ctx context.Context, id int64, patch OrderPatch) error

	GetProduct(ctx context.Context, id int64) (products.Product, error)
	GetProductForUpdate(ctx context.Context, id int64) (products.Product, error)
	UpdateProductStock(ctx context.Context, id int64, newQuantity int64) error

	ListBOMForProduct(ctx context.Context, productID int64) ([]materials.BOMLine, error)

	InsertReconciliation(ctx context.Context, orderID int64) (int64, error)
	ResolveReconciliation(ctx context.Context, id int64) error
}
