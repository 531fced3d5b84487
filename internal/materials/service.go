package materials

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fabrica-erp/fabrica-erp/internal/products"
	"github.com/fabrica-erp/fabrica-erp/internal/shared"
)

// ProductGetter verifies products referenced by requirement checks.
type ProductGetter interface {
	Get(ctx context.Context, id int64) (products.Product, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates material reads, requirement calculation and manual
// stock additions.
type Service struct {
	repo     RepositoryPort
	productG ProductGetter
	ledger   *LedgerWriter
	cache    *StatusCache
	audit    AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, productG ProductGetter, ledger *LedgerWriter, cache *StatusCache, audit AuditPort) *Service {
	return &Service{repo: repo, productG: productG, ledger: ledger, cache: cache, audit: audit}
}

// CheckMaterials derives the raw-material requirements for producing quantity
// units of a product, with an optional per-unit override. Read-only; used for
// pre-flight feedback before submitting an order.
func (s *Service) CheckMaterials(ctx context.Context, productID, quantity int64, override *decimal.Decimal) ([]Requirement, error) {
	if quantity <= 0 {
		return nil, shared.Validationf("quantity must be positive")
	}
	if override != nil && override.Sign() <= 0 {
		return nil, shared.Validationf("custom amount per unit must be positive")
	}
	if _, err := s.productG.Get(ctx, productID); err != nil {
		return nil, fmt.Errorf("verify product: %w", err)
	}
	lines, err := s.repo.ListBOMForProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	// No BOM entries means the product consumes no raw material.
	return ComputeRequirements(lines, quantity, override), nil
}

// AddStockInput describes a manual, out-of-band stock addition.
type AddStockInput struct {
	MaterialID int64
	Quantity   decimal.Decimal
	Reason     string
	Actor      shared.Actor
}

// AddStock records an administrator stock addition through the ledger so the
// audit trail stays complete regardless of trigger source.
func (s *Service) AddStock(ctx context.Context, input AddStockInput) (RawMaterial, StockTransaction, error) {
	if input.Quantity.Sign() <= 0 {
		return RawMaterial{}, StockTransaction{}, shared.Validationf("quantity must be positive")
	}
	if !input.Actor.Valid() {
		return RawMaterial{}, StockTransaction{}, shared.Validationf("actor required")
	}
	reason := input.Reason
	if reason == "" {
		reason = "manual stock addition"
	}

	var row StockTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		row, err = s.ledger.Append(ctx, tx, AppendInput{
			MaterialID:    input.MaterialID,
			Type:          TransactionAdd,
			Quantity:      input.Quantity,
			Reason:        reason,
			ReferenceType: ReferenceManual,
			ReferenceID:   uuid.NewString(),
			Actor:         input.Actor,
		})
		return err
	})
	if err != nil {
		return RawMaterial{}, StockTransaction{}, err
	}

	s.cache.Invalidate(ctx)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    input.Actor,
			Action:   "materials:add-stock",
			Entity:   "raw_material",
			EntityID: fmt.Sprintf("%d", input.MaterialID),
			Meta: map[string]any{
				"quantity": input.Quantity.String(),
				"reason":   reason,
			},
		})
	}

	mat, err := s.repo.GetMaterial(ctx, input.MaterialID)
	if err != nil {
		return RawMaterial{}, StockTransaction{}, err
	}
	return mat, row, nil
}

// ListStatuses returns every material annotated with its derived status,
// served from the redis snapshot when fresh.
func (s *Service) ListStatuses(ctx context.Context) ([]StatusSnapshot, error) {
	if cached, ok := s.cache.Get(ctx); ok {
		return cached, nil
	}
	mats, err := s.repo.ListMaterials(ctx)
	if err != nil {
		return nil, err
	}
	snapshots := make([]StatusSnapshot, 0, len(mats))
	for _, m := range mats {
		snapshots = append(snapshots, StatusSnapshot{RawMaterial: m, Status: m.Status()})
	}
	s.cache.Set(ctx, snapshots)
	return snapshots, nil
}

// GetLedger lists ledger rows for one material, newest first.
func (s *Service) GetLedger(ctx context.Context, materialID int64, limit int) ([]StockTransaction, error) {
	if _, err := s.repo.GetMaterial(ctx, materialID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, materialID, limit)
}
