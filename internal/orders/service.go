package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fabrica-erp/fabrica-erp/internal/materials"
	"github.com/fabrica-erp/fabrica-erp/internal/observability"
	"github.com/fabrica-erp/fabrica-erp/internal/products"
	"github.com/fabrica-erp/fabrica-erp/internal/shared"
)

// CompensationQueue hands failed restorations to the durable retry queue.
type CompensationQueue interface {
	EnqueueRestore(ctx context.Context, reconciliationID, orderID int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates order fulfillment: it validates line items, aggregates
// raw-material requirements across the whole order, gates sufficiency under
// row locks, and atomically persists the order together with every stock
// decrement and ledger row.
type Service struct {
	repo        RepositoryPort
	ledger      *materials.LedgerWriter
	idempotency *shared.IdempotencyStore
	audit       AuditPort
	metrics     *observability.Metrics
	queue       CompensationQueue
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *materials.LedgerWriter, idem *shared.IdempotencyStore, audit AuditPort, metrics *observability.Metrics, queue CompensationQueue, logger *slog.Logger) *Service {
	return &Service{repo: repo, ledger: ledger, idempotency: idem, audit: audit, metrics: metrics, queue: queue, logger: logger}
}

// CreateOrderInput is the validated service-level input for order creation.
type CreateOrderInput struct {
	CustomerID     int64
	DeliveryDate   time.Time
	Notes          *string
	Lines          []LineItemRequest
	IdempotencyKey string
	Actor          shared.Actor
}

// CreateOrder runs the fulfillment path. Either the order, all its line
// items, every stock decrement and every ledger row commit together, or
// nothing is written at all.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if err := validateLines(input.Lines); err != nil {
		return nil, err
	}
	if input.DeliveryDate.IsZero() {
		return nil, shared.Validationf("delivery date required")
	}
	if !input.Actor.Valid() {
		return nil, shared.Validationf("actor required")
	}

	exists, err := s.repo.CustomerExists(ctx, input.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("verify customer: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("customer %d: %w", input.CustomerID, shared.ErrNotFound)
	}

	insertedKey := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, "orders:create:"+input.IdempotencyKey, "orders"); err != nil {
			return nil, err
		}
		insertedKey = true
	}

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		plan, err := s.buildConsumptionPlan(ctx, tx, input.Lines)
		if err != nil {
			return err
		}
		if len(plan.shortfalls) > 0 {
			return &shared.InsufficiencyError{Shortfalls: plan.shortfalls}
		}

		orderID, err = tx.InsertOrder(ctx, Order{
			CustomerID:   input.CustomerID,
			DeliveryDate: input.DeliveryDate,
			Status:       StatusPending,
			Notes:        input.Notes,
		})
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := tx.InsertLineItems(ctx, orderID, lineItemsFromRequests(orderID, input.Lines)); err != nil {
			return err
		}
		return s.commitConsumption(ctx, tx, orderID, plan, input.Actor)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, "orders:create:"+input.IdempotencyKey)
		}
		var insufficient *shared.InsufficiencyError
		if errors.As(err, &insufficient) {
			s.metrics.InsufficiencyRejected()
		}
		return nil, err
	}

	s.metrics.OrderCreated()
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    input.Actor,
			Action:   "orders:create",
			Entity:   "order",
			EntityID: strconv.FormatInt(orderID, 10),
			Meta:     map[string]any{"customer_id": input.CustomerID, "line_items": len(input.Lines)},
		})
	}
	return s.repo.Get(ctx, orderID)
}

// UpdateStatus transitions the order lifecycle. Transitioning into cancelled
// triggers compensation exactly once; re-cancelling an already-cancelled
// order is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, next OrderStatus, actor shared.Actor) (*Order, error) {
	if !next.Known() {
		return nil, shared.Validationf("unknown status %q", next)
	}
	if next == StatusCancelled {
		return s.Cancel(ctx, orderID, actor)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == next {
			return nil
		}
		if !order.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, order.Status, next)
		}
		return tx.UpdateOrderStatus(ctx, orderID, next)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, orderID)
}

// ReplaceLineItems swaps the order's line items wholesale: the old items'
// consumption is restored, then the new items pass the same
// sufficiency-gate-then-commit path as creation, all within one transaction.
// If the new commit fails the restoration rolls back with it.
func (s *Service) ReplaceLineItems(ctx context.Context, orderID int64, lines []LineItemRequest, actor shared.Actor) (*Order, error) {
	if err := validateLines(lines); err != nil {
		return nil, err
	}
	if !actor.Valid() {
		return nil, shared.Validationf("actor required")
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != StatusPending && order.Status != StatusInProgress {
			return fmt.Errorf("%w: line items can only be replaced while pending or in progress", shared.ErrInvalidTransition)
		}

		if err := s.restoreConsumption(ctx, tx, order, actor, fmt.Sprintf("order %d line replacement restock", orderID)); err != nil {
			return err
		}

		plan, err := s.buildConsumptionPlan(ctx, tx, lines)
		if err != nil {
			return err
		}
		if len(plan.shortfalls) > 0 {
			return &shared.InsufficiencyError{Shortfalls: plan.shortfalls}
		}

		if err := tx.DeleteLineItems(ctx, orderID); err != nil {
			return err
		}
		if err := tx.InsertLineItems(ctx, orderID, lineItemsFromRequests(orderID, lines)); err != nil {
			return err
		}
		return s.commitConsumption(ctx, tx, orderID, plan, actor)
	})
	if err != nil {
		var insufficient *shared.InsufficiencyError
		if errors.As(err, &insufficient) {
			s.metrics.InsufficiencyRejected()
		}
		return nil, err
	}
	return s.repo.Get(ctx, orderID)
}

// Patch updates the order's patchable header fields.
func (s *Service) Patch(ctx context.Context, orderID int64, patch OrderPatch) (*Order, error) {
	if patch.Empty() {
		return s.repo.Get(ctx, orderID)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.ApplyOrderPatch(ctx, orderID, patch)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, orderID)
}

// Get returns one order with line items.
func (s *Service) Get(ctx context.Context, orderID int64) (*Order, error) {
	return s.repo.Get(ctx, orderID)
}

// List returns the filtered order list.
func (s *Service) List(ctx context.Context, req ListOrdersRequest) ([]Order, error) {
	return s.repo.List(ctx, req)
}

// consumptionPlan is the per-order aggregate of everything the order will
// consume, gathered under row locks. Requirements are aggregated by material
// across line items before gating, so two line items sharing a material
// cannot slip past the check individually.
type consumptionPlan struct {
	materialTotals map[int64]decimal.Decimal
	materialSnaps  map[int64]materials.RawMaterial
	stockTotals    map[int64]int64
	productSnaps   map[int64]products.Product
	shortfalls     []shared.Shortfall
}

func (s *Service) buildConsumptionPlan(ctx context.Context, tx TxRepository, lines []LineItemRequest) (*consumptionPlan, error) {
	plan := &consumptionPlan{
		materialTotals: map[int64]decimal.Decimal{},
		materialSnaps:  map[int64]materials.RawMaterial{},
		stockTotals:    map[int64]int64{},
		productSnaps:   map[int64]products.Product{},
	}

	bomCache := map[int64][]materials.BOMLine{}
	for _, line := range lines {
		if line.OrderFromStock {
			plan.stockTotals[line.ProductID] += line.Quantity
			continue
		}
		bom, ok := bomCache[line.ProductID]
		if !ok {
			// Verifies the product exists even when it has no BOM entries.
			if _, err := tx.GetProduct(ctx, line.ProductID); err != nil {
				return nil, fmt.Errorf("product %d: %w", line.ProductID, err)
			}
			var err error
			bom, err = tx.ListBOMForProduct(ctx, line.ProductID)
			if err != nil {
				return nil, err
			}
			bomCache[line.ProductID] = bom
		}
		qty := decimal.NewFromInt(line.Quantity)
		for _, bomLine := range bom {
			perUnit := materials.EffectivePerUnit(bomLine.Entry, len(bom), line.CustomAmountPerUnit)
			total := perUnit.Mul(qty)
			plan.materialTotals[bomLine.Entry.MaterialID] = plan.materialTotals[bomLine.Entry.MaterialID].Add(total)
		}
	}

	// Lock in ascending id order so concurrent orders touching the same rows
	// cannot deadlock, and the aggregate effect is independent of line order.
	for _, materialID := range sortedKeys(plan.materialTotals) {
		mat, err := tx.GetMaterialForUpdate(ctx, materialID)
		if err != nil {
			return nil, fmt.Errorf("material %d: %w", materialID, err)
		}
		plan.materialSnaps[materialID] = mat
		required := plan.materialTotals[materialID]
		if mat.CurrentStock.LessThan(required) {
			plan.shortfalls = append(plan.shortfalls, shared.Shortfall{
				Kind:      shared.ShortfallMaterial,
				EntityID:  mat.ID,
				Name:      mat.Name,
				Unit:      mat.Unit,
				Required:  required,
				Available: mat.CurrentStock,
				Missing:   required.Sub(mat.CurrentStock),
			})
		}
	}
	for _, productID := range sortedKeys(plan.stockTotals) {
		prod, err := tx.GetProductForUpdate(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", productID, err)
		}
		plan.productSnaps[productID] = prod
		required := plan.stockTotals[productID]
		if prod.StockQuantity < required {
			plan.shortfalls = append(plan.shortfalls, shared.Shortfall{
				Kind:      shared.ShortfallProduct,
				EntityID:  prod.ID,
				Name:      prod.Name,
				Unit:      "pcs",
				Required:  decimal.NewFromInt(required),
				Available: decimal.NewFromInt(prod.StockQuantity),
				Missing:   decimal.NewFromInt(required - prod.StockQuantity),
			})
		}
	}
	return plan, nil
}

// commitConsumption applies the gated plan: one SUBTRACT ledger row per
// aggregated material and one stock decrement per from-stock product. Called
// only after the sufficiency gate has passed, with the row locks still held.
func (s *Service) commitConsumption(ctx context.Context, tx TxRepository, orderID int64, plan *consumptionPlan, actor shared.Actor) error {
	orderRef := strconv.FormatInt(orderID, 10)
	for _, materialID := range sortedKeys(plan.materialTotals) {
		_, err := s.ledger.Append(ctx, tx, materials.AppendInput{
			MaterialID:    materialID,
			Type:          materials.TransactionSubtract,
			Quantity:      plan.materialTotals[materialID],
			Reason:        fmt.Sprintf("order %d consumption", orderID),
			ReferenceType: materials.ReferenceOrder,
			ReferenceID:   orderRef,
			Actor:         actor,
		})
		if err != nil {
			return err
		}
	}
	for _, productID := range sortedKeys(plan.stockTotals) {
		prod := plan.productSnaps[productID]
		if err := tx.UpdateProductStock(ctx, productID, prod.StockQuantity-plan.stockTotals[productID]); err != nil {
			return err
		}
	}
	return nil
}

func validateLines(lines []LineItemRequest) error {
	if len(lines) == 0 {
		return shared.Validationf("at least one line item required")
	}
	for i, line := range lines {
		if line.ProductID <= 0 {
			return shared.Validationf("line %d: product required", i+1)
		}
		if line.Quantity <= 0 {
			return shared.Validationf("line %d: quantity must be positive", i+1)
		}
		if line.UnitPrice.Sign() <= 0 {
			return shared.Validationf("line %d: unit price must be positive", i+1)
		}
		if line.CustomAmountPerUnit != nil && line.CustomAmountPerUnit.Sign() <= 0 {
			return shared.Validationf("line %d: custom amount per unit must be positive", i+1)
		}
	}
	return nil
}

func lineItemsFromRequests(orderID int64, lines []LineItemRequest) []LineItem {
	items := make([]LineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, LineItem{
			OrderID:             orderID,
			ProductID:           line.ProductID,
			Quantity:            line.Quantity,
			UnitPrice:           line.UnitPrice,
			CustomAmountPerUnit: line.CustomAmountPerUnit,
			IsCustomSize:        line.IsCustomSize,
			WidthCM:             line.WidthCM,
			HeightCM:            line.HeightCM,
			OrderFromStock:      line.OrderFromStock,
		})
	}
	return items
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
