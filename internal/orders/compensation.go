package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fabrica-erp/fabrica-erp/internal/materials"
	"github.com/fabrica-erp/fabrica-erp/internal/shared"
)

var errAlreadyCancelled = errors.New("orders: already cancelled")

// Cancel moves the order to cancelled and restores its consumption.
//
// Compensation runs in two phases. Phase one commits the status change plus a
// pending reconciliation marker in one transaction, so the intent to restore
// survives any later crash. Phase two attempts the restoration immediately;
// if it fails the order stays cancelled, the marker stays pending, and the
// reconciliation is handed to the retry queue. Cancellation itself never
// fails because of a restoration problem.
func (s *Service) Cancel(ctx context.Context, orderID int64, actor shared.Actor) (*Order, error) {
	if !actor.Valid() {
		return nil, shared.Validationf("actor required")
	}

	var reconciliationID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case StatusCancelled:
			return errAlreadyCancelled
		case StatusDelivered:
			return fmt.Errorf("%w: delivered orders cannot be cancelled", shared.ErrInvalidTransition)
		}
		if err := tx.UpdateOrderStatus(ctx, orderID, StatusCancelled); err != nil {
			return err
		}
		reconciliationID, err = tx.InsertReconciliation(ctx, orderID)
		return err
	})
	if errors.Is(err, errAlreadyCancelled) {
		return s.repo.Get(ctx, orderID)
	}
	if err != nil {
		return nil, err
	}
	s.metrics.OrderCancelled()
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "orders:cancel",
			Entity:   "order",
			EntityID: strconv.FormatInt(orderID, 10),
		})
	}

	if err := s.Reconcile(ctx, reconciliationID, actor); err != nil {
		s.logger.Error("stock restoration failed, queued for retry",
			"order_id", orderID, "reconciliation_id", reconciliationID, "error", err)
		s.metrics.CompensationRetried()
		if s.queue != nil {
			if qErr := s.queue.EnqueueRestore(ctx, reconciliationID, orderID); qErr != nil {
				s.logger.Error("enqueue restoration retry failed; sweep will pick it up",
					"reconciliation_id", reconciliationID, "error", qErr)
			}
		}
	}
	return s.repo.Get(ctx, orderID)
}

// Reconcile executes one pending reconciliation: it re-adds the cancelled
// order's consumed material and product stock and resolves the marker, all in
// one transaction. Safe to call repeatedly; a resolved marker is a no-op.
func (s *Service) Reconcile(ctx context.Context, reconciliationID int64, actor shared.Actor) error {
	rec, err := s.repo.GetReconciliation(ctx, reconciliationID)
	if err != nil {
		return err
	}
	if rec.Status == ReconciliationResolved {
		return nil
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, rec.OrderID)
		if err != nil {
			return err
		}
		reason := fmt.Sprintf("order %d cancellation restock", rec.OrderID)
		if err := s.restoreConsumption(ctx, tx, order, actor, reason); err != nil {
			return err
		}
		return tx.ResolveReconciliation(ctx, reconciliationID)
	})
	if err != nil {
		if markErr := s.repo.MarkReconciliationAttempt(ctx, reconciliationID, err.Error()); markErr != nil {
			s.logger.Error("record reconciliation attempt failed",
				"reconciliation_id", reconciliationID, "error", markErr)
		}
		return fmt.Errorf("reconcile order %d: %w", rec.OrderID, err)
	}

	s.logger.Info("stock restored for cancelled order",
		"order_id", rec.OrderID, "reconciliation_id", reconciliationID)
	return nil
}

// ReconcilePending sweeps reconciliations that stayed pending longer than
// olderThan and retries each one. Called from the scheduled sweep job as the
// safety net behind the immediate retry queue.
func (s *Service) ReconcilePending(ctx context.Context, olderThan time.Duration) error {
	pending, err := s.repo.ListPendingReconciliations(ctx, olderThan)
	if err != nil {
		return err
	}
	actor := shared.ReconcilerActor()
	for _, rec := range pending {
		if err := s.Reconcile(ctx, rec.ID, actor); err != nil {
			s.logger.Error("sweep reconciliation failed", "reconciliation_id", rec.ID, "error", err)
			s.metrics.CompensationRetried()
		}
	}
	return nil
}

// restoreConsumption re-adds everything the order's current line items
// consumed: one ADD ledger row per aggregated material and a stock increment
// per from-stock product. Mirrors commitConsumption with the sign flipped,
// recomputed from the persisted line items so an order edited since creation
// restores what it actually holds.
func (s *Service) restoreConsumption(ctx context.Context, tx TxRepository, order *Order, actor shared.Actor, reason string) error {
	materialTotals := map[int64]decimal.Decimal{}
	stockTotals := map[int64]int64{}

	bomCache := map[int64][]materials.BOMLine{}
	for _, line := range order.Lines {
		if line.OrderFromStock {
			stockTotals[line.ProductID] += line.Quantity
			continue
		}
		bom, ok := bomCache[line.ProductID]
		if !ok {
			var err error
			bom, err = tx.ListBOMForProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			bomCache[line.ProductID] = bom
		}
		qty := decimal.NewFromInt(line.Quantity)
		for _, bomLine := range bom {
			perUnit := materials.EffectivePerUnit(bomLine.Entry, len(bom), line.CustomAmountPerUnit)
			materialTotals[bomLine.Entry.MaterialID] = materialTotals[bomLine.Entry.MaterialID].Add(perUnit.Mul(qty))
		}
	}

	orderRef := strconv.FormatInt(order.ID, 10)
	for _, materialID := range sortedKeys(materialTotals) {
		_, err := s.ledger.Append(ctx, tx, materials.AppendInput{
			MaterialID:    materialID,
			Type:          materials.TransactionAdd,
			Quantity:      materialTotals[materialID],
			Reason:        reason,
			ReferenceType: materials.ReferenceOrder,
			ReferenceID:   orderRef,
			Actor:         actor,
		})
		if err != nil {
			return err
		}
	}
	for _, productID := range sortedKeys(stockTotals) {
		prod, err := tx.GetProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if err := tx.UpdateProductStock(ctx, productID, prod.StockQuantity+stockTotals[productID]); err != nil {
			return err
		}
	}
	return nil
}
