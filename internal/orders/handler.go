package orders

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fabrica-erp/fabrica-erp/internal/materials"
	"github.com/fabrica-erp/fabrica-erp/internal/platform/httpx"
	"github.com/fabrica-erp/fabrica-erp/internal/shared"
)

// MaterialChecker answers the read-only "could we fulfill this?" preview
// without touching stock.
type MaterialChecker interface {
	CheckMaterials(ctx context.Context, productID, quantity int64, override *decimal.Decimal) ([]materials.Requirement, error)
}

// Handler wires HTTP endpoints for the orders module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	checker  MaterialChecker
	validate *validator.Validate
}

// NewHandler constructs the orders handler.
func NewHandler(logger *slog.Logger, service *Service, checker MaterialChecker) *Handler {
	return &Handler{logger: logger, service: service, checker: checker, validate: validator.New()}
}

// MountRoutes registers orders routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/check-materials", h.handleCheckMaterials)
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/status", h.handleUpdateStatus)
	r.Put("/{id}/lines", h.handleReplaceLines)
	r.Patch("/{id}", h.handlePatch)
}

func (h *Handler) handleCheckMaterials(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, err := strconv.ParseInt(q.Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.RespondError(w, shared.Validationf("product_id required"))
		return
	}
	quantity, err := strconv.ParseInt(q.Get("quantity"), 10, 64)
	if err != nil || quantity <= 0 {
		httpx.RespondError(w, shared.Validationf("quantity must be a positive integer"))
		return
	}
	var override *decimal.Decimal
	if raw := q.Get("custom_amount_per_unit"); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			httpx.RespondError(w, shared.Validationf("invalid custom_amount_per_unit"))
			return
		}
		override = &v
	}

	requirements, err := h.checker.CheckMaterials(r.Context(), productID, quantity, override)
	if err != nil {
		h.logger.Error("check materials", slog.Int64("product_id", productID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	sufficient := true
	for _, req := range requirements {
		if !req.Sufficient {
			sufficient = false
			break
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"sufficient":   sufficient,
		"requirements": requirements,
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Validationf("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("%s", err.Error()))
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get("Idempotency-Key")
	}

	order, err := h.service.CreateOrder(r.Context(), CreateOrderInput{
		CustomerID:     req.CustomerID,
		DeliveryDate:   req.DeliveryDate,
		Notes:          req.Notes,
		Lines:          req.Lines,
		IdempotencyKey: key,
		Actor:          shared.Actor{ID: req.ActorID, Name: req.ActorName},
	})
	if err != nil {
		h.logger.Error("create order", slog.Int64("customer_id", req.CustomerID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListOrdersRequest{}
	if raw := q.Get("status"); raw != "" {
		status := OrderStatus(raw)
		if !status.Known() {
			httpx.RespondError(w, shared.Validationf("unknown status %q", raw))
			return
		}
		req.Status = &status
	}
	req.Limit, _ = strconv.Atoi(q.Get("limit"))
	req.Offset, _ = strconv.Atoi(q.Get("offset"))
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("%s", err.Error()))
		return
	}

	orders, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Validationf("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("%s", err.Error()))
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), id, req.Status, shared.Actor{ID: req.ActorID, Name: req.ActorName})
	if err != nil {
		h.logger.Error("update order status", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleReplaceLines(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req ReplaceLinesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Validationf("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("%s", err.Error()))
		return
	}

	order, err := h.service.ReplaceLineItems(r.Context(), id, req.Lines, shared.Actor{ID: req.ActorID, Name: req.ActorName})
	if err != nil {
		h.logger.Error("replace order lines", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req PatchOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Validationf("invalid request body"))
		return
	}

	order, err := h.service.Patch(r.Context(), id, OrderPatch{
		DeliveryDate: req.DeliveryDate,
		Notes:        req.Notes,
	})
	if err != nil {
		h.logger.Error("patch order", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.Validationf("invalid order id"))
		return 0, false
	}
	return id, true
}
