package materials

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fabrica-erp/fabrica-erp/internal/platform/httpx"
	"github.com/fabrica-erp/fabrica-erp/internal/shared"
)

// Handler wires HTTP endpoints for the materials module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the materials handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers materials routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}/ledger", h.handleLedger)
	r.Post("/{id}/stock", h.handleAddStock)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.service.ListStatuses(r.Context())
	if err != nil {
		h.logger.Error("list material statuses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshots)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Validationf("invalid material id"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.service.GetLedger(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("get material ledger", slog.Int64("material_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) handleAddStock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Validationf("invalid material id"))
		return
	}
	var req AddStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.Validationf("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.Validationf("%s", err.Error()))
		return
	}

	mat, row, err := h.service.AddStock(r.Context(), AddStockInput{
		MaterialID: id,
		Quantity:   req.Quantity,
		Reason:     req.Reason,
		Actor:      shared.Actor{ID: req.ActorID, Name: req.ActorName},
	})
	if err != nil {
		h.logger.Error("add material stock", slog.Int64("material_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"material":    mat,
		"transaction": row,
	})
}
