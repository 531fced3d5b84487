package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fabrica-erp/fabrica-erp/internal/materials"
)

type stubChecker struct {
	reqs []materials.Requirement
	err  error
}

func (s stubChecker) CheckMaterials(ctx context.Context, productID, quantity int64, override *decimal.Decimal) ([]materials.Requirement, error) {
	return s.reqs, s.err
}

func newTestServer(t *testing.T, store *fakeStore, checker MaterialChecker) (*httptest.Server, *Service) {
	t.Helper()
	svc, _ := newTestService(store)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, svc, checker)
	r := chi.NewRouter()
	r.Route("/orders", h.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func createPayload(lines ...map[string]any) map[string]any {
	return map[string]any{
		"customer_id":   1,
		"delivery_date": time.Now().Add(72 * time.Hour).Format(time.RFC3339),
		"actor_id":      3,
		"actor_name":    "sales",
		"lines":         lines,
	}
}

func TestHandlerCreateOrder(t *testing.T) {
	srv, _ := newTestServer(t, seedStore(), stubChecker{})

	resp := postJSON(t, srv.URL+"/orders", createPayload(
		map[string]any{"product_id": 10, "quantity": 2, "unit_price": "450000"},
	))
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var order Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&order))
	require.Equal(t, StatusPending, order.Status)
	require.Len(t, order.Lines, 1)
}

func TestHandlerCreateOrderInsufficiencyConflict(t *testing.T) {
	store := seedStore()
	store.materials[1] = materials.RawMaterial{ID: 1, Name: "Aluminium Profile", CurrentStock: dec("1"), Unit: "m"}
	srv, _ := newTestServer(t, store, stubChecker{})

	resp := postJSON(t, srv.URL+"/orders", createPayload(
		map[string]any{"product_id": 10, "quantity": 5, "unit_price": "450000"},
	))
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var problem struct {
		Title string `json:"title"`
		Extra struct {
			Shortfalls []struct {
				Name    string `json:"name"`
				Missing string `json:"missing"`
			} `json:"shortfalls"`
		} `json:"extra"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	require.Equal(t, "Insufficient Stock", problem.Title)
	require.NotEmpty(t, problem.Extra.Shortfalls)
	require.Equal(t, "Aluminium Profile", problem.Extra.Shortfalls[0].Name)
}

func TestHandlerCreateOrderValidation(t *testing.T) {
	srv, _ := newTestServer(t, seedStore(), stubChecker{})

	resp := postJSON(t, srv.URL+"/orders", map[string]any{"customer_id": 1})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlerGetOrderNotFound(t *testing.T) {
	srv, _ := newTestServer(t, seedStore(), stubChecker{})

	resp, err := http.Get(srv.URL + "/orders/42")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerUpdateStatus(t *testing.T) {
	store := seedStore()
	srv, svc := newTestServer(t, store, stubChecker{})
	order := mustCreate(t, svc, LineItemRequest{ProductID: 10, Quantity: 1, UnitPrice: dec("450000")})

	resp := postJSON(t, fmt.Sprintf("%s/orders/%d/status", srv.URL, order.ID), map[string]any{
		"status":     "IN_PROGRESS",
		"actor_id":   3,
		"actor_name": "sales",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, StatusInProgress, got.Status)
}

func TestHandlerUpdateStatusInvalidTransition(t *testing.T) {
	store := seedStore()
	srv, svc := newTestServer(t, store, stubChecker{})
	order := mustCreate(t, svc, LineItemRequest{ProductID: 10, Quantity: 1, UnitPrice: dec("450000")})
	_, err := svc.UpdateStatus(context.Background(), order.ID, StatusDelivered, actor)
	require.NoError(t, err)

	resp := postJSON(t, fmt.Sprintf("%s/orders/%d/status", srv.URL, order.ID), map[string]any{
		"status":     "PENDING",
		"actor_id":   3,
		"actor_name": "sales",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerCheckMaterials(t *testing.T) {
	srv, _ := newTestServer(t, seedStore(), stubChecker{
		reqs: []materials.Requirement{
			{MaterialID: 1, MaterialName: "Aluminium Profile", TotalRequired: dec("8"), Sufficient: true},
			{MaterialID: 2, MaterialName: "Glass Sheet 5mm", TotalRequired: dec("3"), Sufficient: false},
		},
	})

	resp, err := http.Get(srv.URL + "/orders/check-materials?product_id=10&quantity=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Sufficient   bool                    `json:"sufficient"`
		Requirements []materials.Requirement `json:"requirements"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.False(t, body.Sufficient)
	require.Len(t, body.Requirements, 2)
}

func TestHandlerCheckMaterialsBadQuery(t *testing.T) {
	srv, _ := newTestServer(t, seedStore(), stubChecker{})

	resp, err := http.Get(srv.URL + "/orders/check-materials?product_id=10&quantity=0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
