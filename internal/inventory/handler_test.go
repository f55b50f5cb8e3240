package inventory

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/retailcore/stockledger/internal/observability"
	"github.com/retailcore/stockledger/internal/platform/httpx"
)

var errTestStorage = errors.New("simulated storage failure")

func newTestServer(t *testing.T, repo *memoryRepo) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, nil, nil, nil, nil)
	h := NewHandler(logger, svc, nil)
	r := chi.NewRouter()
	r.Route("/inventory", h.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeProblem(t *testing.T, resp *http.Response) httpx.ProblemDetail {
	t.Helper()
	defer resp.Body.Close()
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	return problem
}

func TestHandlerListInventory(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed("SKU1", "StoreA", 10)
	repo.seed("SKU2", "StoreB", 3)
	srv := newTestServer(t, repo)

	resp, err := http.Get(srv.URL + "/inventory")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []recordResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 2)
	require.Equal(t, "SKU1", records[0].SKU)
	require.EqualValues(t, 10, records[0].Quantity)
}

func TestHandlerListBySKU(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed("SKU1", "StoreA", 10)
	repo.seed("SKU1", "StoreB", 4)
	repo.seed("SKU2", "StoreA", 1)
	srv := newTestServer(t, repo)

	resp, err := http.Get(srv.URL + "/inventory/SKU1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []recordResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 2)

	resp, err = http.Get(srv.URL + "/inventory/MISSING")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Empty(t, records)
}

func TestHandlerSetStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed("SKU1", "StoreA", 10)
	srv := newTestServer(t, repo)

	resp := postJSON(t, srv.URL+"/inventory/update", map[string]any{
		"sku": "SKU1", "storeId": "StoreA", "newStock": 99,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var record recordResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	require.EqualValues(t, 99, record.Quantity)
	require.EqualValues(t, 2, record.Version)
}

func TestHandlerSetStockUnknownRecord(t *testing.T) {
	srv := newTestServer(t, newMemoryRepo())

	resp := postJSON(t, srv.URL+"/inventory/update", map[string]any{
		"sku": "GHOST", "storeId": "StoreA", "newStock": 5,
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	problem := decodeProblem(t, resp)
	require.Equal(t, "Not Found", problem.Title)
}

func TestHandlerSetStockValidation(t *testing.T) {
	srv := newTestServer(t, newMemoryRepo())

	resp := postJSON(t, srv.URL+"/inventory/update", map[string]any{
		"sku": "SKU1", "storeId": "StoreA",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	problem := decodeProblem(t, resp)
	require.Equal(t, "Validation Failed", problem.Title)
	require.Equal(t, "NewStock is required", problem.Detail)
}

func TestHandlerMovementSale(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed("SKU1", "StoreA", 10)
	srv := newTestServer(t, repo)

	resp := postJSON(t, srv.URL+"/inventory/movement", map[string]any{
		"sku": "SKU1", "storeId": "StoreA", "type": "sale", "quantity": 4,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var movement movementResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&movement))
	require.Equal(t, "SALE", movement.Type)
	require.EqualValues(t, 4, movement.Quantity)
	require.NotEmpty(t, movement.ID)
	require.False(t, movement.Timestamp.IsZero())

	rec, _ := repo.get("SKU1", "StoreA")
	require.EqualValues(t, 6, rec.Quantity)
}

func TestHandlerMovementInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed("SKU1", "StoreA", 2)
	srv := newTestServer(t, repo)

	resp := postJSON(t, srv.URL+"/inventory/movement", map[string]any{
		"sku": "SKU1", "storeId": "StoreA", "type": "sale", "quantity": 5,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	problem := decodeProblem(t, resp)
	require.Equal(t, "Business Rule Violation", problem.Title)
}

func TestHandlerMovementUnsupportedType(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed("SKU1", "StoreA", 2)
	srv := newTestServer(t, repo)

	resp := postJSON(t, srv.URL+"/inventory/movement", map[string]any{
		"sku": "SKU1", "storeId": "StoreA", "type": "transfer", "quantity": 1,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	problem := decodeProblem(t, resp)
	require.Equal(t, "Business Rule Violation", problem.Title)
}

func TestHandlerMovementConflict(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed("SKU1", "StoreA", 10)
	repo.beforeSave = func() {
		rec := repo.records[key("SKU1", "StoreA")]
		rec.Version++
		repo.records[key("SKU1", "StoreA")] = rec
	}
	srv := newTestServer(t, repo)

	resp := postJSON(t, srv.URL+"/inventory/movement", map[string]any{
		"sku": "SKU1", "storeId": "StoreA", "type": "sale", "quantity": 1,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	problem := decodeProblem(t, resp)
	require.Equal(t, "Concurrency Conflict", problem.Title)
	require.Equal(t, "record was modified by another transaction", problem.Detail)
}

func TestHandlerMovementStorageError(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed("SKU1", "StoreA", 10)
	repo.appendErr = errTestStorage
	srv := newTestServer(t, repo)

	resp := postJSON(t, srv.URL+"/inventory/movement", map[string]any{
		"sku": "SKU1", "storeId": "StoreA", "type": "sale", "quantity": 1,
	})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	problem := decodeProblem(t, resp)
	require.Equal(t, "Internal Error", problem.Title)
	require.Empty(t, problem.Detail)
}

func TestHandlerMovementMetricsLabels(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed("SKU1", "StoreA", 10)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()
	h := NewHandler(logger, NewService(repo, nil, nil, nil, nil), metrics)
	r := chi.NewRouter()
	r.Route("/inventory", h.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	// Garbage types must not mint new series.
	for _, raw := range []string{"junk-a", "junk-b"} {
		resp := postJSON(t, srv.URL+"/inventory/movement", map[string]any{
			"sku": "SKU1", "storeId": "StoreA", "type": raw, "quantity": 1,
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	}
	resp := postJSON(t, srv.URL+"/inventory/movement", map[string]any{
		"sku": "SKU1", "storeId": "StoreA", "type": "Sale", "quantity": 1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	scrapeReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	scrapeRec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrapeRec, scrapeReq)
	body := scrapeRec.Body.String()

	require.Contains(t, body, `stockledger_movements_total{result="rejected",type="invalid"} 2`)
	require.Contains(t, body, `stockledger_movements_total{result="success",type="sale"} 1`)
	require.NotContains(t, body, "junk-a")
	require.NotContains(t, body, "junk-b")
}

func TestHandlerMovementBadJSON(t *testing.T) {
	srv := newTestServer(t, newMemoryRepo())

	resp, err := http.Post(srv.URL+"/inventory/movement", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	problem := decodeProblem(t, resp)
	require.Equal(t, "Invalid Payload", problem.Title)
}
