package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/retailcore/stockledger/internal/observability"
	"github.com/retailcore/stockledger/internal/platform/httpx"
	"github.com/retailcore/stockledger/internal/shared"
)

// Handler wires the JSON endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewHandler constructs inventory handler. Metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, metrics: metrics, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{sku}", h.handleListBySKU)
	r.Post("/update", h.handleSetStock)
	r.Post("/movement", h.handleMovement)
}

type recordResponse struct {
	ID        int64     `json:"id"`
	SKU       string    `json:"sku"`
	StoreID   string    `json:"storeId"`
	Quantity  int64     `json:"quantity"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type movementResponse struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	StoreID   string    `json:"storeId"`
	Type      string    `json:"type"`
	Quantity  int64     `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

type stockUpdateRequest struct {
	SKU      string `json:"sku" validate:"required"`
	StoreID  string `json:"storeId" validate:"required"`
	NewStock *int64 `json:"newStock" validate:"required"`
}

type stockMovementRequest struct {
	SKU      string `json:"sku" validate:"required"`
	StoreID  string `json:"storeId" validate:"required"`
	Type     string `json:"type" validate:"required"`
	Quantity *int64 `json:"quantity" validate:"required"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.GetAllInventory(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponses(records))
}

func (h *Handler) handleListBySKU(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	records, err := h.service.GetInventoryBySKU(r.Context(), sku)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponses(records))
}

func (h *Handler) handleSetStock(w http.ResponseWriter, r *http.Request) {
	var req stockUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	h.logger.Info("stock update requested",
		slog.String("sku", req.SKU),
		slog.String("store_id", req.StoreID),
		slog.Int64("new_stock", *req.NewStock))

	record, err := h.service.SetStock(r.Context(), req.SKU, req.StoreID, *req.NewStock)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponse(record))
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request) {
	var req stockMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	h.logger.Info("stock movement requested",
		slog.String("sku", req.SKU),
		slog.String("store_id", req.StoreID),
		slog.String("type", req.Type),
		slog.Int64("quantity", *req.Quantity))

	movement, err := h.service.RecordMovement(r.Context(), MovementInput{
		SKU:            req.SKU,
		StoreID:        req.StoreID,
		Type:           req.Type,
		Quantity:       *req.Quantity,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	h.metrics.RecordMovement(movementLabel(req.Type), movementResult(err))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movementResponse{
		ID:        movement.ID,
		SKU:       movement.SKU,
		StoreID:   movement.StoreID,
		Type:      string(movement.Type),
		Quantity:  movement.Quantity,
		Timestamp: movement.OccurredAt,
	})
}

// respondError maps domain errors onto stable status codes. Anything
// uncategorised surfaces as a generic 500 without internal detail.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrUnsupportedMovementType),
		errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Business Rule Violation", err.Error())
	case errors.Is(err, ErrConcurrencyConflict):
		httpx.Problem(w, http.StatusConflict, "Concurrency Conflict", "record was modified by another transaction")
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		h.logger.Error("inventory request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toRecordResponse(rec Record) recordResponse {
	return recordResponse{
		ID:        rec.ID,
		SKU:       rec.SKU,
		StoreID:   rec.StoreID,
		Quantity:  rec.Quantity,
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt,
	}
}

func toRecordResponses(records []Record) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	return out
}

// movementLabel keeps the metric label set bounded: only the two parsed
// movement types appear, everything else collapses to "invalid".
func movementLabel(raw string) string {
	movementType, err := ParseMovementType(raw)
	if err != nil {
		return "invalid"
	}
	return strings.ToLower(string(movementType))
}

func movementResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrUnsupportedMovementType),
		errors.Is(err, ErrInvalidQuantity):
		return "rejected"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	default:
		return "error"
	}
}

func validationDetail(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return fieldErrs[0].Field() + " is required"
	}
	return "invalid request"
}
