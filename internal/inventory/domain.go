package inventory

import (
	"errors"
	"strings"
	"time"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementTypeSale represents an outbound sale, decreasing stock.
	MovementTypeSale MovementType = "SALE"
	// MovementTypeRestock represents an inbound replenishment.
	MovementTypeRestock MovementType = "RESTOCK"
)

// ParseMovementType resolves a caller supplied type string. Matching is
// case-insensitive; anything outside sale/restock fails with
// ErrUnsupportedMovementType.
func ParseMovementType(raw string) (MovementType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sale":
		return MovementTypeSale, nil
	case "restock":
		return MovementTypeRestock, nil
	default:
		return "", ErrUnsupportedMovementType
	}
}

// Record models the current stock of one SKU in one store. The business key
// is (SKU, StoreID); ID is a storage surrogate. Version is the optimistic
// concurrency token, bumped on every successful write.
type Record struct {
	ID        int64
	SKU       string
	StoreID   string
	Quantity  int64
	Version   int64
	UpdatedAt time.Time
}

// Movement is one immutable ledger entry. Quantity is always the delta
// magnitude, never the resulting total.
type Movement struct {
	ID         string
	SKU        string
	StoreID    string
	Type       MovementType
	Quantity   int64
	OccurredAt time.Time
}

// ErrNotFound indicates no record exists for the requested (SKU, store) pair.
var ErrNotFound = errors.New("inventory: record not found")

// ErrInsufficientStock triggered when a sale exceeds the current quantity.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")

// ErrUnsupportedMovementType indicates a movement type outside sale/restock.
var ErrUnsupportedMovementType = errors.New("inventory: unsupported movement type")

// ErrConcurrencyConflict indicates the record changed between read and write.
// Callers must re-run the whole operation against fresh data.
var ErrConcurrencyConflict = errors.New("inventory: record modified by another transaction")

// ErrInvalidQuantity indicates a non-positive movement quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
