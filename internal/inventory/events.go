package inventory

import (
	"context"
	"time"
)

// MovementRecordedEvent describes a committed stock movement for downstream
// consumers.
type MovementRecordedEvent struct {
	MovementID        string
	SKU               string
	StoreID           string
	Type              MovementType
	Quantity          int64
	ResultingQuantity int64
	OccurredAt        time.Time
}

// IntegrationHandler receives inventory events after commit.
type IntegrationHandler interface {
	HandleMovementRecorded(ctx context.Context, evt MovementRecordedEvent) error
}
