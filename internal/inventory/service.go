package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/retailcore/stockledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListAll(ctx context.Context) ([]Record, error)
	ListBySKU(ctx context.Context, sku string) ([]Record, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against duplicate movement submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service owns all stock mutations. It is the only writer of record
// quantities and the only creator of ledger entries; reads go through the
// same repository, optionally fronted by the snapshot cache.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	cache       *Cache
	integration IntegrationHandler
}

// NewService builds Service. Audit, idempotency, cache and integration are
// all optional.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cache *Cache, integration IntegrationHandler) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, cache: cache, integration: integration}
}

// MovementInput describes a request to record a stock movement.
type MovementInput struct {
	SKU      string
	StoreID  string
	Type     string
	Quantity int64
	// IdempotencyKey is optional; when set, a repeated key is rejected
	// before any state is touched.
	IdempotencyKey string
}

// GetAllInventory returns a snapshot of every inventory record.
func (s *Service) GetAllInventory(ctx context.Context) ([]Record, error) {
	if s.cache == nil {
		return s.repo.ListAll(ctx)
	}
	key, err := s.cache.BuildKey(ctx, "inventory", "all")
	if err != nil {
		return s.repo.ListAll(ctx)
	}
	records := []Record{}
	if err := s.cache.FetchJSON(ctx, key, &records, func(ctx context.Context) (any, error) {
		return s.repo.ListAll(ctx)
	}); err != nil {
		return s.repo.ListAll(ctx)
	}
	return records, nil
}

// GetInventoryBySKU returns the records for one SKU across all stores.
// An unknown SKU yields an empty slice, not an error.
func (s *Service) GetInventoryBySKU(ctx context.Context, sku string) ([]Record, error) {
	if sku == "" {
		return nil, errors.New("inventory: sku required")
	}
	if s.cache == nil {
		return s.repo.ListBySKU(ctx, sku)
	}
	key, err := s.cache.BuildKey(ctx, "inventory", "sku", sku)
	if err != nil {
		return s.repo.ListBySKU(ctx, sku)
	}
	records := []Record{}
	if err := s.cache.FetchJSON(ctx, key, &records, func(ctx context.Context) (any, error) {
		return s.repo.ListBySKU(ctx, sku)
	}); err != nil {
		return s.repo.ListBySKU(ctx, sku)
	}
	return records, nil
}

// RecordMovement applies one sale or restock and appends the matching
// ledger entry inside a single transaction. A record is created at zero
// quantity when the (SKU, store) pair is new. On ErrConcurrencyConflict the
// caller must retry the whole operation; validation has to re-run against
// fresh data, so no retry happens here.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (Movement, error) {
	if input.SKU == "" || input.StoreID == "" {
		return Movement{}, errors.New("inventory: sku and store required")
	}
	movementType, err := ParseMovementType(input.Type)
	if err != nil {
		return Movement{}, err
	}
	if input.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}

	insertedKey := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "inventory"); err != nil {
			return Movement{}, err
		}
		insertedKey = true
	}

	movement := Movement{
		ID:         uuid.NewString(),
		SKU:        input.SKU,
		StoreID:    input.StoreID,
		Type:       movementType,
		Quantity:   input.Quantity,
		OccurredAt: time.Now().UTC(),
	}
	var resulting int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		record, err := tx.Find(ctx, input.SKU, input.StoreID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if errors.Is(err, ErrNotFound) {
			record = Record{SKU: input.SKU, StoreID: input.StoreID}
		}
		switch movementType {
		case MovementTypeSale:
			if record.Quantity < input.Quantity {
				return ErrInsufficientStock
			}
			record.Quantity -= input.Quantity
		case MovementTypeRestock:
			record.Quantity += input.Quantity
		}
		saved, err := tx.SaveRecord(ctx, record)
		if err != nil {
			return err
		}
		resulting = saved.Quantity
		stored, err := tx.AppendMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement = stored
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Movement{}, err
	}

	s.invalidate(ctx)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "inventory:" + string(movementType),
			Entity:   "inventory_record",
			EntityID: input.SKU + ":" + input.StoreID,
			Meta: map[string]any{
				"movement_id": movement.ID,
				"quantity":    input.Quantity,
				"resulting":   resulting,
			},
			At: time.Now().UTC(),
		})
	}
	if s.integration != nil {
		evt := MovementRecordedEvent{
			MovementID:        movement.ID,
			SKU:               movement.SKU,
			StoreID:           movement.StoreID,
			Type:              movement.Type,
			Quantity:          movement.Quantity,
			ResultingQuantity: resulting,
			OccurredAt:        movement.OccurredAt,
		}
		if err := s.integration.HandleMovementRecorded(ctx, evt); err != nil {
			return Movement{}, err
		}
	}
	return movement, nil
}

// SetStock overwrites the quantity of an existing record. Unlike
// RecordMovement it never creates a record and takes the new quantity
// as-is; the movement path owns the non-negative rule.
func (s *Service) SetStock(ctx context.Context, sku, storeID string, newQuantity int64) (Record, error) {
	if sku == "" || storeID == "" {
		return Record{}, errors.New("inventory: sku and store required")
	}
	var updated Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		record, err := tx.Find(ctx, sku, storeID)
		if err != nil {
			return err
		}
		record.Quantity = newQuantity
		saved, err := tx.SaveRecord(ctx, record)
		if err != nil {
			return err
		}
		updated = saved
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	s.invalidate(ctx)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "inventory:SET",
			Entity:   "inventory_record",
			EntityID: sku + ":" + storeID,
			Meta: map[string]any{
				"quantity": newQuantity,
			},
			At: time.Now().UTC(),
		})
	}
	return updated, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}
