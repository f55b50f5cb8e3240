package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the service.
// SaveRecord performs the optimistic write: the update only lands when the
// stored version still equals the one read inside this transaction.
type TxRepository interface {
	Find(ctx context.Context, sku, storeID string) (Record, error)
	SaveRecord(ctx context.Context, record Record) (Record, error)
	AppendMovement(ctx context.Context, movement Movement) (Movement, error)
}

type txRepository struct {
	tx pgx.Tx
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx executes the callback inside one transaction. Both the inventory
// write and the ledger append ride the same commit.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return runInTx(ctx, r.pool, fn)
}

// runInTx keeps the rollback deferred so the transaction is released even
// when the callback panics. Rolling back a committed transaction is a no-op.
func runInTx(ctx context.Context, db txBeginner, fn func(context.Context, TxRepository) error) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListAll returns every inventory record.
func (r *Repository) ListAll(ctx context.Context) ([]Record, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sku, store_id, quantity, version, updated_at
FROM inventory_records
ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListBySKU returns the records matching one SKU across all stores.
func (r *Repository) ListBySKU(ctx context.Context, sku string) ([]Record, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sku, store_id, quantity, version, updated_at
FROM inventory_records
WHERE sku=$1
ORDER BY id ASC`, sku)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SKU, &rec.StoreID, &rec.Quantity, &rec.Version, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *txRepository) Find(ctx context.Context, sku, storeID string) (Record, error) {
	var rec Record
	err := r.tx.QueryRow(ctx, `SELECT id, sku, store_id, quantity, version, updated_at
FROM inventory_records
WHERE sku=$1 AND store_id=$2`, sku, storeID).
		Scan(&rec.ID, &rec.SKU, &rec.StoreID, &rec.Quantity, &rec.Version, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *txRepository) SaveRecord(ctx context.Context, record Record) (Record, error) {
	if record.ID == 0 {
		// First movement for this pair. A concurrent first movement hits
		// the (sku, store_id) unique constraint and loses the race.
		err := r.tx.QueryRow(ctx, `INSERT INTO inventory_records (sku, store_id, quantity, version, updated_at)
VALUES ($1,$2,$3,1,NOW())
RETURNING id, version, updated_at`, record.SKU, record.StoreID, record.Quantity).
			Scan(&record.ID, &record.Version, &record.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return Record{}, ErrConcurrencyConflict
			}
			return Record{}, err
		}
		return record, nil
	}
	err := r.tx.QueryRow(ctx, `UPDATE inventory_records
SET quantity=$1, version=version+1, updated_at=NOW()
WHERE id=$2 AND version=$3
RETURNING version, updated_at`, record.Quantity, record.ID, record.Version).
		Scan(&record.Version, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrConcurrencyConflict
		}
		return Record{}, err
	}
	return record, nil
}

func (r *txRepository) AppendMovement(ctx context.Context, movement Movement) (Movement, error) {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (id, sku, store_id, movement_type, quantity, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6)`, movement.ID, movement.SKU, movement.StoreID, string(movement.Type), movement.Quantity, movement.OccurredAt)
	if err != nil {
		return Movement{}, err
	}
	return movement, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
