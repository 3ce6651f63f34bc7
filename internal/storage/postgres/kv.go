package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/AnnaKryuchkova/product-console/internal/errs"
)

// KV stores values in kv_store, scoped by namespace so several
// console users can share one database.
type KV struct {
	db        *DB
	namespace string
}

// NewKV constructs a namespaced key-value store.
func NewKV(db *DB, namespace string) *KV { return &KV{db: db, namespace: namespace} }

// Get selects the value for key.
func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `
SELECT value
FROM kv_store WHERE namespace=$1 AND key=$2`
	var v []byte
	if err := s.db.Pool.QueryRow(ctx, q, s.namespace, key).Scan(&v); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// Set upserts the value for key.
func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	const q = `
INSERT INTO kv_store (namespace, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (namespace, key)
DO UPDATE SET value=EXCLUDED.value, updated_at=now()`
	_, err := s.db.Pool.Exec(ctx, q, s.namespace, key, value)
	return err
}

// Delete removes key; a missing row is not an error.
func (s *KV) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM kv_store WHERE namespace=$1 AND key=$2`
	_, err := s.db.Pool.Exec(ctx, q, s.namespace, key)
	return err
}
