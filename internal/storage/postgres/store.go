package postgres

import (
	"context"
	"errors"

	"github.com/and161185/lendclient/internal/storage"
	"github.com/jackc/pgx/v5"
)

// Store keeps the keys of one namespace (typically a device or user id)
// in the client_storage table.
type Store struct {
	db        *DB
	namespace string
}

var _ storage.Storage = (*Store)(nil)

// NewStore constructs a store scoped to namespace.
func NewStore(db *DB, namespace string) *Store {
	if namespace == "" {
		namespace = "default"
	}
	return &Store{db: db, namespace: namespace}
}

// Get selects the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	const q = `SELECT value FROM client_storage WHERE namespace=$1 AND key=$2`
	var v string
	err := s.db.Pool.QueryRow(ctx, q, s.namespace, key).Scan(&v)
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", false, nil
	default:
		return "", false, storage.Fault("get", err)
	}
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	const q = `INSERT INTO client_storage (namespace, key, value, updated_at) VALUES ($1, $2, $3, now()) ON CONFLICT (namespace, key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`
	_, err := s.db.Pool.Exec(ctx, q, s.namespace, key, value)
	return storage.Fault("set", err)
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	const q = `DELETE FROM client_storage WHERE namespace=$1 AND key=$2`
	_, err := s.db.Pool.Exec(ctx, q, s.namespace, key)
	return storage.Fault("remove", err)
}

// Keys lists the namespace's keys ordered by key.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	const q = `SELECT key FROM client_storage WHERE namespace=$1 ORDER BY key`
	rows, err := s.db.Pool.Query(ctx, q, s.namespace)
	if err != nil {
		return nil, storage.Fault("keys", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, storage.Fault("keys", err)
		}
		out = append(out, k)
	}
	return out, storage.Fault("keys", rows.Err())
}
