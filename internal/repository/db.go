package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/josh-kwaku/settlement-engine/internal/provider"
)

type scanner interface {
	Scan(dest ...any) error
}

// Store is the Postgres record store behind the settlement service and the
// provider clients.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Atomic runs fn in one database transaction. fn's error is returned
// unwrapped after rollback.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx provider.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Atomic: begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("Atomic: commit: %w", err)
	}
	return nil
}

// Tx is the provider.Tx bound to an open transaction.
type Tx struct {
	tx *sql.Tx
}
