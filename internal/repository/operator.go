package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

type OperatorRepository struct {
	db *sql.DB
}

func NewOperatorRepository(db *sql.DB) *OperatorRepository {
	return &OperatorRepository{db: db}
}

func (r *OperatorRepository) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	var o domain.Operator
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM operators WHERE email = $1`, email,
	).Scan(&o.ID, &o.Email, &o.Name, &o.PasswordHash, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetByEmail: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetByEmail: %w", err)
	}
	return &o, nil
}

// Create stores a new operator. Emails are unique.
func (r *OperatorRepository) Create(ctx context.Context, o *domain.Operator) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO operators (id, email, name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		o.ID, o.Email, o.Name, o.PasswordHash,
	).Scan(&o.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("Create: %s: %w", o.Email, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}
