package domain

import (
	"time"

	"github.com/google/uuid"
)

// Operator is a back-office user allowed to drive custody operations.
type Operator struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}
