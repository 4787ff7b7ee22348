package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service is the credit ledger. Every mutation is one transaction holding
// the identity row lock.
type Service interface {
	Spend(ctx context.Context, identityID uuid.UUID) (Balance, error)
	Refund(ctx context.Context, identityID uuid.UUID) (Balance, error)
	Commit(ctx context.Context, identityID uuid.UUID) (Balance, error)
	Grant(ctx context.Context, identityID uuid.UUID, amount int64, source Source) (Balance, error)
	// GrantTx applies a grant inside the caller's transaction so the grant
	// commits or rolls back together with the caller's own writes.
	GrantTx(ctx context.Context, tx *gorm.DB, identityID uuid.UUID, amount int64, source Source) (Balance, error)
	Balance(ctx context.Context, identityID uuid.UUID) (Balance, error)
	History(ctx context.Context, identityID uuid.UUID, limit int) ([]Transaction, error)
}
