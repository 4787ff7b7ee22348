package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, identity *Identity) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Identity, error)
	// FindByIDForUpdate takes the row lock that serializes every balance
	// mutation of one identity. It must run inside a transaction.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Identity, error)
	FindByFingerprintHash(ctx context.Context, db *gorm.DB, hash string) (*Identity, error)
	// FindLatestByOriginHash returns the most recently created identity with
	// the origin hash, optionally restricted to those created at or after since.
	FindLatestByOriginHash(ctx context.Context, db *gorm.DB, hash string, since *time.Time) (*Identity, error)
	Touch(ctx context.Context, db *gorm.DB, id uuid.UUID, seenAt time.Time, fingerprintHash *string) error
	UpdateBalanceState(ctx context.Context, db *gorm.DB, identity *Identity) error
	MarkFreeGrant(ctx context.Context, db *gorm.DB, id uuid.UUID, contact string, seenAt time.Time) error
	ContactInUse(ctx context.Context, db *gorm.DB, contact string, exclude uuid.UUID) (bool, error)
	CountGrantedByOrigin(ctx context.Context, db *gorm.DB, originHash string, exclude uuid.UUID) (int64, error)
}
