package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent reports false when the idempotency key already exists.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerPaymentID string) (*EventRecord, error)
}
