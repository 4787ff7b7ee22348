package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Resolver maps request signals to exactly one Identity.
type Resolver interface {
	Resolve(ctx context.Context, signals Signals) (*Resolution, error)
	Get(ctx context.Context, id uuid.UUID) (*Identity, error)
	Reissue(ctx context.Context, id uuid.UUID) (string, time.Time, error)
	// FindByReference locates an identity from an opaque reference inside
	// the caller's transaction. It returns ErrIdentityNotFound along with the
	// parsed kind when the reference is well formed but matches nothing.
	FindByReference(ctx context.Context, tx *gorm.DB, ref string) (*Identity, ReferenceKind, error)
}
