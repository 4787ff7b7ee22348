package domain

import (
	"context"

	"github.com/google/uuid"
	creditdomain "github.com/smallbiznis/tryon/internal/credit/domain"
)

// Service grants the one free credit an identity may claim by proving a
// contact address.
type Service interface {
	GrantFree(ctx context.Context, identityID uuid.UUID, contact string) (creditdomain.Balance, error)
}
