// Package guard holds the free-grant eligibility policy. It reads state but
// never changes it.
package guard

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/tryon/internal/abuse/domain"
	identitydomain "github.com/smallbiznis/tryon/internal/identity/domain"
)

// Lookup answers the questions the guard asks about other identities.
type Lookup interface {
	ContactInUse(ctx context.Context, contact string, exclude uuid.UUID) (bool, error)
	CountGrantedByOrigin(ctx context.Context, originHash string, exclude uuid.UUID) (int64, error)
}

type Guard struct {
	originThreshold int64
}

func New(originThreshold int) *Guard {
	return &Guard{originThreshold: int64(originThreshold)}
}

// CheckFreeEligible rejects an identity that already claimed its grant, a
// contact another identity claimed, or an origin that already produced
// originThreshold granted identities.
func (g *Guard) CheckFreeEligible(ctx context.Context, lookup Lookup, identity *identitydomain.Identity, contact string) error {
	if identity.FreeGrantUsed {
		return domain.ErrAlreadyGranted
	}

	used, err := lookup.ContactInUse(ctx, contact, identity.ID)
	if err != nil {
		return err
	}
	if used {
		return domain.ErrContactAlreadyUsed
	}

	if identity.OriginHash == nil || *identity.OriginHash == "" || g.originThreshold <= 0 {
		return nil
	}
	granted, err := lookup.CountGrantedByOrigin(ctx, *identity.OriginHash, identity.ID)
	if err != nil {
		return err
	}
	if granted >= g.originThreshold {
		return domain.ErrOriginRateLimited
	}
	return nil
}

// NormalizeContact trims and lower-cases an email-like address. It must hold
// exactly one '@' with something on both sides.
func NormalizeContact(raw string) (string, error) {
	contact := strings.ToLower(strings.TrimSpace(raw))
	local, host, ok := strings.Cut(contact, "@")
	if !ok || local == "" || host == "" || strings.Contains(host, "@") {
		return "", domain.ErrInvalidContact
	}
	if strings.ContainsAny(contact, " \t\r\n") || len(contact) > 254 {
		return "", domain.ErrInvalidContact
	}
	return contact, nil
}
