package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReservationState string

const (
	ReservationIdle     ReservationState = "idle"
	ReservationReserved ReservationState = "reserved"
)

// Identity is one anonymous device or browser. Rows are never deleted.
type Identity struct {
	ID                  uuid.UUID        `json:"id" gorm:"type:char(36);primaryKey"`
	FingerprintHash     *string          `json:"-" gorm:"size:64;index"`
	OriginHash          *string          `json:"-" gorm:"size:64;index"`
	ContactAddress      *string          `json:"-" gorm:"size:254;uniqueIndex"`
	Balance             int64            `json:"balance" gorm:"not null;default:0;check:balance >= 0"`
	FreeGrantUsed       bool             `json:"free_grant_used" gorm:"not null;default:false"`
	ReservationState    ReservationState `json:"reservation_state" gorm:"size:16;not null;default:idle"`
	ReservedAt          *time.Time       `json:"reserved_at,omitempty"`
	ReleasedAt          *time.Time       `json:"released_at,omitempty"`
	CompletedSpendCount int64            `json:"completed_spend_count" gorm:"not null;default:0"`
	CreatedAt           time.Time        `json:"created_at" gorm:"not null;index"`
	LastSeenAt          time.Time        `json:"last_seen_at" gorm:"not null"`
}

func (Identity) TableName() string { return "identities" }

// Reserved reports whether a spend is in flight.
func (i *Identity) Reserved() bool {
	return i.ReservationState == ReservationReserved && i.ReservedAt != nil
}

// Signals are the weak credentials a request carries. Raw values never leave
// the resolver: only their keyed hashes are stored.
type Signals struct {
	CredentialToken string
	Fingerprint     string
	Origin          string
}

// Source names the signal that produced a resolution.
type Source string

const (
	SourceToken       Source = "token"
	SourceFingerprint Source = "fingerprint"
	SourceOrigin      Source = "origin"
	SourceCreated     Source = "created"
)

type Resolution struct {
	Identity *Identity
	Source   Source
	// IssuedToken is set only when the identity was created by this call.
	IssuedToken    string
	TokenExpiresAt time.Time
}

// ReferenceKind is the form of an identity reference embedded by a checkout.
type ReferenceKind string

const (
	ReferenceID          ReferenceKind = "id"
	ReferenceToken       ReferenceKind = "token"
	ReferenceFingerprint ReferenceKind = "fingerprint"
)
