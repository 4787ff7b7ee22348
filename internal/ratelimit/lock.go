package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockerDisabled = errors.New("locker_disabled")
	ErrInvalidLease   = errors.New("invalid_lease")
	// ErrLeaseLost means the lease expired, and may have been re-taken,
	// before its holder released it.
	ErrLeaseLost = errors.New("lease_lost")
)

// Deletes KEYS[1] only while it still holds the caller's token.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived exclusive leases keyed by name. An abandoned
// lease expires after its ttl.
type Locker struct {
	client redis.UniversalClient
}

func NewLocker(client redis.UniversalClient) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

func leaseKey(name string) string {
	return keyPrefix + "lease:" + name
}

// TryLock reports ok=false without error while another holder owns name.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	if l == nil {
		return "", false, ErrLockerDisabled
	}
	if name == "" || ttl <= 0 {
		return "", false, ErrInvalidLease
	}
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, leaseKey(name), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// Release is a no-op for a disabled locker or an empty token.
func (l *Locker) Release(ctx context.Context, name, token string) error {
	if l == nil || name == "" || token == "" {
		return nil
	}
	deleted, err := compareAndDelete.Run(ctx, l.client, []string{leaseKey(name)}, token).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLeaseLost
	}
	return nil
}
