package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/tryon/internal/clock"
	"github.com/smallbiznis/tryon/internal/config"
	"github.com/smallbiznis/tryon/internal/credit/domain"
	"github.com/smallbiznis/tryon/internal/credit/repository"
	identitydomain "github.com/smallbiznis/tryon/internal/identity/domain"
	identityrepo "github.com/smallbiznis/tryon/internal/identity/repository"
	"github.com/smallbiznis/tryon/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	clock  *clock.FakeClock
	ledger domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testsupport.OpenDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return &fixture{
		db:    db,
		clock: clk,
		ledger: NewService(Params{
			DB:           db,
			Log:          zap.NewNop(),
			GenID:        testsupport.Node(t),
			Clock:        clk,
			Policy:       config.DefaultPolicy(),
			Repo:         repository.Provide(),
			IdentityRepo: identityrepo.Provide(),
		}),
	}
}

func (f *fixture) identity(t *testing.T, balance int64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := identityrepo.Provide().Insert(context.Background(), f.db, &identitydomain.Identity{
		ID:               id,
		Balance:          balance,
		ReservationState: identitydomain.ReservationIdle,
		CreatedAt:        f.clock.Now(),
		LastSeenAt:       f.clock.Now(),
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) journal(t *testing.T, id uuid.UUID, kind domain.TransactionKind) int64 {
	return testsupport.Count(t, f.db,
		"SELECT COUNT(*) FROM credit_transactions WHERE identity_id = ? AND kind = ?", id, kind)
}

func TestSpendCommitLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.identity(t, 2)

	bal, err := f.ledger.Spend(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal.Balance)
	assert.True(t, bal.Reserved)

	bal, err = f.ledger.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal.Balance)
	assert.Equal(t, int64(1), bal.CompletedSpendCount)
	assert.False(t, bal.Reserved)

	assert.Equal(t, int64(1), f.journal(t, id, domain.KindSpend))
	assert.Equal(t, int64(1), f.journal(t, id, domain.KindCommit))

	_, err = f.ledger.Commit(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNoPendingSpend)
}

func TestSpendRefundRestoresBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.identity(t, 1)

	_, err := f.ledger.Spend(ctx, id)
	require.NoError(t, err)
	bal, err := f.ledger.Refund(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal.Balance)
	assert.Equal(t, int64(0), bal.CompletedSpendCount)

	_, err = f.ledger.Refund(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNoPendingSpend)
}

func TestSpendRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty := f.identity(t, 0)
	_, err := f.ledger.Spend(ctx, empty)
	assert.ErrorIs(t, err, domain.ErrInsufficientCredit)

	funded := f.identity(t, 5)
	_, err = f.ledger.Spend(ctx, funded)
	require.NoError(t, err)
	_, err = f.ledger.Spend(ctx, funded)
	assert.ErrorIs(t, err, domain.ErrAlreadyPending)

	_, err = f.ledger.Spend(ctx, uuid.New())
	assert.ErrorIs(t, err, identitydomain.ErrIdentityNotFound)
}

func TestSpendChecksPendingBeforeBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.identity(t, 1)

	_, err := f.ledger.Spend(ctx, id)
	require.NoError(t, err)
	_, err = f.ledger.Spend(ctx, id)
	assert.ErrorIs(t, err, domain.ErrAlreadyPending)
}

func TestCooldownBoundary(t *testing.T) {
	for _, release := range []string{"commit", "refund"} {
		t.Run(release, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			id := f.identity(t, 3)

			_, err := f.ledger.Spend(ctx, id)
			require.NoError(t, err)
			if release == "commit" {
				_, err = f.ledger.Commit(ctx, id)
			} else {
				_, err = f.ledger.Refund(ctx, id)
			}
			require.NoError(t, err)

			f.clock.Advance(59 * time.Second)
			_, err = f.ledger.Spend(ctx, id)
			require.ErrorIs(t, err, domain.ErrCooldown)
			var cooldown *domain.CooldownError
			require.True(t, errors.As(err, &cooldown))
			assert.Equal(t, time.Second, cooldown.RetryAfter)

			f.clock.Advance(time.Second)
			_, err = f.ledger.Spend(ctx, id)
			assert.NoError(t, err)
		})
	}
}

func TestRefundWindowBoundary(t *testing.T) {
	cases := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{name: "inside window", elapsed: 5*time.Minute - time.Second},
		{name: "exactly at window", elapsed: 5 * time.Minute, wantErr: domain.ErrRefundWindowExpired},
		{name: "after window", elapsed: 301 * time.Second, wantErr: domain.ErrRefundWindowExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			id := f.identity(t, 1)

			_, err := f.ledger.Spend(ctx, id)
			require.NoError(t, err)
			f.clock.Advance(tc.elapsed)

			bal, err := f.ledger.Refund(ctx, id)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				current, err := f.ledger.Balance(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, int64(0), current.Balance)
				assert.True(t, current.Reserved)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1), bal.Balance)
		})
	}
}

func TestCommitAfterWindowSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.identity(t, 1)

	_, err := f.ledger.Spend(ctx, id)
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)

	bal, err := f.ledger.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal.CompletedSpendCount)
}

func TestSpendForfeitsExpiredReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.identity(t, 2)

	_, err := f.ledger.Spend(ctx, id)
	require.NoError(t, err)

	// reservation expires at +5m; the cooldown then runs from that instant
	f.clock.Advance(6 * time.Minute)
	bal, err := f.ledger.Spend(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Balance)
	assert.True(t, bal.Reserved)
	assert.Equal(t, int64(1), f.journal(t, id, domain.KindForfeit))
	assert.Equal(t, int64(0), f.journal(t, id, domain.KindRefund))
}

func TestForfeitRespectsCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.identity(t, 2)

	_, err := f.ledger.Spend(ctx, id)
	require.NoError(t, err)

	f.clock.Advance(5*time.Minute + 10*time.Second)
	_, err = f.ledger.Spend(ctx, id)
	assert.ErrorIs(t, err, domain.ErrCooldown)

	// the rejected attempt rolled back; the reservation is still there
	current, err := f.ledger.Balance(ctx, id)
	require.NoError(t, err)
	assert.True(t, current.Reserved)
	assert.Equal(t, int64(0), f.journal(t, id, domain.KindForfeit))
}

func TestGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.identity(t, 0)

	bal, err := f.ledger.Grant(ctx, id, 15, domain.Source{Type: domain.SourcePayment, Ref: "lemonsqueezy:1"})
	require.NoError(t, err)
	assert.Equal(t, int64(15), bal.Balance)

	for _, amount := range []int64{0, -3} {
		_, err = f.ledger.Grant(ctx, id, amount, domain.Source{Type: domain.SourcePayment})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	}

	history, err := f.ledger.History(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.KindGrant, history[0].Kind)
	assert.Equal(t, int64(15), history[0].BalanceAfter)
	assert.Equal(t, "lemonsqueezy:1", history[0].SourceRef)
}

func TestGrantTxRollsBackWithCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.identity(t, 0)

	boom := errors.New("caller failed")
	err := f.db.Transaction(func(tx *gorm.DB) error {
		if _, err := f.ledger.GrantTx(ctx, tx, id, 5, domain.Source{Type: domain.SourcePayment}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	bal, err := f.ledger.Balance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Balance)
	assert.Equal(t, int64(0), f.journal(t, id, domain.KindGrant))
}

func TestConcurrentSpendReservesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.identity(t, 3)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		pending   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Spend(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrAlreadyPending):
				pending++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, pending)
	bal, err := f.ledger.Balance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bal.Balance)
}

func TestConcurrentGrantsAreNotLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.identity(t, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Grant(ctx, id, 1, domain.Source{Type: domain.SourcePayment})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	bal, err := f.ledger.Balance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(20), bal.Balance)
	assert.Equal(t, int64(20), f.journal(t, id, domain.KindGrant))
}

// Balance never exceeds what was granted, whatever mix of outcomes the
// metered work produces.
func TestBalanceEqualsGrantsMinusCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.identity(t, 4)

	outcomes := []bool{true, false, true, true, false}
	commits := 0
	for _, ok := range outcomes {
		_, err := f.ledger.Spend(ctx, id)
		if errors.Is(err, domain.ErrInsufficientCredit) {
			break
		}
		require.NoError(t, err)
		if ok {
			_, err = f.ledger.Commit(ctx, id)
			commits++
		} else {
			_, err = f.ledger.Refund(ctx, id)
		}
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	bal, err := f.ledger.Balance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(4-commits), bal.Balance)
	assert.Equal(t, int64(commits), bal.CompletedSpendCount)
}
