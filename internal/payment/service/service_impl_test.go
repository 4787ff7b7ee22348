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
	creditdomain "github.com/smallbiznis/tryon/internal/credit/domain"
	creditrepo "github.com/smallbiznis/tryon/internal/credit/repository"
	creditservice "github.com/smallbiznis/tryon/internal/credit/service"
	identitydomain "github.com/smallbiznis/tryon/internal/identity/domain"
	identityrepo "github.com/smallbiznis/tryon/internal/identity/repository"
	identityservice "github.com/smallbiznis/tryon/internal/identity/service"
	"github.com/smallbiznis/tryon/internal/identity/signal"
	"github.com/smallbiznis/tryon/internal/identity/token"
	paymentdomain "github.com/smallbiznis/tryon/internal/payment/domain"
	"github.com/smallbiznis/tryon/internal/payment/repository"
	"github.com/smallbiznis/tryon/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db         *gorm.DB
	clock      *clock.FakeClock
	signer     *token.Signer
	hasher     *signal.Hasher
	ledger     creditdomain.Service
	reconciler *Service
}

func newFixture(t *testing.T, policy config.Policy) *fixture {
	t.Helper()
	db := testsupport.OpenDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	node := testsupport.Node(t)
	ids := identityrepo.Provide()
	signer := token.NewSigner([]byte("credential-key-credential-key-00"), 24*time.Hour, clk)
	hasher := signal.NewHasher([]byte("signal-key"))

	resolver := identityservice.NewResolver(identityservice.Params{
		DB: db, Log: zap.NewNop(), Repo: ids, Signer: signer, Hasher: hasher, Clock: clk, Policy: policy,
	})
	ledger := creditservice.NewService(creditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Policy: policy,
		Repo: creditrepo.Provide(), IdentityRepo: ids,
	})
	reconciler := NewService(Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Policy:       policy,
		Repo:         repository.Provide(),
		Resolver:     resolver,
		IdentityRepo: ids,
		Ledger:       ledger,
	}).(*Service)

	return &fixture{db: db, clock: clk, signer: signer, hasher: hasher, ledger: ledger, reconciler: reconciler}
}

func (f *fixture) identity(t *testing.T, fingerprint string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	identity := &identitydomain.Identity{
		ID:               id,
		ReservationState: identitydomain.ReservationIdle,
		CreatedAt:        f.clock.Now(),
		LastSeenAt:       f.clock.Now(),
	}
	if fingerprint != "" {
		identity.FingerprintHash = f.hasher.Ptr(fingerprint)
	}
	require.NoError(t, identityrepo.Provide().Insert(context.Background(), f.db, identity))
	return id
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	bal, err := f.ledger.Balance(context.Background(), id)
	require.NoError(t, err)
	return bal.Balance
}

func (f *fixture) events(t *testing.T) int64 {
	return testsupport.Count(t, f.db, "SELECT COUNT(*) FROM payment_events")
}

func event(ref string, credits int64) *paymentdomain.PaymentEvent {
	return &paymentdomain.PaymentEvent{
		Provider:          "LemonSqueezy",
		ProviderEventID:   "wh_1",
		ProviderPaymentID: "order-1",
		EventType:         "order_created",
		IdentityRef:       ref,
		Credits:           credits,
		Amount:            500,
		Currency:          "USD",
		ContactAddress:    "Buyer@Example.com",
		ProductName:       "15 Try Pack",
		RawPayload:        []byte(`{"meta":{"event_name":"order_created"}}`),
	}
}

func TestApplyThenDuplicate(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	ctx := context.Background()
	id := f.identity(t, "")

	status, err := f.reconciler.Apply(ctx, event(id.String(), 15))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusApplied, status)
	assert.Equal(t, int64(15), f.balance(t, id))

	status, err = f.reconciler.Apply(ctx, event(id.String(), 15))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusDuplicate, status)
	assert.Equal(t, int64(15), f.balance(t, id))
	assert.Equal(t, int64(1), f.events(t))

	stored, err := repository.Provide().FindEvent(ctx, f.db, "lemonsqueezy", "order-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, id, stored.IdentityID)
	assert.Equal(t, "id", stored.ReferenceKind)
	assert.Equal(t, int64(15), stored.CreditsGranted)
	require.NotNil(t, stored.ContactAddress)
	assert.Equal(t, "buyer@example.com", *stored.ContactAddress)
}

func TestApplyResolvesEveryReferenceForm(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	ctx := context.Background()

	byToken := f.identity(t, "")
	tok, _, err := f.signer.Issue(byToken.String())
	require.NoError(t, err)

	byFingerprint := f.identity(t, "device-fp")

	cases := []struct {
		ref  string
		want uuid.UUID
	}{
		{ref: tok, want: byToken},
		{ref: f.hasher.Hash("device-fp"), want: byFingerprint},
	}
	for i, tc := range cases {
		ev := event(tc.ref, 5)
		ev.ProviderPaymentID = uuid.NewString()
		status, err := f.reconciler.Apply(ctx, ev)
		require.NoError(t, err, i)
		assert.Equal(t, paymentdomain.StatusApplied, status, i)
		assert.Equal(t, int64(5), f.balance(t, tc.want), i)
	}
}

func TestApplyIgnoresIncompleteEvents(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	id := f.identity(t, "")

	for _, ev := range []*paymentdomain.PaymentEvent{event("", 5), event(id.String(), 0), event(id.String(), -2)} {
		status, err := f.reconciler.Apply(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.StatusIgnored, status)
	}
	assert.Zero(t, f.events(t))
	assert.Zero(t, f.balance(t, id))

	ev := event(id.String(), 5)
	ev.ProviderPaymentID = " "
	_, err := f.reconciler.Apply(context.Background(), ev)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
}

func TestApplyUnresolvedRejectPolicy(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())

	for _, ref := range []string{uuid.NewString(), "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ4In0.Zm9yZ2Vk", f.hasher.Hash("unknown"), "garbage"} {
		_, err := f.reconciler.Apply(context.Background(), event(ref, 5))
		assert.ErrorIs(t, err, paymentdomain.ErrUnresolvedIdentity, ref)
	}
	assert.Zero(t, f.events(t))
	assert.Zero(t, testsupport.Count(t, f.db, "SELECT COUNT(*) FROM identities"))
}

func TestApplyUnresolvedMaterializePolicy(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.Payment.UnresolvedIdentity = config.UnresolvedIdentityMaterialize
	f := newFixture(t, policy)

	ref := uuid.New()
	status, err := f.reconciler.Apply(context.Background(), event(ref.String(), 5))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusApplied, status)
	assert.Equal(t, int64(5), f.balance(t, ref))

	// only well-formed ids may be materialized
	ev := event(f.hasher.Hash("unknown"), 5)
	ev.ProviderPaymentID = "order-2"
	_, err = f.reconciler.Apply(context.Background(), ev)
	assert.ErrorIs(t, err, paymentdomain.ErrUnresolvedIdentity)
}

func TestConcurrentRedeliveriesApplyOnce(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	id := f.identity(t, "")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[paymentdomain.Status]int{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := f.reconciler.Apply(context.Background(), event(id.String(), 15))
			assert.NoError(t, err)
			mu.Lock()
			statuses[status]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, statuses[paymentdomain.StatusApplied])
	assert.Equal(t, 7, statuses[paymentdomain.StatusDuplicate])
	assert.Equal(t, int64(15), f.balance(t, id))
}

type fakeLock struct {
	held     bool
	err      error
	released int
}

func (l *fakeLock) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	return "token", !l.held, nil
}

func (l *fakeLock) Release(context.Context, string, string) error {
	l.released++
	return nil
}

func TestApplyInFlightLock(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	id := f.identity(t, "")

	lock := &fakeLock{held: true}
	f.reconciler.WithLock(lock)
	_, err := f.reconciler.Apply(context.Background(), event(id.String(), 5))
	assert.ErrorIs(t, err, paymentdomain.ErrEventInFlight)
	assert.Zero(t, f.balance(t, id))

	lock.held = false
	status, err := f.reconciler.Apply(context.Background(), event(id.String(), 5))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusApplied, status)
	assert.Equal(t, 1, lock.released)

	lock.err = errors.New("redis down")
	ev := event(id.String(), 5)
	ev.ProviderPaymentID = "order-2"
	status, err = f.reconciler.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusApplied, status)
}

// A fresh device claims its free credit, spends it, then buys a pack whose
// webhook is delivered twice.
func TestEndToEndPurchase(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	ctx := context.Background()
	id := f.identity(t, "")

	_, err := f.ledger.Grant(ctx, id, 1, creditdomain.Source{Type: creditdomain.SourceFreeGrant})
	require.NoError(t, err)
	_, err = f.ledger.Spend(ctx, id)
	require.NoError(t, err)
	bal, err := f.ledger.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.Balance)
	assert.Equal(t, int64(1), bal.CompletedSpendCount)

	status, err := f.reconciler.Apply(ctx, event(id.String(), 15))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusApplied, status)

	status, err = f.reconciler.Apply(ctx, event(id.String(), 15))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusDuplicate, status)

	bal, err = f.ledger.Balance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(15), bal.Balance)
	assert.Equal(t, int64(1), bal.CompletedSpendCount)
	assert.Equal(t, int64(1), f.events(t))
}
