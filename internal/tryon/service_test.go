package tryon

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	creditdomain "github.com/smallbiznis/tryon/internal/credit/domain"
	"github.com/smallbiznis/tryon/internal/providers/synthesis"
	usagedomain "github.com/smallbiznis/tryon/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ledgerMock struct{ mock.Mock }

func (m *ledgerMock) call(name string, id uuid.UUID) (creditdomain.Balance, error) {
	args := m.MethodCalled(name, id)
	return args.Get(0).(creditdomain.Balance), args.Error(1)
}

func (m *ledgerMock) Spend(_ context.Context, id uuid.UUID) (creditdomain.Balance, error) {
	return m.call("spend", id)
}

func (m *ledgerMock) Refund(_ context.Context, id uuid.UUID) (creditdomain.Balance, error) {
	return m.call("refund", id)
}

func (m *ledgerMock) Commit(_ context.Context, id uuid.UUID) (creditdomain.Balance, error) {
	return m.call("commit", id)
}

func (m *ledgerMock) Balance(_ context.Context, id uuid.UUID) (creditdomain.Balance, error) {
	return m.call("balance", id)
}

func (m *ledgerMock) Grant(context.Context, uuid.UUID, int64, creditdomain.Source) (creditdomain.Balance, error) {
	panic("unexpected grant")
}

func (m *ledgerMock) GrantTx(context.Context, *gorm.DB, uuid.UUID, int64, creditdomain.Source) (creditdomain.Balance, error) {
	panic("unexpected grant")
}

func (m *ledgerMock) History(context.Context, uuid.UUID, int) ([]creditdomain.Transaction, error) {
	panic("unexpected history")
}

type usageMock struct{ mock.Mock }

func (m *usageMock) Record(_ context.Context, req usagedomain.RecordRequest) (*usagedomain.UsageRecord, error) {
	args := m.Called(req)
	return nil, args.Error(0)
}

func (m *usageMock) ListByIdentity(context.Context, uuid.UUID, int) ([]usagedomain.UsageRecord, error) {
	panic("unexpected list")
}

type synthMock struct{ mock.Mock }

func (m *synthMock) Synthesize(_ context.Context, person []byte, garmentURL string) (synthesis.Result, error) {
	args := m.Called(person, garmentURL)
	return args.Get(0).(synthesis.Result), args.Error(1)
}

type fixture struct {
	ledger *ledgerMock
	usage  *usageMock
	synth  *synthMock
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ledger: &ledgerMock{}, usage: &usageMock{}, synth: &synthMock{}}
	f.svc = NewService(Params{Log: zap.NewNop(), Ledger: f.ledger, Usage: f.usage, Synthesizer: f.synth})
	t.Cleanup(func() {
		f.ledger.AssertExpectations(t)
		f.usage.AssertExpectations(t)
		f.synth.AssertExpectations(t)
	})
	return f
}

var person = []byte("person")

const garment = "https://shop.example/shirt.png"

func TestRunCommitsOnSuccess(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	f.ledger.On("spend", id).Return(creditdomain.Balance{IdentityID: id, Balance: 2, Reserved: true}, nil).Once()
	f.synth.On("Synthesize", person, garment).Return(synthesis.Result{ImageURL: "https://cdn/out.png"}, nil).Once()
	f.ledger.On("commit", id).Return(creditdomain.Balance{IdentityID: id, Balance: 2, CompletedSpendCount: 1}, nil).Once()
	f.usage.On("Record", usagedomain.RecordRequest{
		IdentityID: id, ResourceRef: garment, Outcome: usagedomain.OutcomeSuccess, ResultRef: "https://cdn/out.png",
	}).Return(nil).Once()

	result, err := f.svc.Run(context.Background(), id, person, " "+garment+" ")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/out.png", result.ImageURL)
	assert.EqualValues(t, 1, result.Balance.CompletedSpendCount)
}

func TestRunRefundsOnFailure(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	synthErr := errors.Join(synthesis.ErrGarmentFetch, errors.New("status 404"))

	f.ledger.On("spend", id).Return(creditdomain.Balance{}, nil).Once()
	f.synth.On("Synthesize", person, garment).Return(synthesis.Result{}, synthErr).Once()
	f.ledger.On("refund", id).Return(creditdomain.Balance{Balance: 3}, nil).Once()
	f.usage.On("Record", usagedomain.RecordRequest{
		IdentityID: id, ResourceRef: garment, Outcome: usagedomain.OutcomeFailed, ErrorCode: "garment_fetch_failed",
	}).Return(nil).Once()

	_, err := f.svc.Run(context.Background(), id, person, garment)
	assert.ErrorIs(t, err, synthesis.ErrGarmentFetch)
}

func TestRunReturnsSynthesisErrorWhenRefundWindowElapsed(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	f.ledger.On("spend", id).Return(creditdomain.Balance{}, nil).Once()
	f.synth.On("Synthesize", person, garment).Return(synthesis.Result{}, synthesis.ErrSynthesisFailed).Once()
	f.ledger.On("refund", id).Return(creditdomain.Balance{}, creditdomain.ErrRefundWindowExpired).Once()
	f.usage.On("Record", mock.MatchedBy(func(req usagedomain.RecordRequest) bool {
		return req.Outcome == usagedomain.OutcomeFailed
	})).Return(errors.New("db down")).Once()

	_, err := f.svc.Run(context.Background(), id, person, garment)
	assert.ErrorIs(t, err, synthesis.ErrSynthesisFailed)
	assert.NotErrorIs(t, err, creditdomain.ErrRefundWindowExpired)
}

func TestRunStopsWhenSpendRejected(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	f.ledger.On("spend", id).Return(creditdomain.Balance{}, creditdomain.ErrInsufficientCredit).Once()

	_, err := f.svc.Run(context.Background(), id, person, garment)
	assert.ErrorIs(t, err, creditdomain.ErrInsufficientCredit)
	f.synth.AssertNotCalled(t, "Synthesize", mock.Anything, mock.Anything)
}

func TestRunValidatesInputBeforeSpending(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Run(context.Background(), uuid.New(), nil, garment)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.Run(context.Background(), uuid.New(), person, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFailureCode(t *testing.T) {
	assert.Equal(t, "image_too_large", failureCode(synthesis.ErrImageTooLarge))
	assert.Equal(t, "synthesis_timeout", failureCode(context.DeadlineExceeded))
	assert.Equal(t, "synthesis_failed", failureCode(errors.New("boom")))
}
