// Package tryon runs one metered try-on: reserve a credit, synthesize outside
// the ledger lock, then commit or refund and record the attempt.
package tryon

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	creditdomain "github.com/smallbiznis/tryon/internal/credit/domain"
	"github.com/smallbiznis/tryon/internal/observability/logger"
	"github.com/smallbiznis/tryon/internal/observability/tracing"
	"github.com/smallbiznis/tryon/internal/providers/synthesis"
	usagedomain "github.com/smallbiznis/tryon/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidInput = errors.New("invalid_tryon_input")

type Synthesizer interface {
	Synthesize(ctx context.Context, personImage []byte, garmentURL string) (synthesis.Result, error)
}

// Result is a finished try-on and the balance after the commit.
type Result struct {
	ImageURL string
	Balance  creditdomain.Balance
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Ledger      creditdomain.Service
	Usage       usagedomain.Service
	Synthesizer Synthesizer
}

type Service struct {
	log    *zap.Logger
	ledger creditdomain.Service
	usage  usagedomain.Service
	synth  Synthesizer
}

func NewService(p Params) *Service {
	return &Service{
		log:    p.Log.Named("tryon.service"),
		ledger: p.Ledger,
		usage:  p.Usage,
		synth:  p.Synthesizer,
	}
}

func (s *Service) Run(ctx context.Context, identityID uuid.UUID, personImage []byte, garmentURL string) (result Result, err error) {
	ctx, span := tracing.Start(ctx, "tryon.run")
	defer func() {
		tracing.End(span, err,
			ErrInvalidInput,
			creditdomain.ErrInsufficientCredit,
			creditdomain.ErrCooldown,
			creditdomain.ErrAlreadyPending,
		)
	}()

	garmentURL = strings.TrimSpace(garmentURL)
	if len(personImage) == 0 || garmentURL == "" {
		return Result{}, ErrInvalidInput
	}

	if _, err := s.ledger.Spend(ctx, identityID); err != nil {
		return Result{}, err
	}

	// The reservation must be settled even if the client goes away mid-call.
	settleCtx := context.WithoutCancel(ctx)
	log := logger.WithContext(ctx, s.log)

	out, synthErr := s.synth.Synthesize(ctx, personImage, garmentURL)
	if synthErr != nil {
		if _, refundErr := s.ledger.Refund(settleCtx, identityID); refundErr != nil {
			if errors.Is(refundErr, creditdomain.ErrRefundWindowExpired) {
				log.Warn("refund window elapsed during synthesis; credit forfeited")
			} else {
				log.Error("refund after failed synthesis", zap.Error(refundErr))
			}
		}
		s.record(settleCtx, identityID, garmentURL, usagedomain.OutcomeFailed, "", failureCode(synthErr))
		return Result{}, synthErr
	}

	balance, err := s.ledger.Commit(settleCtx, identityID)
	if err != nil {
		log.Error("commit after successful synthesis", zap.Error(err))
		return Result{}, err
	}
	s.record(settleCtx, identityID, garmentURL, usagedomain.OutcomeSuccess, out.ImageURL, "")
	return Result{ImageURL: out.ImageURL, Balance: balance}, nil
}

// record never fails the try-on; the ledger is the source of truth.
func (s *Service) record(ctx context.Context, identityID uuid.UUID, garmentURL string, outcome usagedomain.Outcome, resultRef, code string) {
	_, err := s.usage.Record(ctx, usagedomain.RecordRequest{
		IdentityID:  identityID,
		ResourceRef: garmentURL,
		Outcome:     outcome,
		ResultRef:   resultRef,
		ErrorCode:   code,
	})
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("usage record failed", zap.String("outcome", string(outcome)), zap.Error(err))
	}
}

func failureCode(err error) string {
	for _, known := range []error{
		synthesis.ErrInvalidImage,
		synthesis.ErrImageTooLarge,
		synthesis.ErrInvalidGarmentURL,
		synthesis.ErrGarmentFetch,
		synthesis.ErrNotConfigured,
		synthesis.ErrSynthesisFailed,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "synthesis_timeout"
	}
	return "synthesis_failed"
}
