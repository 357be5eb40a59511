package trader

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/whalewatch/internal/domain"
	"github.com/vadiminshakov/whalewatch/internal/metrics"
	"github.com/vadiminshakov/whalewatch/internal/storage/legs"
	"github.com/vadiminshakov/whalewatch/pkg/limiter"
	"github.com/vadiminshakov/whalewatch/pkg/retrier"
)

const (
	statusConfirmed = "confirmed"
	statusFailed    = "failed"
	statusDryRun    = "dry_run"
)

type ledger interface {
	BuildTransfer(ctx context.Context, to string, units *big.Int) (*types.Transaction, error)
	SendAndConfirm(ctx context.Context, tx *types.Transaction) (string, error)
}

type journal interface {
	Prepare(job domain.SubmissionJob) (*legs.Record, error)
	MarkDone(rec *legs.Record, signature string) error
	MarkFailed(rec *legs.Record, err error) error
}

// SubmitterConfig static parameters of the submission pipeline.
type SubmitterConfig struct {
	// Counterparty receives every transfer leg.
	Counterparty string
	// Decimals of the native asset.
	Decimals int32
	// DryRun logs legs without touching the ledger.
	DryRun bool
}

// Submitter sends transfer legs through the limiter and the retrier.
type Submitter struct {
	ledger  ledger
	limiter *limiter.Limiter
	retrier *retrier.Retrier
	journal journal
	cfg     SubmitterConfig
	l       *zap.Logger
}

// NewSubmitter creates a submitter. journal may be nil.
func NewSubmitter(ledger ledger, lim *limiter.Limiter, r *retrier.Retrier, journal journal, cfg SubmitterConfig, l *zap.Logger) *Submitter {
	return &Submitter{
		ledger:  ledger,
		limiter: lim,
		retrier: r.Named("submit transfer"),
		journal: journal,
		cfg:     cfg,
		l:       l,
	}
}

// SubmitTransfer sends amount of the native asset to the counterparty and waits for confirmation.
// The transaction is signed once, so retries resend the same transaction.
func (s *Submitter) SubmitTransfer(ctx context.Context, amount decimal.Decimal, role domain.Role, price decimal.Decimal, symbol string) (string, error) {
	units := domain.ToUnits(amount, s.cfg.Decimals)
	if units.Sign() <= 0 {
		metrics.Submissions.WithLabelValues(role.String(), statusFailed).Inc()
		return "", errors.Errorf("%s amount %s rounds to %s units", role, amount, units)
	}

	job := domain.SubmissionJob{
		ID:           uuid.NewString(),
		Role:         role,
		Amount:       amount,
		Units:        units,
		To:           s.cfg.Counterparty,
		PriceContext: price,
		Symbol:       symbol,
	}

	log := s.l.With(
		zap.String("leg", job.ID),
		zap.String("role", role.String()),
		zap.Stringer("amount", amount),
		zap.String("units", units.String()),
		zap.String("symbol", symbol),
		zap.Stringer("price", price),
	)

	rec := s.prepare(job, log)

	if s.cfg.DryRun {
		sig := "dry-run-" + job.ID
		log.Info("dry run, transfer not sent", zap.String("to", job.To))
		s.markDone(rec, sig, log)
		metrics.Submissions.WithLabelValues(role.String(), statusDryRun).Inc()
		return sig, nil
	}

	start := time.Now()
	log.Info("submitting transfer", zap.String("to", job.To), zap.Int("in_flight", s.limiter.InFlight()))

	attempts := 0
	sig, err := limiter.ScheduleWithData(s.limiter, ctx, func(ctx context.Context) (string, error) {
		tx, err := retrier.DoWithData(s.retrier.Named("build transfer"), ctx, func(ctx context.Context) (*types.Transaction, error) {
			return s.ledger.BuildTransfer(ctx, job.To, job.Units)
		})
		if err != nil {
			return "", errors.Wrap(err, "build transfer")
		}

		log.Debug("transfer signed", zap.String("tx", tx.Hash().Hex()), zap.Uint64("nonce", tx.Nonce()))

		return retrier.DoWithData(s.retrier, ctx, func(ctx context.Context) (string, error) {
			attempts++
			return s.ledger.SendAndConfirm(ctx, tx)
		})
	})

	metrics.SubmissionLatency.Observe(time.Since(start).Seconds())
	if attempts > 1 {
		metrics.SubmissionRetries.Add(float64(attempts - 1))
	}

	if err != nil {
		log.Error("transfer failed", zap.Int("attempts", attempts), zap.Int("max_attempts", s.retrier.MaxAttempts()), zap.Error(err))
		s.markFailed(rec, err, log)
		metrics.Submissions.WithLabelValues(role.String(), statusFailed).Inc()
		return "", err
	}

	log.Info("transfer confirmed", zap.String("signature", sig), zap.Int("attempts", attempts))
	s.markDone(rec, sig, log)
	metrics.Submissions.WithLabelValues(role.String(), statusConfirmed).Inc()

	return sig, nil
}

func (s *Submitter) prepare(job domain.SubmissionJob, log *zap.Logger) *legs.Record {
	if s.journal == nil {
		return nil
	}
	rec, err := s.journal.Prepare(job)
	if err != nil {
		log.Warn("failed to journal leg", zap.Error(err))
		return nil
	}
	return rec
}

func (s *Submitter) markDone(rec *legs.Record, sig string, log *zap.Logger) {
	if s.journal == nil || rec == nil {
		return
	}
	if err := s.journal.MarkDone(rec, sig); err != nil {
		log.Warn("failed to journal confirmed leg", zap.Error(err))
	}
}

func (s *Submitter) markFailed(rec *legs.Record, cause error, log *zap.Logger) {
	if s.journal == nil || rec == nil {
		return
	}
	if err := s.journal.MarkFailed(rec, cause); err != nil {
		log.Warn("failed to journal failed leg", zap.Error(err))
	}
}
