// Package guard implements the balance circuit breaker.
package guard

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/whalewatch/internal/domain"
	"github.com/vadiminshakov/whalewatch/internal/metrics"
)

type balanceReader interface {
	Account() string
	BalanceUnits(ctx context.Context) (*big.Int, error)
}

type snapshotStore interface {
	Save(snapshot domain.BalanceSnapshot) (uint64, error)
}

type snapshotPublisher interface {
	Publish(rec domain.BalanceSnapshotRecord)
}

// Guard compares the live balance with the baseline captured at startup.
type Guard struct {
	ledger    balanceReader
	decimals  int32
	floor     decimal.Decimal
	store     snapshotStore
	publisher snapshotPublisher
	now       func() time.Time
	l         *zap.Logger
}

// Option configures optional guard collaborators.
type Option func(*Guard)

// WithSnapshotStore persists every reading.
func WithSnapshotStore(s snapshotStore) Option {
	return func(g *Guard) {
		g.store = s
	}
}

// WithPublisher broadcasts every reading to live subscribers, tagged with
// its store index when the store accepted it.
func WithPublisher(p snapshotPublisher) Option {
	return func(g *Guard) {
		g.publisher = p
	}
}

func New(ledger balanceReader, decimals int32, floor decimal.Decimal, l *zap.Logger, opts ...Option) *Guard {
	g := &Guard{
		ledger:   ledger,
		decimals: decimals,
		floor:    floor,
		now:      time.Now,
		l:        l,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Initialize reads the balance once and returns the baseline for all later checks.
func (g *Guard) Initialize(ctx context.Context) (*domain.GuardState, error) {
	snapshot, err := g.read(ctx)
	if err != nil {
		return nil, err
	}

	state := domain.NewGuardState(snapshot.Balance, g.floor)
	g.l.Info("initial balance",
		zap.String("account", snapshot.Account),
		zap.Stringer("balance", snapshot.Balance),
		zap.Stringer("stop_above", state.Initial.Mul(decimal.NewFromInt(2))),
		zap.Stringer("stop_below", state.Floor))

	g.record(snapshot)

	return state, nil
}

// Check reads the current balance and decides whether trading may continue.
// Ledger errors are returned unchanged.
func (g *Guard) Check(ctx context.Context, state *domain.GuardState) (domain.Decision, error) {
	if state == nil {
		return domain.DecisionStop, errors.New("guard is not initialized")
	}

	snapshot, err := g.read(ctx)
	if err != nil {
		return domain.DecisionStop, err
	}

	decision, reason := domain.Decide(state, snapshot.Balance)
	snapshot.Decision = decision.String()
	metrics.GuardDecisions.WithLabelValues(decision.String()).Inc()

	if decision == domain.DecisionStop {
		g.l.Warn("balance guard tripped",
			zap.String("reason", string(reason)),
			zap.Stringer("balance", snapshot.Balance),
			zap.Stringer("initial", state.Initial),
			zap.Stringer("floor", state.Floor))
	} else {
		g.l.Debug("balance guard passed", zap.Stringer("balance", snapshot.Balance))
	}

	g.record(snapshot)

	return decision, nil
}

func (g *Guard) read(ctx context.Context) (domain.BalanceSnapshot, error) {
	units, err := g.ledger.BalanceUnits(ctx)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}

	snapshot := domain.NewBalanceSnapshot(g.now().UTC(), g.ledger.Account(), units, g.decimals)
	metrics.Balance.Set(snapshot.Balance.InexactFloat64())

	return snapshot, nil
}

func (g *Guard) record(snapshot domain.BalanceSnapshot) {
	rec := domain.BalanceSnapshotRecord{Snapshot: snapshot}
	if g.store != nil {
		index, err := g.store.Save(snapshot)
		if err != nil {
			g.l.Warn("failed to persist balance snapshot", zap.Error(err))
		}
		rec.Index = index
	}
	if g.publisher != nil {
		g.publisher.Publish(rec)
	}
}
