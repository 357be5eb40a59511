package internal

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/whalewatch/config"
	"github.com/vadiminshakov/whalewatch/internal/clients"
	"github.com/vadiminshakov/whalewatch/internal/domain"
	"github.com/vadiminshakov/whalewatch/internal/metrics"
	"github.com/vadiminshakov/whalewatch/pkg/retrier"
)

// ErrSubscriptionClosed is returned by Run when the transport ends the feed.
var ErrSubscriptionClosed = errors.New("subscription closed")

// State lifecycle stage of the bot.
type State int32

const (
	StateInitializing State = iota
	StateSubscribed
	StateEvaluating
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateEvaluating:
		return "EVALUATING"
	case StateStopped:
		return "STOPPED"
	default:
		return "unknown"
	}
}

// Subscription live stream of feed messages.
type Subscription interface {
	Messages() <-chan domain.FeedMessage
	Close() error
}

// Feed opens trade subscriptions.
type Feed interface {
	Subscribe(ctx context.Context, query string) (Subscription, error)
}

type balanceGuard interface {
	Initialize(ctx context.Context) (*domain.GuardState, error)
	Check(ctx context.Context, state *domain.GuardState) (domain.Decision, error)
}

type batchProcessor interface {
	ProcessBatch(ctx context.Context, trades []domain.TradeRecord) error
}

// TradingBot consumes the trade feed, checks the balance guard before every
// batch and hands large trades to the evaluator.
type TradingBot struct {
	Config    config.Config
	feed      Feed
	guard     balanceGuard
	evaluator batchProcessor
	retrier   *retrier.Retrier
	state     atomic.Int32
	l         *zap.Logger
}

// NewTradingBot creates a new trading bot instance
func NewTradingBot(conf config.Config, feed Feed, guard balanceGuard, evaluator batchProcessor, r *retrier.Retrier, l *zap.Logger) *TradingBot {
	return &TradingBot{
		Config:    conf,
		feed:      feed,
		guard:     guard,
		evaluator: evaluator,
		retrier:   r,
		l:         l,
	}
}

// State returns the current lifecycle stage.
func (b *TradingBot) State() State {
	return State(b.state.Load())
}

// Run captures the balance baseline, subscribes and processes messages one at a time.
// It returns nil after a guard STOP, ctx.Err() on cancellation and
// ErrSubscriptionClosed when the feed ends.
func (b *TradingBot) Run(ctx context.Context) error {
	b.setState(StateInitializing)

	guardState, err := retrier.DoWithData(b.retrier.Named("initial balance"), ctx, b.guard.Initialize)
	if err != nil {
		b.setState(StateStopped)
		return errors.Wrap(err, "failed to initialize balance guard")
	}

	sub, err := b.feed.Subscribe(ctx, b.query())
	if err != nil {
		b.setState(StateStopped)
		return errors.Wrap(err, "failed to subscribe to trade feed")
	}
	defer sub.Close()

	b.setState(StateSubscribed)

	for {
		select {
		case <-ctx.Done():
			b.l.Info("context done, closing subscription")
			b.stop(sub)
			return ctx.Err()
		case msg, ok := <-sub.Messages():
			if !ok {
				b.l.Info("subscription complete")
				b.stop(sub)
				return ErrSubscriptionClosed
			}
			if b.handle(ctx, guardState, msg) {
				b.stop(sub)
				return nil
			}
		}
	}
}

// handle processes one message and reports whether the guard ordered a stop.
func (b *TradingBot) handle(ctx context.Context, guardState *domain.GuardState, msg domain.FeedMessage) bool {
	if msg.Err != nil {
		metrics.FeedMessages.WithLabelValues("error").Inc()
		b.l.Error("subscription error", zap.Error(msg.Err))
		return false
	}

	b.setState(StateEvaluating)
	defer func() {
		if b.State() == StateEvaluating {
			b.setState(StateSubscribed)
		}
	}()

	decision, err := retrier.DoWithData(b.retrier.Named("balance check"), ctx, func(ctx context.Context) (domain.Decision, error) {
		return b.guard.Check(ctx, guardState)
	})
	if err != nil {
		metrics.FeedMessages.WithLabelValues("skipped").Inc()
		b.l.Error("balance check failed, skipping message", zap.Int("trades", len(msg.Trades)), zap.Error(err))
		return false
	}

	if decision == domain.DecisionStop {
		b.l.Warn("balance guard ordered stop")
		return true
	}

	metrics.FeedMessages.WithLabelValues("batch").Inc()

	large := domain.FilterLarge(msg.Trades, b.Config.LargeTransactionThresholdUSD)
	if len(large) == 0 {
		b.l.Debug("no large trades in batch", zap.Int("trades", len(msg.Trades)))
		return false
	}

	metrics.LargeTrades.Add(float64(len(large)))
	b.l.Info("processing large trades", zap.Int("large", len(large)), zap.Int("trades", len(msg.Trades)))

	if err := b.evaluator.ProcessBatch(ctx, large); err != nil {
		b.l.Error("failed to process batch", zap.Error(err))
	}

	return false
}

func (b *TradingBot) stop(sub Subscription) {
	if err := sub.Close(); err != nil {
		b.l.Debug("close subscription", zap.Error(err))
	}
	b.setState(StateStopped)
}

func (b *TradingBot) setState(s State) {
	prev := State(b.state.Swap(int32(s)))
	if prev != s {
		b.l.Info("state transition", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

func (b *TradingBot) query() string {
	if b.Config.Query != "" {
		return b.Config.Query
	}
	return clients.TradesQuery(b.Config.Network, b.Config.Token)
}
