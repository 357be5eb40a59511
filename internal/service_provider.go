package internal

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/whalewatch/config"
	"github.com/vadiminshakov/whalewatch/internal/clients"
	"github.com/vadiminshakov/whalewatch/internal/events"
	"github.com/vadiminshakov/whalewatch/internal/metrics"
	"github.com/vadiminshakov/whalewatch/internal/services/guard"
	"github.com/vadiminshakov/whalewatch/internal/services/opportunity"
	"github.com/vadiminshakov/whalewatch/internal/services/trader"
	"github.com/vadiminshakov/whalewatch/internal/storage/balancesnapshots"
	"github.com/vadiminshakov/whalewatch/internal/storage/legs"
	"github.com/vadiminshakov/whalewatch/pkg/limiter"
	"github.com/vadiminshakov/whalewatch/pkg/retrier"
)

// graphqlFeed adapts the websocket client to Feed.
type graphqlFeed struct {
	client *clients.GraphQLWSFeed
}

func (f graphqlFeed) Subscribe(ctx context.Context, query string) (Subscription, error) {
	sub, err := f.client.Subscribe(ctx, query)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Services is the wired runtime graph. Close releases everything it opened.
type Services struct {
	Ledger      *clients.EVMLedger
	Snapshots   *balancesnapshots.WALStore
	Journal     *legs.WALStore
	Feed        *events.BalanceFeed
	Bot         *TradingBot
}

// NewServices is the single point of truth for building the watcher from its configuration.
func NewServices(ctx context.Context, conf config.Config, logger *zap.Logger) (*Services, error) {
	s := &Services{}

	var err error
	s.Ledger, err = clients.NewEVMLedger(ctx, conf.RPCURL, conf.PrivateKey, conf.ChainID, conf.ConfirmTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ledger client")
	}

	s.Snapshots, err = balancesnapshots.NewWALStore(filepath.Join(conf.WALDir, "balance"))
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "failed to open balance snapshot store")
	}

	s.Journal, err = legs.NewWALStore(filepath.Join(conf.WALDir, "legs"))
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "failed to open leg journal")
	}
	if pending := s.Journal.Pending(); len(pending) > 0 {
		logger.Warn("legs left pending by a previous run, check them on chain", zap.Int("count", len(pending)))
		for _, p := range pending {
			logger.Warn("pending leg", zap.String("leg", p.ID), zap.String("role", p.Role.String()), zap.String("units", p.Units))
		}
	}

	s.Feed = events.NewBalanceFeed(conf.BroadcastBuffer)

	lim, err := limiter.New(conf.MaxConcurrentSubmissions, conf.MinSubmissionSpacing, limiter.WithGauge(metrics.SubmissionsInFlight))
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "failed to create submission limiter")
	}

	r := retrier.New(
		retrier.WithMaxAttempts(conf.MaxRetryAttempts),
		retrier.WithInitialInterval(conf.InitialRetryDelay),
		retrier.WithLogger(logger),
	)

	balanceGuard := guard.New(s.Ledger, conf.Decimals, conf.BalanceFloorThreshold, logger.Named("guard"),
		guard.WithSnapshotStore(s.Snapshots),
		guard.WithPublisher(s.Feed),
	)

	submitter := trader.NewSubmitter(s.Ledger, lim, r, s.Journal, trader.SubmitterConfig{
		Counterparty: conf.Counterparty,
		Decimals:     conf.Decimals,
		DryRun:       conf.DryRun,
	}, logger.Named("submitter"))

	evaluator := opportunity.NewEvaluator(submitter, opportunity.EvaluatorConfig{
		SlippageTolerance: conf.SlippageTolerance,
		FixedFee:          conf.FixedFeePerTransaction,
	}, logger.Named("evaluator"))

	feed := graphqlFeed{client: clients.NewGraphQLWSFeed(conf.FeedURL, conf.FeedToken, logger.Named("feed"))}

	s.Bot = NewTradingBot(conf, feed, balanceGuard, evaluator, r, logger.Named("bot"))

	logger.Info("services ready",
		zap.String("account", s.Ledger.Account()),
		zap.String("counterparty", conf.Counterparty),
		zap.Bool("dry_run", conf.DryRun))

	return s, nil
}

func (s *Services) Close() {
	if s.Journal != nil {
		s.Journal.Close()
	}
	if s.Snapshots != nil {
		s.Snapshots.Close()
	}
	if s.Ledger != nil {
		s.Ledger.Close()
	}
}
