// Command whalewatch follows large DEX trades on a token, evaluates each as a
// buy-then-sell opportunity and stops itself when the wallet balance either
// doubles or falls to the configured floor.
//
// Usage:
//
//	whalewatch --config config.yaml
//	whalewatch --setup (interactive wizard, then start)
//
// Required environment variables (a .env file is read when present):
//
//	WALLET_PRIVATE_KEY, FEED_TOKEN
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/whalewatch/config"
	"github.com/vadiminshakov/whalewatch/internal"
	"github.com/vadiminshakov/whalewatch/internal/setup"
	"github.com/vadiminshakov/whalewatch/internal/web"
	"github.com/vadiminshakov/whalewatch/pkg/logger"
)

func main() {
	flags, err := config.ParseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}

	if flags.Setup {
		if err := setup.RunTUI(flags.ConfigPath); err != nil {
			log.Fatal(err)
		}
	}

	conf, err := config.Load(flags.ConfigPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := conf.Validate(); err != nil {
		log.Fatal(err)
	}

	l, err := logger.New(logger.Config{
		Level:      conf.LogLevel,
		File:       conf.LogFile,
		MaxSizeMB:  conf.LogMaxSizeMB,
		MaxBackups: conf.LogMaxBackups,
		MaxAgeDays: conf.LogMaxAgeDays,
		Compress:   true,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := internal.NewServices(ctx, conf, l)
	if err != nil {
		l.Fatal("failed to build services", zap.Error(err))
	}
	defer svc.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := svc.Bot.Run(gctx)
		switch {
		case err == nil:
			// status and the balance stream stay up until a signal arrives
			l.Info("watcher stopped by balance guard, serving status until interrupted")
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		default:
			return err
		}
	})

	g.Go(func() error {
		srv := web.NewServer(conf.HTTPAddr, svc.Ledger.Account(), svc.Snapshots, svc.Feed, func() string {
			return svc.Bot.State().String()
		}, l.Named("web"))
		return srv.Start(gctx)
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, internal.ErrSubscriptionClosed) {
			l.Warn("trade feed closed by server, exiting for restart")
		} else {
			l.Error("watcher exited with error", zap.Error(err))
		}
		svc.Close()
		_ = l.Sync()
		os.Exit(1)
	}
}
