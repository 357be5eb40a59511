// Package opportunity decides whether a large trade is worth a buy/sell pair
// and drives the two legs through the submitter.
package opportunity

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/whalewatch/internal/domain"
	"github.com/vadiminshakov/whalewatch/internal/metrics"
)

const (
	reasonZeroCost     = "zero buy cost"
	reasonMalformed    = "malformed trade"
	reasonNoProfit     = "net profit not positive"
	reasonLowSlippage  = "slippage below tolerance"
	outcomeActionable  = "actionable"
	outcomeSkipped     = "skipped"
	outcomeExecuted    = "executed"
	outcomeBuyFailed   = "buy_failed"
	outcomeSellFailed  = "sell_failed"
	legsPerOpportunity = 2
)

type submitter interface {
	SubmitTransfer(ctx context.Context, amount decimal.Decimal, role domain.Role, price decimal.Decimal, symbol string) (string, error)
}

// EvaluatorConfig profitability parameters.
type EvaluatorConfig struct {
	// SlippageTolerance minimum sellRevenue/buyCost - 1.
	SlippageTolerance decimal.Decimal
	// FixedFee charged per transfer leg.
	FixedFee decimal.Decimal
}

type Evaluator struct {
	submitter submitter
	cfg       EvaluatorConfig
	l         *zap.Logger
}

func NewEvaluator(submitter submitter, cfg EvaluatorConfig, l *zap.Logger) *Evaluator {
	return &Evaluator{
		submitter: submitter,
		cfg:       cfg,
		l:         l,
	}
}

// Evaluate computes the profitability of mirroring trade with a buy at Price
// and a sell at PriceInUSD.
func (e *Evaluator) Evaluate(trade domain.TradeRecord) domain.Opportunity {
	opp := domain.Opportunity{Trade: trade}

	if err := trade.Validate(); err != nil {
		opp.Reason = reasonMalformed
		return opp
	}

	opp.BuyCost = trade.Amount.Mul(trade.Price)
	opp.SellRevenue = trade.Amount.Mul(trade.PriceInUSD)
	opp.NetProfit = opp.SellRevenue.Sub(opp.BuyCost).Sub(e.cfg.FixedFee.Mul(decimal.NewFromInt(legsPerOpportunity)))

	if opp.BuyCost.IsZero() {
		opp.Reason = reasonZeroCost
		return opp
	}

	opp.SlippageRatio = opp.SellRevenue.Div(opp.BuyCost).Sub(decimal.NewFromInt(1))

	switch {
	case !opp.NetProfit.IsPositive():
		opp.Reason = reasonNoProfit
	case opp.SlippageRatio.LessThan(e.cfg.SlippageTolerance):
		opp.Reason = reasonLowSlippage
	default:
		opp.Actionable = true
	}

	return opp
}

// ProcessBatch evaluates trades in order and executes the buy and sell legs
// for every actionable one. A failed leg stops the batch.
func (e *Evaluator) ProcessBatch(ctx context.Context, trades []domain.TradeRecord) error {
	for _, trade := range trades {
		if err := ctx.Err(); err != nil {
			return err
		}

		opp := e.Evaluate(trade)
		if !opp.Actionable {
			metrics.Opportunities.WithLabelValues(outcomeSkipped).Inc()
			e.l.Debug("trade skipped", zap.String("reason", opp.Reason), zap.Stringer("opportunity", opp))
			continue
		}

		metrics.Opportunities.WithLabelValues(outcomeActionable).Inc()
		e.l.Info("profitable opportunity",
			zap.String("symbol", trade.CurrencySymbol),
			zap.Stringer("amount", trade.Amount),
			zap.Stringer("net_profit", opp.NetProfit),
			zap.Stringer("slippage", opp.SlippageRatio))

		if err := e.execute(ctx, trade); err != nil {
			return err
		}
	}

	return nil
}

func (e *Evaluator) execute(ctx context.Context, trade domain.TradeRecord) error {
	buySig, err := e.submitter.SubmitTransfer(ctx, trade.Amount, domain.RoleBuy, trade.Price, trade.CurrencySymbol)
	if err != nil {
		metrics.Opportunities.WithLabelValues(outcomeBuyFailed).Inc()
		e.l.Error("buy leg failed, pair abandoned", zap.String("symbol", trade.CurrencySymbol), zap.Error(err))
		return errors.Wrapf(err, "buy %s %s", trade.Amount, trade.CurrencySymbol)
	}

	sellSig, err := e.submitter.SubmitTransfer(ctx, trade.Amount, domain.RoleSell, trade.PriceInUSD, trade.CurrencySymbol)
	if err != nil {
		metrics.Opportunities.WithLabelValues(outcomeSellFailed).Inc()
		e.l.Error("sell leg failed, buy left unhedged",
			zap.String("symbol", trade.CurrencySymbol), zap.String("buy_signature", buySig), zap.Error(err))
		return errors.Wrapf(err, "sell %s %s", trade.Amount, trade.CurrencySymbol)
	}

	metrics.Opportunities.WithLabelValues(outcomeExecuted).Inc()
	e.l.Info("pair executed",
		zap.String("symbol", trade.CurrencySymbol),
		zap.String("buy_signature", buySig),
		zap.String("sell_signature", sellSig))

	return nil
}
