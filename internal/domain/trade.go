// Package domain defines core data structures used throughout the trade watcher.
package domain

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// TradeRecord single DEX trade delivered by the feed.
type TradeRecord struct {
	// Time block time of the trade.
	Time time.Time
	// Amount quantity of the base asset.
	Amount decimal.Decimal
	// Price quote-asset price of the trade.
	Price decimal.Decimal
	// CurrencySymbol symbol of the traded currency.
	CurrencySymbol string
	// PriceInUSD price expressed in USD.
	PriceInUSD decimal.Decimal
}

// Validate reports whether the record can be evaluated.
func (t TradeRecord) Validate() error {
	if t.Amount.IsNegative() {
		return errors.Errorf("negative amount %s", t.Amount)
	}
	if t.Price.IsNegative() {
		return errors.Errorf("negative price %s", t.Price)
	}
	if t.PriceInUSD.IsNegative() {
		return errors.Errorf("negative usd price %s", t.PriceInUSD)
	}
	return nil
}

// String returns a human-readable string representation.
func (t TradeRecord) String() string {
	return fmt.Sprintf("%s amount: %s price: %s usd: %s", t.CurrencySymbol, t.Amount, t.Price, t.PriceInUSD)
}

// FeedMessage one delivery from the trade feed: a batch or a subscription error.
type FeedMessage struct {
	Trades []TradeRecord
	Err    error
}

// FilterLarge returns trades whose USD price is at least threshold, preserving order.
func FilterLarge(trades []TradeRecord, threshold decimal.Decimal) []TradeRecord {
	var large []TradeRecord
	for _, t := range trades {
		if t.PriceInUSD.GreaterThanOrEqual(threshold) {
			large = append(large, t)
		}
	}
	return large
}
