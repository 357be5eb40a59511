package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Opportunity evaluation result for a single trade.
type Opportunity struct {
	Trade         TradeRecord
	BuyCost       decimal.Decimal
	SellRevenue   decimal.Decimal
	NetProfit     decimal.Decimal
	SlippageRatio decimal.Decimal
	Actionable    bool
	// Reason why the trade was skipped, empty when actionable.
	Reason string
}

// String returns a human-readable string representation.
func (o Opportunity) String() string {
	return fmt.Sprintf("%s cost: %s revenue: %s profit: %s slippage: %s actionable: %t",
		o.Trade.CurrencySymbol, o.BuyCost, o.SellRevenue, o.NetProfit, o.SlippageRatio, o.Actionable)
}

// SubmissionJob request to transfer native asset to the counterparty.
type SubmissionJob struct {
	ID     string
	Role   Role
	Amount decimal.Decimal
	Units  *big.Int
	To     string
	// PriceContext price quoted for the leg, logged for traceability.
	PriceContext decimal.Decimal
	Symbol       string
}
