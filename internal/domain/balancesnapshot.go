package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSnapshot point-in-time account balance.
// Uses string fields in JSON to avoid float precision issues in web/UI layers.
type BalanceSnapshot struct {
	Timestamp time.Time       `json:"ts"`
	Account   string          `json:"account"`
	Units     string          `json:"units"`
	Balance   decimal.Decimal `json:"balance"`
	Decision  string          `json:"decision,omitempty"`
}

// NewBalanceSnapshot converts a native-unit reading into a snapshot.
func NewBalanceSnapshot(timestamp time.Time, account string, units *big.Int, decimals int32) BalanceSnapshot {
	return BalanceSnapshot{
		Timestamp: timestamp,
		Account:   account,
		Units:     units.String(),
		Balance:   FromUnits(units, decimals),
	}
}

// BalanceSnapshotRecord bundles a snapshot with its WAL index.
type BalanceSnapshotRecord struct {
	Index    uint64
	Snapshot BalanceSnapshot
}
