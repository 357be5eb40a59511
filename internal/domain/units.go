package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToUnits converts a display amount into the ledger's smallest unit,
// rounding half to even.
func ToUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).RoundBank(0).BigInt()
}

// FromUnits converts native units into display units.
func FromUnits(units *big.Int, decimals int32) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -decimals)
}
