package domain

import (
	"github.com/shopspring/decimal"
)

// Decision circuit breaker verdict.
type Decision int

const (
	DecisionContinue Decision = iota
	DecisionStop
)

// String returns the string representation of the decision.
func (d Decision) String() string {
	switch d {
	case DecisionContinue:
		return "CONTINUE"
	case DecisionStop:
		return "STOP"
	default:
		return "unknown"
	}
}

// StopReason explains why a STOP was issued.
type StopReason string

const (
	StopReasonNone    StopReason = ""
	StopReasonDoubled StopReason = "balance_doubled"
	StopReasonFloor   StopReason = "balance_floor"
)

// GuardState baseline captured once before the subscription starts.
type GuardState struct {
	// Initial balance in display units.
	Initial decimal.Decimal
	// Floor capital preservation threshold in display units.
	Floor decimal.Decimal
}

// NewGuardState creates a new GuardState.
func NewGuardState(initial, floor decimal.Decimal) *GuardState {
	return &GuardState{Initial: initial, Floor: floor}
}

var two = decimal.NewFromInt(2)

// Decide returns STOP when current >= 2*initial or current <= floor.
func Decide(state *GuardState, current decimal.Decimal) (Decision, StopReason) {
	if current.GreaterThanOrEqual(state.Initial.Mul(two)) {
		return DecisionStop, StopReasonDoubled
	}
	if current.LessThanOrEqual(state.Floor) {
		return DecisionStop, StopReasonFloor
	}
	return DecisionContinue, StopReasonNone
}
