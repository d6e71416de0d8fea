package models

import (
	"github.com/shopspring/decimal"
)

// Pot is a named savings account belonging to one user.
//
// CurrentTotal is a denormalized running balance: it must always equal the
// sum of all live ledger transactions for the pot. Every ledger write
// adjusts it by a signed delta in the same store operation rather than
// recomputing from scratch.
type Pot struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	Name         string           `json:"name"`
	CurrentTotal decimal.Decimal  `json:"current_total"`
	TargetAmount *decimal.Decimal `json:"target_amount,omitempty"`
	// InterestRatePct is an annual percentage rate, e.g. 4.5 for 4.5% APR.
	// Nil means the pot does not accrue growth in projections.
	InterestRatePct *decimal.Decimal `json:"interest_rate_pct,omitempty"`
	Color           string           `json:"color,omitempty"`
}
