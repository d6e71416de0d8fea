package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ProjectionPoint is one month in a pot's balance forecast. Points are
// recomputed on every request and never persisted.
type ProjectionPoint struct {
	// Month is the first day of the month, normalized to noon UTC.
	Month  time.Time       `json:"month"`
	Amount decimal.Decimal `json:"amount"`
	// Projected is false only for the current month, whose amount is the
	// stored balance rather than an estimate.
	Projected bool `json:"projected"`
}

// SavingsProjectionForecast is the full projection for one pot.
type SavingsProjectionForecast struct {
	PotID  string            `json:"pot_id"`
	Points []ProjectionPoint `json:"points"`
}

// VirtualOccurrence is a future instance of a recurring rule that has not
// been materialized. It is a distinct type from LedgerTransaction on purpose:
// virtual instances must never be editable or deletable, and keeping them
// out of the transaction type makes that unrepresentable downstream.
type VirtualOccurrence struct {
	RuleID      string          `json:"rule_id"`
	PotID       string          `json:"pot_id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description,omitempty"`
	Frequency   Frequency       `json:"frequency"`
	// Sequence is the occurrence index within the rule's forecast window.
	Sequence int `json:"sequence"`
}

// DisplayID returns a stable synthetic key for UI lists. It is not a
// persisted identifier.
func (v VirtualOccurrence) DisplayID() string {
	return fmt.Sprintf("projected-%s-%s-%d", v.Frequency, v.RuleID, v.Sequence)
}
