package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency says how often a recurring rule fires.
type Frequency string

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// Valid reports whether f is a supported frequency.
func (f Frequency) Valid() bool {
	return f == Weekly || f == Monthly
}

// RecurringRule is a template for a contribution that repeats weekly or
// monthly. AnchorDate fixes the day-of-week (weekly) or day-of-month
// (monthly) and is the origin for all occurrence computation. Editing a rule
// restarts the anchor; deleting it removes future occurrences but keeps
// already-materialized ledger rows.
type RecurringRule struct {
	ID          string          `json:"id"`
	PotID       string          `json:"pot_id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	AnchorDate  time.Time       `json:"anchor_date"`
	Frequency   Frequency       `json:"frequency"`
	Description string          `json:"description,omitempty"`
}
