package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerTransaction is a realized monetary event on a pot, created either by
// direct user action or by the materializer turning a due recurring rule
// into a permanent row.
type LedgerTransaction struct {
	ID          string          `json:"id"`
	PotID       string          `json:"pot_id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description,omitempty"`
	// RecurringOrigin marks rows the materializer created from a rule.
	RecurringOrigin bool `json:"recurring_origin"`
}
