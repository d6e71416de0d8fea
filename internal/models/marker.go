package models

import "time"

// ProcessedMarker records that a recurring rule was materialized for one
// calendar day. It exists solely to make materialization idempotent: written
// exactly once per (rule, day), never updated, deleted only when its rule is
// deleted.
type ProcessedMarker struct {
	RuleID string `json:"rule_id"`
	// OccurrenceDate has day precision; stores normalize it to noon UTC.
	OccurrenceDate time.Time `json:"occurrence_date"`
	TransactionID  string    `json:"transaction_id"`
}
