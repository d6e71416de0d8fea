// Package materialize turns due recurring rules into permanent ledger rows,
// at most once per rule per calendar day.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rhowell/potstash/internal/calendar"
	"github.com/rhowell/potstash/internal/interfaces"
	"github.com/rhowell/potstash/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ProcessedRule describes one successful materialization in a cycle.
type ProcessedRule struct {
	RuleID        string          `json:"rule_id"`
	PotID         string          `json:"pot_id"`
	PotName       string          `json:"pot_name"`
	UserID        string          `json:"user_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	NewTotal      decimal.Decimal `json:"new_total"`
}

// RuleError is a per-rule failure that did not stop the cycle.
type RuleError struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
}

// CycleResult is what one materialization cycle did.
type CycleResult struct {
	Date      time.Time       `json:"date"`
	Processed []ProcessedRule `json:"processed"`
	Errors    []RuleError     `json:"errors"`
}

// Runner evaluates every recurring rule against "today" and materializes the
// due, not-yet-processed ones. A mutex serializes cycles: the scheduler tick
// and any manual trigger can never interleave their marker-check-then-insert
// sequences.
type Runner struct {
	store    interfaces.Store
	notifier interfaces.Notifier
	log      zerolog.Logger
	now      func() time.Time

	mu sync.Mutex
}

func NewRunner(store interfaces.Store, notifier interfaces.Notifier, log zerolog.Logger) *Runner {
	return &Runner{store: store, notifier: notifier, log: log, now: time.Now}
}

// NewRunnerAt is NewRunner with an injected clock.
func NewRunnerAt(store interfaces.Store, notifier interfaces.Notifier, log zerolog.Logger, now func() time.Time) *Runner {
	return &Runner{store: store, notifier: notifier, log: log, now: now}
}

// RunCycle performs one full materialization pass. A failure loading the
// rule set aborts the cycle; a failure on a single rule is recorded and the
// loop moves on. Repeating a cycle on the same day is a no-op thanks to the
// processed markers.
func (r *Runner) RunCycle(ctx context.Context) (CycleResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	today := calendar.Noon(r.now())
	result := CycleResult{Date: today}

	rules, err := r.store.ListRules(ctx, "")
	if err != nil {
		return result, fmt.Errorf("load recurring rules: %w", err)
	}

	for _, rule := range rules {
		processed, ok, err := r.processRule(ctx, rule, today)
		if err != nil {
			r.log.Error().Err(err).Str("rule_id", rule.ID).Msg("rule materialization failed")
			result.Errors = append(result.Errors, RuleError{RuleID: rule.ID, Reason: err.Error()})
			continue
		}
		if ok {
			result.Processed = append(result.Processed, processed)
		}
	}

	r.notifyUsers(ctx, result)
	return result, nil
}

func (r *Runner) processRule(ctx context.Context, rule models.RecurringRule, today time.Time) (ProcessedRule, bool, error) {
	if !rule.Frequency.Valid() || rule.AnchorDate.IsZero() {
		return ProcessedRule{}, false, fmt.Errorf("malformed rule: frequency %q, anchor %s", rule.Frequency, rule.AnchorDate)
	}
	if !dueToday(rule, today) {
		return ProcessedRule{}, false, nil
	}
	if _, exists, err := r.store.GetMarker(ctx, rule.ID, today); err != nil {
		return ProcessedRule{}, false, fmt.Errorf("marker lookup: %w", err)
	} else if exists {
		return ProcessedRule{}, false, nil
	}

	pot, err := r.store.GetPot(ctx, rule.PotID)
	if err != nil {
		return ProcessedRule{}, false, fmt.Errorf("load pot %s: %w", rule.PotID, err)
	}

	tx := models.LedgerTransaction{
		ID:              uuid.New().String(),
		PotID:           rule.PotID,
		UserID:          rule.UserID,
		Amount:          rule.Amount,
		Date:            today,
		Description:     autoDescription(rule),
		RecurringOrigin: true,
	}
	marker := models.ProcessedMarker{
		RuleID:         rule.ID,
		OccurrenceDate: today,
		TransactionID:  tx.ID,
	}

	if err := r.store.MaterializeOccurrence(ctx, tx, marker); err != nil {
		if errors.Is(err, interfaces.ErrAlreadyMaterialized) {
			// Lost a race with another writer; the occurrence exists, so
			// this is a skip rather than a failure.
			r.log.Debug().Str("rule_id", rule.ID).Msg("occurrence already materialized")
			return ProcessedRule{}, false, nil
		}
		return ProcessedRule{}, false, fmt.Errorf("materialize: %w", err)
	}

	r.log.Info().
		Str("rule_id", rule.ID).
		Str("pot_id", rule.PotID).
		Str("transaction_id", tx.ID).
		Str("amount", rule.Amount.String()).
		Msg("materialized recurring contribution")

	return ProcessedRule{
		RuleID:        rule.ID,
		PotID:         pot.ID,
		PotName:       pot.Name,
		UserID:        rule.UserID,
		TransactionID: tx.ID,
		Amount:        rule.Amount,
		NewTotal:      pot.CurrentTotal.Add(rule.Amount),
	}, true, nil
}

// dueToday reports whether the rule fires on the given day. Weekly rules
// match on the anchor's weekday. Monthly rules match on the anchor's
// day-of-month, clamped to the end of shorter months so a rule anchored on
// the 31st still fires in February.
func dueToday(rule models.RecurringRule, today time.Time) bool {
	anchor := calendar.Noon(rule.AnchorDate)
	switch rule.Frequency {
	case models.Weekly:
		return today.Weekday() == anchor.Weekday()
	case models.Monthly:
		return today.Day() == calendar.ClampDayOfMonth(today.Year(), today.Month(), anchor.Day())
	default:
		return false
	}
}

func autoDescription(rule models.RecurringRule) string {
	if rule.Description == "" {
		return "Recurring contribution (auto)"
	}
	return rule.Description + " (auto)"
}

// notifyUsers sends one best-effort summary per affected user. Failures are
// logged and never retried or rolled back.
func (r *Runner) notifyUsers(ctx context.Context, result CycleResult) {
	if r.notifier == nil || len(result.Processed) == 0 {
		return
	}

	byUser := make(map[string][]ProcessedRule)
	for _, processed := range result.Processed {
		byUser[processed.UserID] = append(byUser[processed.UserID], processed)
	}

	userIDs := make([]string, 0, len(byUser))
	for userID := range byUser {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)

	for _, userID := range userIDs {
		entries := byUser[userID]
		if err := r.notifier.Notify(ctx, userID, "Savings updated", summaryMessage(entries)); err != nil {
			r.log.Warn().Err(err).Str("user_id", userID).Msg("notification delivery failed")
		}
	}
}

func summaryMessage(entries []ProcessedRule) string {
	total := decimal.Decimal{}
	var lines []string
	for _, entry := range entries {
		total = total.Add(entry.Amount)
		name := entry.PotName
		if name == "" {
			name = entry.PotID
		}
		lines = append(lines, fmt.Sprintf("%s: +%s (now %s)", name, entry.Amount, entry.NewTotal))
	}
	return fmt.Sprintf("%d recurring contribution(s) totalling %s applied. %s",
		len(entries), total, strings.Join(lines, "; "))
}
