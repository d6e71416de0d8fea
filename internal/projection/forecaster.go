package projection

import (
	"sort"
	"time"

	"github.com/rhowell/potstash/internal/calendar"
	"github.com/rhowell/potstash/internal/models"
)

const (
	monthlyHorizon = 6
	weeklyHorizon  = 26
)

// ForecastOccurrences expands recurring rules into virtual future
// transactions for calendar display.
func ForecastOccurrences(rules []models.RecurringRule, ledger []models.LedgerTransaction) []models.VirtualOccurrence {
	return ForecastOccurrencesAt(rules, ledger, time.Now())
}

// ForecastOccurrencesAt is ForecastOccurrences with an explicit evaluation
// time.
//
// Monthly rules yield up to 6 occurrences by calendar-month stepping from
// the anchor, with the day clamped to short months. Occurrences before the
// start of the current month are dropped, so an occurrence earlier this
// month still surfaces. A monthly occurrence is suppressed when a
// materialized ledger row already exists for the same pot, month and day.
//
// Weekly rules yield up to 26 occurrences by whole-week stepping with the
// same lower bound. Weekly occurrences are never suppressed against the
// ledger: until materialized they are always virtual.
func ForecastOccurrencesAt(rules []models.RecurringRule, ledger []models.LedgerTransaction, now time.Time) []models.VirtualOccurrence {
	lowerBound := calendar.MonthStart(now)

	materialized := make(map[string]struct{})
	for _, tx := range ledger {
		if !tx.RecurringOrigin {
			continue
		}
		materialized[occurrenceKey(tx.PotID, tx.Date)] = struct{}{}
	}

	var out []models.VirtualOccurrence
	for _, rule := range rules {
		if !rule.Frequency.Valid() || rule.AnchorDate.IsZero() {
			continue
		}
		switch rule.Frequency {
		case models.Monthly:
			out = append(out, monthlyOccurrences(rule, lowerBound, materialized)...)
		case models.Weekly:
			out = append(out, weeklyOccurrences(rule, lowerBound)...)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

func monthlyOccurrences(rule models.RecurringRule, lowerBound time.Time, materialized map[string]struct{}) []models.VirtualOccurrence {
	anchor := calendar.Noon(rule.AnchorDate)

	// Jump straight to the first candidate month at or after the lower
	// bound instead of walking month by month from a possibly old anchor.
	offset := (lowerBound.Year()-anchor.Year())*12 + int(lowerBound.Month()) - int(anchor.Month())
	if offset < 0 {
		offset = 0
	}

	var out []models.VirtualOccurrence
	for k := offset; len(out) < monthlyHorizon; k++ {
		month := time.Date(anchor.Year(), anchor.Month()+time.Month(k), 1, 12, 0, 0, 0, time.UTC)
		day := calendar.ClampDayOfMonth(month.Year(), month.Month(), anchor.Day())
		occ := time.Date(month.Year(), month.Month(), day, 12, 0, 0, 0, time.UTC)
		if occ.Before(lowerBound) {
			continue
		}
		if _, exists := materialized[occurrenceKey(rule.PotID, occ)]; exists {
			continue
		}
		out = append(out, virtualOccurrence(rule, occ, len(out)))
	}
	return out
}

func weeklyOccurrences(rule models.RecurringRule, lowerBound time.Time) []models.VirtualOccurrence {
	anchor := calendar.Noon(rule.AnchorDate)

	n := 0
	if anchor.Before(lowerBound) {
		days := int(lowerBound.Sub(anchor).Hours() / 24)
		n = (days + 6) / 7
	}

	out := make([]models.VirtualOccurrence, 0, weeklyHorizon)
	for len(out) < weeklyHorizon {
		out = append(out, virtualOccurrence(rule, calendar.AdvanceWeeks(anchor, n), len(out)))
		n++
	}
	return out
}

func virtualOccurrence(rule models.RecurringRule, date time.Time, seq int) models.VirtualOccurrence {
	return models.VirtualOccurrence{
		RuleID:      rule.ID,
		PotID:       rule.PotID,
		UserID:      rule.UserID,
		Amount:      rule.Amount,
		Date:        date,
		Description: rule.Description,
		Frequency:   rule.Frequency,
		Sequence:    seq,
	}
}

func occurrenceKey(potID string, date time.Time) string {
	return potID + "/" + calendar.Noon(date).Format("2006-01-02")
}
