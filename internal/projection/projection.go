// Package projection computes balance forecasts and virtual future
// occurrences from recurring rules. Everything here is pure: inputs are
// in-memory snapshots already read from storage, and nothing is persisted.
package projection

import (
	"math"
	"time"

	"github.com/rhowell/potstash/internal/calendar"
	"github.com/rhowell/potstash/internal/models"
	"github.com/shopspring/decimal"
)

// DefaultMonthsAhead is the forecast horizon used by the API layer when the
// caller does not ask for a specific one.
const DefaultMonthsAhead = 12

// Project forecasts pot's balance monthsAhead months into the future.
func Project(pot models.Pot, rules []models.RecurringRule, monthsAhead int) models.SavingsProjectionForecast {
	return ProjectAt(pot, rules, monthsAhead, time.Now())
}

// ProjectAt is Project with an explicit evaluation time.
//
// Point zero is always the stored balance for the current month, marked as
// actual. Every later point applies the monthly growth multiplier to the
// carried-in balance first and adds that month's contributions second, so
// interest never accrues on money not yet deposited. Weekly contributions
// are counted per rule against the real calendar of each month, never
// approximated with a flat weeks-per-month factor.
func ProjectAt(pot models.Pot, rules []models.RecurringRule, monthsAhead int, now time.Time) models.SavingsProjectionForecast {
	if monthsAhead < 0 {
		monthsAhead = 0
	}
	today := calendar.Noon(now)

	var monthlyTotal, outstandingThisMonth decimal.Decimal
	var weeklyRules []models.RecurringRule
	for _, rule := range rules {
		if rule.PotID != pot.ID || !rule.Frequency.Valid() || rule.AnchorDate.IsZero() {
			continue
		}
		switch rule.Frequency {
		case models.Monthly:
			monthlyTotal = monthlyTotal.Add(rule.Amount)
			dueDay := calendar.ClampDayOfMonth(today.Year(), today.Month(), rule.AnchorDate.Day())
			if dueDay > today.Day() {
				// This month's payment has not landed yet; it is added as a
				// catch-up in the first projected month.
				outstandingThisMonth = outstandingThisMonth.Add(rule.Amount)
			}
		case models.Weekly:
			weeklyRules = append(weeklyRules, rule)
		}
	}

	growth := growthMultiplier(pot.InterestRatePct)
	monthStart := calendar.MonthStart(today)

	points := make([]models.ProjectionPoint, 0, monthsAhead+1)
	points = append(points, models.ProjectionPoint{
		Month:     monthStart,
		Amount:    pot.CurrentTotal,
		Projected: false,
	})

	running := pot.CurrentTotal
	for i := 1; i <= monthsAhead; i++ {
		month := monthStart.AddDate(0, i, 0)
		running = running.Mul(growth)
		if i == 1 {
			running = running.Add(outstandingThisMonth)
			// Weekly deposits still owed between tomorrow and the end of the
			// current month, plus the first full future month.
			running = running.Add(weeklyTotalBetween(weeklyRules, today.AddDate(0, 0, 1), calendar.MonthEnd(today)))
		}
		running = running.Add(monthlyTotal)
		running = running.Add(weeklyTotalBetween(weeklyRules, month, calendar.MonthEnd(month)))
		points = append(points, models.ProjectionPoint{
			Month:     month,
			Amount:    running.Round(2),
			Projected: true,
		})
	}

	return models.SavingsProjectionForecast{PotID: pot.ID, Points: points}
}

// growthMultiplier converts an annual percentage rate into the factor applied
// to the balance each month: (1 + rate/100)^(1/12). A nil or zero rate is a
// no-op multiplier.
func growthMultiplier(annualRatePct *decimal.Decimal) decimal.Decimal {
	if annualRatePct == nil || annualRatePct.IsZero() {
		return decimal.NewFromInt(1)
	}
	rate, _ := annualRatePct.Float64()
	return decimal.NewFromFloat(math.Pow(1+rate/100, 1.0/12))
}

func weeklyTotalBetween(rules []models.RecurringRule, start, end time.Time) decimal.Decimal {
	total := decimal.Decimal{}
	for _, rule := range rules {
		n := calendar.CountWeekdayOccurrences(start, end, rule.AnchorDate.UTC().Weekday())
		if n > 0 {
			total = total.Add(rule.Amount.Mul(decimal.NewFromInt(int64(n))))
		}
	}
	return total
}
