package materialize

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rhowell/potstash/internal/calendar"
	"github.com/rhowell/potstash/internal/models"
	"github.com/rhowell/potstash/internal/storage/memory"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

type sentNotification struct {
	UserID  string
	Title   string
	Message string
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []sentNotification
	fail  bool
	count int
}

func (f *fakeNotifier) Notify(ctx context.Context, userID, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	if f.fail {
		return context.DeadlineExceeded
	}
	f.sent = append(f.sent, sentNotification{UserID: userID, Title: title, Message: message})
	return nil
}

type fixture struct {
	store    *memory.Store
	notifier *fakeNotifier
	runner   *Runner
}

func newFixture(t *testing.T, today time.Time) *fixture {
	t.Helper()
	store := memory.NewStore()
	notifier := &fakeNotifier{}
	runner := NewRunnerAt(store, notifier, zerolog.Nop(), func() time.Time { return today })
	return &fixture{store: store, notifier: notifier, runner: runner}
}

func (f *fixture) addPot(t *testing.T, id, userID string, total int64) {
	t.Helper()
	err := f.store.CreatePot(context.Background(), models.Pot{
		ID: id, UserID: userID, Name: "Pot " + id, CurrentTotal: decimal.NewFromInt(total),
	})
	if err != nil {
		t.Fatalf("create pot: %v", err)
	}
}

func (f *fixture) addRule(t *testing.T, id, potID, userID string, amount int64, anchor time.Time, freq models.Frequency) {
	t.Helper()
	err := f.store.SaveRule(context.Background(), models.RecurringRule{
		ID: id, PotID: potID, UserID: userID,
		Amount: decimal.NewFromInt(amount), AnchorDate: anchor, Frequency: freq,
	})
	if err != nil {
		t.Fatalf("save rule: %v", err)
	}
}

func TestRunCycleMaterializesDueRules(t *testing.T) {
	t.Parallel()

	// 2026-01-15 is a Thursday.
	today := date(2026, time.January, 15)
	f := newFixture(t, today)
	f.addPot(t, "pot_1", "user_1", 500)
	f.addRule(t, "rule_monthly", "pot_1", "user_1", 100, date(2025, time.November, 15), models.Monthly)
	f.addRule(t, "rule_weekly", "pot_1", "user_1", 25, date(2026, time.January, 1), models.Weekly)
	f.addRule(t, "rule_not_due", "pot_1", "user_1", 999, date(2025, time.November, 20), models.Monthly)

	result, err := f.runner.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(result.Processed) != 2 {
		t.Fatalf("expected 2 rules processed, got %d", len(result.Processed))
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %+v", result.Errors)
	}

	pot, _ := f.store.GetPot(context.Background(), "pot_1")
	if !pot.CurrentTotal.Equal(decimal.NewFromInt(625)) {
		t.Fatalf("expected balance 625, got %s", pot.CurrentTotal)
	}

	txs, _ := f.store.ListTransactions(context.Background(), "pot_1")
	if len(txs) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(txs))
	}
	for _, tx := range txs {
		if !tx.RecurringOrigin {
			t.Fatalf("expected recurring-origin flag on materialized row")
		}
		if !strings.HasSuffix(tx.Description, "(auto)") {
			t.Fatalf("expected (auto) annotation, got %q", tx.Description)
		}
		if !calendar.SameDay(tx.Date, today) {
			t.Fatalf("expected row dated today, got %s", tx.Date)
		}
	}
}

func TestRunCycleIsIdempotentPerDay(t *testing.T) {
	t.Parallel()

	today := date(2026, time.January, 15)
	f := newFixture(t, today)
	f.addPot(t, "pot_1", "user_1", 500)
	f.addRule(t, "rule_monthly", "pot_1", "user_1", 100, date(2025, time.November, 15), models.Monthly)

	first, err := f.runner.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if len(first.Processed) != 1 {
		t.Fatalf("expected 1 processed in first cycle, got %d", len(first.Processed))
	}

	second, err := f.runner.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if len(second.Processed) != 0 {
		t.Fatalf("expected second cycle to process nothing, got %d", len(second.Processed))
	}

	pot, _ := f.store.GetPot(context.Background(), "pot_1")
	if !pot.CurrentTotal.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("expected balance 600 after both cycles, got %s", pot.CurrentTotal)
	}
	txs, _ := f.store.ListTransactions(context.Background(), "pot_1")
	if len(txs) != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", len(txs))
	}
}

func TestRunCycleWeeklyDueOnlyOnAnchorWeekday(t *testing.T) {
	t.Parallel()

	anchor := date(2026, time.January, 1) // Thursday
	f := newFixture(t, date(2026, time.January, 16)) // Friday
	f.addPot(t, "pot_1", "user_1", 0)
	f.addRule(t, "rule_weekly", "pot_1", "user_1", 25, anchor, models.Weekly)

	result, err := f.runner.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(result.Processed) != 0 {
		t.Fatalf("expected weekly rule not due on Friday, got %d processed", len(result.Processed))
	}
}

func TestRunCycleMonthlyClampsToShortMonths(t *testing.T) {
	t.Parallel()

	f := newFixture(t, date(2026, time.February, 28))
	f.addPot(t, "pot_1", "user_1", 0)
	f.addRule(t, "rule_31st", "pot_1", "user_1", 40, date(2026, time.January, 31), models.Monthly)

	result, err := f.runner.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(result.Processed) != 1 {
		t.Fatalf("expected rule anchored on the 31st due on Feb 28, got %d", len(result.Processed))
	}
}

func TestRunCycleIsolatesPerRuleFailures(t *testing.T) {
	t.Parallel()

	today := date(2026, time.January, 15)
	f := newFixture(t, today)
	f.addPot(t, "pot_1", "user_1", 0)
	f.addRule(t, "rule_orphan", "pot_gone", "user_1", 100, date(2025, time.November, 15), models.Monthly)
	f.addRule(t, "rule_bad", "pot_1", "user_1", 100, date(2025, time.November, 15), "fortnightly")
	f.addRule(t, "rule_ok", "pot_1", "user_1", 60, date(2025, time.November, 15), models.Monthly)

	result, err := f.runner.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle must not fail on rule errors: %v", err)
	}
	if len(result.Processed) != 1 || result.Processed[0].RuleID != "rule_ok" {
		t.Fatalf("expected only rule_ok processed, got %+v", result.Processed)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected 2 rule errors, got %+v", result.Errors)
	}

	pot, _ := f.store.GetPot(context.Background(), "pot_1")
	if !pot.CurrentTotal.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected healthy rule applied, balance %s", pot.CurrentTotal)
	}
}

func TestRunCycleNotifiesOncePerUser(t *testing.T) {
	t.Parallel()

	today := date(2026, time.January, 15)
	f := newFixture(t, today)
	f.addPot(t, "pot_1", "user_1", 100)
	f.addPot(t, "pot_2", "user_1", 200)
	f.addPot(t, "pot_3", "user_2", 300)
	f.addRule(t, "rule_1", "pot_1", "user_1", 10, date(2025, time.November, 15), models.Monthly)
	f.addRule(t, "rule_2", "pot_2", "user_1", 20, date(2025, time.November, 15), models.Monthly)
	f.addRule(t, "rule_3", "pot_3", "user_2", 30, date(2025, time.November, 15), models.Monthly)

	if _, err := f.runner.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	if len(f.notifier.sent) != 2 {
		t.Fatalf("expected one notification per user, got %d", len(f.notifier.sent))
	}
	if f.notifier.sent[0].UserID != "user_1" || f.notifier.sent[1].UserID != "user_2" {
		t.Fatalf("expected notifications for user_1 then user_2, got %+v", f.notifier.sent)
	}
	if !strings.Contains(f.notifier.sent[0].Message, "2 recurring contribution(s)") {
		t.Fatalf("expected grouped summary for user_1, got %q", f.notifier.sent[0].Message)
	}
	if !strings.Contains(f.notifier.sent[0].Message, "now 110") {
		t.Fatalf("expected new total in summary, got %q", f.notifier.sent[0].Message)
	}
}

func TestRunCycleSwallowsNotifierFailures(t *testing.T) {
	t.Parallel()

	today := date(2026, time.January, 15)
	f := newFixture(t, today)
	f.notifier.fail = true
	f.addPot(t, "pot_1", "user_1", 0)
	f.addRule(t, "rule_1", "pot_1", "user_1", 10, date(2025, time.November, 15), models.Monthly)

	result, err := f.runner.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("notifier failure must not fail the cycle: %v", err)
	}
	if len(result.Processed) != 1 {
		t.Fatalf("expected materialization to stand, got %+v", result)
	}
	if f.notifier.count != 1 {
		t.Fatalf("expected exactly one delivery attempt, got %d", f.notifier.count)
	}
}

func TestRunCycleWithNoRulesDoesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, date(2026, time.January, 15))
	result, err := f.runner.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(result.Processed) != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
	if f.notifier.count != 0 {
		t.Fatalf("expected no notification for an empty cycle")
	}
}
