package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rhowell/potstash/internal/interfaces"
	"github.com/rhowell/potstash/internal/models"
	"github.com/rhowell/potstash/internal/storage/memory"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewService(store, zerolog.Nop()), store
}

// assertBalanceInvariant checks that the pot's running total equals the sum
// of its live ledger rows.
func assertBalanceInvariant(t *testing.T, store *memory.Store, potID string) {
	t.Helper()
	pot, err := store.GetPot(context.Background(), potID)
	if err != nil {
		t.Fatalf("get pot: %v", err)
	}
	txs, err := store.ListTransactions(context.Background(), potID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	sum := decimal.Decimal{}
	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
	}
	if !pot.CurrentTotal.Equal(sum) {
		t.Fatalf("balance invariant broken: total %s, ledger sum %s", pot.CurrentTotal, sum)
	}
}

func TestCreatePotSeedsOpeningBalance(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	pot, err := svc.CreatePot(context.Background(), models.Pot{
		UserID:       "user_1",
		Name:         "House deposit",
		CurrentTotal: decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("create pot: %v", err)
	}
	if pot.ID == "" {
		t.Fatalf("expected generated pot id")
	}

	txs, _ := store.ListTransactions(context.Background(), pot.ID)
	if len(txs) != 1 {
		t.Fatalf("expected one seed transaction, got %d", len(txs))
	}
	if !txs[0].Amount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected seed of 500, got %s", txs[0].Amount)
	}
	assertBalanceInvariant(t, store, pot.ID)
}

func TestBalanceInvariantAcrossMutations(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	pot, err := svc.CreatePot(context.Background(), models.Pot{UserID: "user_1", Name: "Car"})
	if err != nil {
		t.Fatalf("create pot: %v", err)
	}

	first, err := svc.AddTransaction(context.Background(), models.LedgerTransaction{
		PotID:  pot.ID,
		UserID: "user_1",
		Amount: decimal.NewFromInt(200),
		Date:   date(2026, time.January, 5),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	assertBalanceInvariant(t, store, pot.ID)

	second, err := svc.AddTransaction(context.Background(), models.LedgerTransaction{
		PotID:  pot.ID,
		UserID: "user_1",
		Amount: decimal.NewFromInt(-50),
		Date:   date(2026, time.January, 9),
	})
	if err != nil {
		t.Fatalf("add withdrawal: %v", err)
	}
	assertBalanceInvariant(t, store, pot.ID)

	if _, err := svc.EditTransaction(context.Background(), first.ID, decimal.NewFromInt(250), first.Date, "topped up"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	assertBalanceInvariant(t, store, pot.ID)

	if err := svc.DeleteTransaction(context.Background(), second.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	assertBalanceInvariant(t, store, pot.ID)

	final, _ := store.GetPot(context.Background(), pot.ID)
	if !final.CurrentTotal.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("expected final balance 250, got %s", final.CurrentTotal)
	}
}

func TestEditTransactionKeepsDateWhenZero(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	pot, err := svc.CreatePot(context.Background(), models.Pot{UserID: "user_1", Name: "Boiler"})
	if err != nil {
		t.Fatalf("create pot: %v", err)
	}
	tx, err := svc.AddTransaction(context.Background(), models.LedgerTransaction{
		PotID:  pot.ID,
		UserID: "user_1",
		Amount: decimal.NewFromInt(120),
		Date:   date(2026, time.January, 10),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	updated, err := svc.EditTransaction(context.Background(), tx.ID, decimal.NewFromInt(150), time.Time{}, "topped up")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !updated.Date.Equal(date(2026, time.January, 10)) {
		t.Fatalf("amount-only edit must keep the stored date, got %s", updated.Date)
	}
	assertBalanceInvariant(t, store, pot.ID)
}

func TestAddTransactionRejectsZeroAmountAndMissingPot(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	_, err := svc.AddTransaction(context.Background(), models.LedgerTransaction{PotID: "pot_x", Amount: decimal.Decimal{}})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	_, err = svc.AddTransaction(context.Background(), models.LedgerTransaction{PotID: "pot_x", Amount: decimal.NewFromInt(10)})
	if !errors.Is(err, interfaces.ErrPotNotFound) {
		t.Fatalf("expected ErrPotNotFound, got %v", err)
	}
}

func TestAddRecurringRuleValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	pot, err := svc.CreatePot(context.Background(), models.Pot{UserID: "user_1", Name: "Trips"})
	if err != nil {
		t.Fatalf("create pot: %v", err)
	}

	base := models.RecurringRule{
		PotID:      pot.ID,
		UserID:     "user_1",
		Amount:     decimal.NewFromInt(75),
		AnchorDate: date(2026, time.January, 15),
		Frequency:  models.Monthly,
	}

	if _, err := svc.AddRecurringRule(context.Background(), base); err != nil {
		t.Fatalf("expected valid rule accepted: %v", err)
	}

	bad := base
	bad.Frequency = "quarterly"
	if _, err := svc.AddRecurringRule(context.Background(), bad); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for frequency, got %v", err)
	}

	bad = base
	bad.AnchorDate = time.Time{}
	if _, err := svc.AddRecurringRule(context.Background(), bad); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for anchor, got %v", err)
	}

	bad = base
	bad.Amount = decimal.NewFromInt(-5)
	if _, err := svc.AddRecurringRule(context.Background(), bad); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for amount, got %v", err)
	}
}

func TestProjectPotReadsStoreState(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	pot, err := svc.CreatePot(context.Background(), models.Pot{
		UserID:       "user_1",
		Name:         "Emergency",
		CurrentTotal: decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("create pot: %v", err)
	}
	if _, err := svc.AddRecurringRule(context.Background(), models.RecurringRule{
		PotID:      pot.ID,
		UserID:     "user_1",
		Amount:     decimal.NewFromInt(100),
		AnchorDate: date(2026, time.January, 15),
		Frequency:  models.Monthly,
	}); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	forecast, err := svc.ProjectPot(context.Background(), pot.ID, 2)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if len(forecast.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(forecast.Points))
	}
	if !forecast.Points[0].Amount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected current balance 500, got %s", forecast.Points[0].Amount)
	}

	if _, err := svc.ProjectPot(context.Background(), "pot_missing", 2); !errors.Is(err, interfaces.ErrPotNotFound) {
		t.Fatalf("expected ErrPotNotFound, got %v", err)
	}
}

func TestForecastUserFiltersByUser(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	mine, err := svc.CreatePot(context.Background(), models.Pot{UserID: "user_1", Name: "Mine"})
	if err != nil {
		t.Fatalf("create pot: %v", err)
	}
	theirs, err := svc.CreatePot(context.Background(), models.Pot{UserID: "user_2", Name: "Theirs"})
	if err != nil {
		t.Fatalf("create pot: %v", err)
	}

	for _, rule := range []models.RecurringRule{
		{PotID: mine.ID, UserID: "user_1", Amount: decimal.NewFromInt(10), AnchorDate: date(2026, time.January, 15), Frequency: models.Monthly},
		{PotID: theirs.ID, UserID: "user_2", Amount: decimal.NewFromInt(20), AnchorDate: date(2026, time.January, 10), Frequency: models.Monthly},
	} {
		if _, err := svc.AddRecurringRule(context.Background(), rule); err != nil {
			t.Fatalf("add rule: %v", err)
		}
	}

	occurrences, err := svc.ForecastUser(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if len(occurrences) == 0 {
		t.Fatalf("expected occurrences for user_1")
	}
	for _, occ := range occurrences {
		if occ.UserID != "user_1" {
			t.Fatalf("expected only user_1 occurrences, got %s", occ.UserID)
		}
	}
}
