// Package ledger owns every user-driven mutation of pots and ledger
// transactions. Each write goes through a store operation that adjusts the
// pot's balance in the same atomic unit as the row change, with the signed
// delta computed here, which is what keeps the denormalized running total
// honest.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rhowell/potstash/internal/calendar"
	"github.com/rhowell/potstash/internal/interfaces"
	"github.com/rhowell/potstash/internal/models"
	"github.com/rhowell/potstash/internal/projection"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("amount must be non-zero")
	ErrInvalidRule   = errors.New("invalid recurring rule")
)

type Service struct {
	store interfaces.Store
	log   zerolog.Logger
}

func NewService(store interfaces.Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

// CreatePot registers a new pot. An initial balance becomes the pot's seed
// transaction so the running total stays equal to the sum of ledger rows.
func (s *Service) CreatePot(ctx context.Context, pot models.Pot) (models.Pot, error) {
	if pot.ID == "" {
		pot.ID = uuid.New().String()
	}
	seed := pot.CurrentTotal
	pot.CurrentTotal = decimal.Decimal{}
	if err := s.store.CreatePot(ctx, pot); err != nil {
		return models.Pot{}, err
	}
	if !seed.IsZero() {
		tx := models.LedgerTransaction{
			PotID:       pot.ID,
			UserID:      pot.UserID,
			Amount:      seed,
			Date:        time.Now(),
			Description: "Opening balance",
		}
		created, err := s.AddTransaction(ctx, tx)
		if err != nil {
			return models.Pot{}, fmt.Errorf("seed opening balance: %w", err)
		}
		pot.CurrentTotal = created.Amount
	}
	s.log.Info().Str("pot_id", pot.ID).Str("user_id", pot.UserID).Msg("pot created")
	return pot, nil
}

// AddTransaction records a manual deposit or withdrawal and applies its
// amount to the pot's balance.
func (s *Service) AddTransaction(ctx context.Context, tx models.LedgerTransaction) (models.LedgerTransaction, error) {
	if tx.Amount.IsZero() {
		return models.LedgerTransaction{}, ErrInvalidAmount
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.Date = calendar.Noon(tx.Date)
	tx.RecurringOrigin = false

	if err := s.store.ApplyTransaction(ctx, tx); err != nil {
		return models.LedgerTransaction{}, err
	}
	return tx, nil
}

// EditTransaction updates amount, date or description of an existing row and
// applies the amount difference to the pot's balance. A zero date keeps the
// stored one, so an amount-only edit does not move the transaction.
func (s *Service) EditTransaction(ctx context.Context, id string, amount decimal.Decimal, date time.Time, description string) (models.LedgerTransaction, error) {
	if amount.IsZero() {
		return models.LedgerTransaction{}, ErrInvalidAmount
	}
	existing, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return models.LedgerTransaction{}, err
	}

	updated := existing
	updated.Amount = amount
	if !date.IsZero() {
		updated.Date = calendar.Noon(date)
	}
	updated.Description = description
	if err := s.store.ReviseTransaction(ctx, updated, amount.Sub(existing.Amount)); err != nil {
		return models.LedgerTransaction{}, err
	}
	return updated, nil
}

// DeleteTransaction removes a row and backs its amount out of the balance.
func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	return s.store.RemoveTransaction(ctx, id)
}

// AddRecurringRule validates and stores a contribution rule.
func (s *Service) AddRecurringRule(ctx context.Context, rule models.RecurringRule) (models.RecurringRule, error) {
	if !rule.Frequency.Valid() {
		return models.RecurringRule{}, fmt.Errorf("%w: unsupported frequency %q", ErrInvalidRule, rule.Frequency)
	}
	if rule.AnchorDate.IsZero() {
		return models.RecurringRule{}, fmt.Errorf("%w: anchor date is required", ErrInvalidRule)
	}
	if !rule.Amount.IsPositive() {
		return models.RecurringRule{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRule)
	}
	if _, err := s.store.GetPot(ctx, rule.PotID); err != nil {
		return models.RecurringRule{}, err
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.AnchorDate = calendar.Noon(rule.AnchorDate)
	if err := s.store.SaveRule(ctx, rule); err != nil {
		return models.RecurringRule{}, err
	}
	s.log.Info().
		Str("rule_id", rule.ID).
		Str("pot_id", rule.PotID).
		Str("frequency", string(rule.Frequency)).
		Msg("recurring rule created")
	return rule, nil
}

// DeleteRecurringRule removes a rule; future occurrences disappear while
// already-materialized rows stay on the ledger.
func (s *Service) DeleteRecurringRule(ctx context.Context, id string) error {
	return s.store.DeleteRule(ctx, id)
}

// ProjectPot reads the pot and its rules and computes the balance forecast.
func (s *Service) ProjectPot(ctx context.Context, potID string, monthsAhead int) (models.SavingsProjectionForecast, error) {
	pot, err := s.store.GetPot(ctx, potID)
	if err != nil {
		return models.SavingsProjectionForecast{}, err
	}
	rules, err := s.store.ListRules(ctx, potID)
	if err != nil {
		return models.SavingsProjectionForecast{}, err
	}
	return projection.Project(pot, rules, monthsAhead), nil
}

// ForecastUser expands every rule of the user's pots into virtual
// occurrences for calendar display.
func (s *Service) ForecastUser(ctx context.Context, userID string) ([]models.VirtualOccurrence, error) {
	rules, err := s.store.ListRules(ctx, "")
	if err != nil {
		return nil, err
	}
	ledger, err := s.store.ListTransactions(ctx, "")
	if err != nil {
		return nil, err
	}
	if userID != "" {
		filtered := rules[:0]
		for _, rule := range rules {
			if rule.UserID == userID {
				filtered = append(filtered, rule)
			}
		}
		rules = filtered
	}
	return projection.ForecastOccurrences(rules, ledger), nil
}
