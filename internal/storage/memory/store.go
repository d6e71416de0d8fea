// Package memory is an in-memory implementation of interfaces.Store, used by
// tests and for running the server without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rhowell/potstash/internal/calendar"
	"github.com/rhowell/potstash/internal/interfaces"
	"github.com/rhowell/potstash/internal/models"
	"github.com/shopspring/decimal"
)

// Store keeps all state behind a single mutex. Operations that pair a ledger
// row write with a balance adjustment run under one lock hold, which gives
// them the same atomicity the Postgres store gets from a transaction.
type Store struct {
	mu           sync.Mutex
	pots         map[string]models.Pot
	transactions map[string]models.LedgerTransaction
	rules        map[string]models.RecurringRule
	markers      map[string]models.ProcessedMarker
}

func NewStore() *Store {
	return &Store{
		pots:         make(map[string]models.Pot),
		transactions: make(map[string]models.LedgerTransaction),
		rules:        make(map[string]models.RecurringRule),
		markers:      make(map[string]models.ProcessedMarker),
	}
}

func (s *Store) CreatePot(ctx context.Context, pot models.Pot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pots[pot.ID] = pot
	return nil
}

func (s *Store) GetPot(ctx context.Context, potID string) (models.Pot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pot, ok := s.pots[potID]
	if !ok {
		return models.Pot{}, interfaces.ErrPotNotFound
	}
	return pot, nil
}

func (s *Store) ListPots(ctx context.Context, userID string) ([]models.Pot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Pot
	for _, pot := range s.pots {
		if userID == "" || pot.UserID == userID {
			result = append(result, pot)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) adjustPotBalanceLocked(potID string, delta decimal.Decimal) error {
	pot, ok := s.pots[potID]
	if !ok {
		return interfaces.ErrPotNotFound
	}
	pot.CurrentTotal = pot.CurrentTotal.Add(delta)
	s.pots[potID] = pot
	return nil
}

func (s *Store) ApplyTransaction(ctx context.Context, tx models.LedgerTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.adjustPotBalanceLocked(tx.PotID, tx.Amount); err != nil {
		return err
	}
	s.transactions[tx.ID] = tx
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (models.LedgerTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return models.LedgerTransaction{}, interfaces.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *Store) ReviseTransaction(ctx context.Context, tx models.LedgerTransaction, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[tx.ID]; !ok {
		return interfaces.ErrTransactionNotFound
	}
	if err := s.adjustPotBalanceLocked(tx.PotID, delta); err != nil {
		return err
	}
	s.transactions[tx.ID] = tx
	return nil
}

func (s *Store) RemoveTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.transactions[id]
	if !ok {
		return interfaces.ErrTransactionNotFound
	}
	if err := s.adjustPotBalanceLocked(existing.PotID, existing.Amount.Neg()); err != nil {
		return err
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, potID string) ([]models.LedgerTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.LedgerTransaction
	for _, tx := range s.transactions {
		if potID == "" || tx.PotID == potID {
			result = append(result, tx)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) SaveRule(ctx context.Context, rule models.RecurringRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = rule
	return nil
}

func (s *Store) GetRule(ctx context.Context, id string) (models.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return models.RecurringRule{}, interfaces.ErrRuleNotFound
	}
	return rule, nil
}

func (s *Store) ListRules(ctx context.Context, potID string) ([]models.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.RecurringRule
	for _, rule := range s.rules {
		if potID == "" || rule.PotID == potID {
			result = append(result, rule)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// DeleteRule removes the rule and its processed markers. Ledger rows the
// rule produced are kept.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return interfaces.ErrRuleNotFound
	}
	delete(s.rules, id)
	for key, marker := range s.markers {
		if marker.RuleID == id {
			delete(s.markers, key)
		}
	}
	return nil
}

func (s *Store) GetMarker(ctx context.Context, ruleID string, date time.Time) (models.ProcessedMarker, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	marker, ok := s.markers[markerKey(ruleID, date)]
	return marker, ok, nil
}

func (s *Store) MaterializeOccurrence(ctx context.Context, tx models.LedgerTransaction, marker models.ProcessedMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := markerKey(marker.RuleID, marker.OccurrenceDate)
	if _, exists := s.markers[key]; exists {
		return interfaces.ErrAlreadyMaterialized
	}
	if err := s.adjustPotBalanceLocked(tx.PotID, tx.Amount); err != nil {
		return err
	}
	s.transactions[tx.ID] = tx
	s.markers[key] = marker
	return nil
}

func markerKey(ruleID string, date time.Time) string {
	return ruleID + "/" + calendar.Noon(date).Format("2006-01-02")
}

var _ interfaces.Store = (*Store)(nil)
