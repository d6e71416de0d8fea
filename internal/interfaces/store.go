package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/rhowell/potstash/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrPotNotFound         = errors.New("pot not found")
	ErrRuleNotFound        = errors.New("recurring rule not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrAlreadyMaterialized is returned by MaterializeOccurrence when a
	// marker for the same rule and day already exists. The cycle checks the
	// marker before writing; this error is the store-level backstop.
	ErrAlreadyMaterialized = errors.New("occurrence already materialized")
)

// Store is the persistence surface for pots, ledger transactions, recurring
// rules and processed markers. Every write that touches a ledger row also
// adjusts the owning pot's running total, and implementations must make each
// such operation atomic: row write and balance adjustment either both happen
// or neither does. MaterializeOccurrence extends the same guarantee to its
// marker insert.
type Store interface {
	CreatePot(ctx context.Context, pot models.Pot) error
	GetPot(ctx context.Context, potID string) (models.Pot, error)
	ListPots(ctx context.Context, userID string) ([]models.Pot, error)

	// ApplyTransaction inserts tx and credits its amount to the owning pot.
	ApplyTransaction(ctx context.Context, tx models.LedgerTransaction) error
	GetTransaction(ctx context.Context, id string) (models.LedgerTransaction, error)
	// ReviseTransaction rewrites the row and applies delta, the difference
	// between the new amount and the old one, to the pot's balance.
	ReviseTransaction(ctx context.Context, tx models.LedgerTransaction, delta decimal.Decimal) error
	// RemoveTransaction deletes the row and backs its amount out of the
	// pot's balance.
	RemoveTransaction(ctx context.Context, id string) error
	// ListTransactions returns all transactions, or only those for potID when
	// potID is non-empty.
	ListTransactions(ctx context.Context, potID string) ([]models.LedgerTransaction, error)

	SaveRule(ctx context.Context, rule models.RecurringRule) error
	GetRule(ctx context.Context, id string) (models.RecurringRule, error)
	ListRules(ctx context.Context, potID string) ([]models.RecurringRule, error)
	// DeleteRule removes the rule and cascades its processed markers.
	// Materialized ledger rows are kept.
	DeleteRule(ctx context.Context, id string) error

	GetMarker(ctx context.Context, ruleID string, date time.Time) (models.ProcessedMarker, bool, error)
	// MaterializeOccurrence inserts tx, adjusts the owning pot's balance by
	// tx.Amount and writes marker, as one atomic unit.
	MaterializeOccurrence(ctx context.Context, tx models.LedgerTransaction, marker models.ProcessedMarker) error
}
