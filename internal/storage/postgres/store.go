// Package postgres implements interfaces.Store on PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rhowell/potstash/internal/calendar"
	"github.com/rhowell/potstash/internal/interfaces"
	"github.com/rhowell/potstash/internal/models"
	"github.com/shopspring/decimal"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS pots (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	name              TEXT NOT NULL DEFAULT '',
	current_total     NUMERIC(18,2) NOT NULL DEFAULT 0,
	target_amount     NUMERIC(18,2),
	interest_rate_pct NUMERIC(8,4),
	color             TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS ledger_transactions (
	id               TEXT PRIMARY KEY,
	pot_id           TEXT NOT NULL REFERENCES pots(id),
	user_id          TEXT NOT NULL,
	amount           NUMERIC(18,2) NOT NULL,
	date             TIMESTAMPTZ NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	recurring_origin BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS recurring_rules (
	id          TEXT PRIMARY KEY,
	pot_id      TEXT NOT NULL REFERENCES pots(id),
	user_id     TEXT NOT NULL,
	amount      NUMERIC(18,2) NOT NULL,
	anchor_date TIMESTAMPTZ NOT NULL,
	frequency   TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS processed_markers (
	rule_id         TEXT NOT NULL,
	occurrence_date DATE NOT NULL,
	transaction_id  TEXT NOT NULL,
	PRIMARY KEY (rule_id, occurrence_date)
);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) CreatePot(ctx context.Context, pot models.Pot) error {
	const query = `INSERT INTO pots (id, user_id, name, current_total, target_amount, interest_rate_pct, color)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		pot.ID, pot.UserID, pot.Name, pot.CurrentTotal,
		nullDecimal(pot.TargetAmount), nullDecimal(pot.InterestRatePct), pot.Color)
	return err
}

func (s *Store) GetPot(ctx context.Context, potID string) (models.Pot, error) {
	const query = `SELECT id, user_id, name, current_total, target_amount, interest_rate_pct, color
	FROM pots WHERE id = $1`

	var pot models.Pot
	var target, rate decimal.NullDecimal
	err := s.db.QueryRowContext(ctx, query, potID).Scan(
		&pot.ID, &pot.UserID, &pot.Name, &pot.CurrentTotal, &target, &rate, &pot.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Pot{}, interfaces.ErrPotNotFound
	}
	if err != nil {
		return models.Pot{}, err
	}
	pot.TargetAmount = fromNullDecimal(target)
	pot.InterestRatePct = fromNullDecimal(rate)
	return pot, nil
}

func (s *Store) ListPots(ctx context.Context, userID string) ([]models.Pot, error) {
	const query = `SELECT id, user_id, name, current_total, target_amount, interest_rate_pct, color
	FROM pots WHERE ($1 = '' OR user_id = $1) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pots []models.Pot
	for rows.Next() {
		var pot models.Pot
		var target, rate decimal.NullDecimal
		if err := rows.Scan(&pot.ID, &pot.UserID, &pot.Name, &pot.CurrentTotal, &target, &rate, &pot.Color); err != nil {
			return nil, err
		}
		pot.TargetAmount = fromNullDecimal(target)
		pot.InterestRatePct = fromNullDecimal(rate)
		pots = append(pots, pot)
	}
	return pots, rows.Err()
}

// execer is the subset of sql.Tx the shared write helpers need.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) adjustPotBalanceTx(ctx context.Context, db execer, potID string, delta decimal.Decimal) error {
	const query = `UPDATE pots SET current_total = current_total + $2 WHERE id = $1`

	result, err := db.ExecContext(ctx, query, potID, delta)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return interfaces.ErrPotNotFound
	}
	return nil
}

// ApplyTransaction credits the pot and inserts the row in one transaction.
// The balance update runs first so a missing pot surfaces as ErrPotNotFound
// rather than a foreign-key violation.
func (s *Store) ApplyTransaction(ctx context.Context, tx models.LedgerTransaction) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if err = s.adjustPotBalanceTx(ctx, dbTx, tx.PotID, tx.Amount); err != nil {
		return err
	}
	if err = s.saveTransactionTx(ctx, dbTx, tx); err != nil {
		return err
	}
	return dbTx.Commit()
}

func (s *Store) saveTransactionTx(ctx context.Context, db execer, tx models.LedgerTransaction) error {
	const query = `INSERT INTO ledger_transactions (id, pot_id, user_id, amount, date, description, recurring_origin)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := db.ExecContext(ctx, query,
		tx.ID, tx.PotID, tx.UserID, tx.Amount, tx.Date, tx.Description, tx.RecurringOrigin)
	return err
}

func (s *Store) GetTransaction(ctx context.Context, id string) (models.LedgerTransaction, error) {
	const query = `SELECT id, pot_id, user_id, amount, date, description, recurring_origin
	FROM ledger_transactions WHERE id = $1`

	var tx models.LedgerTransaction
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&tx.ID, &tx.PotID, &tx.UserID, &tx.Amount, &tx.Date, &tx.Description, &tx.RecurringOrigin)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LedgerTransaction{}, interfaces.ErrTransactionNotFound
	}
	if err != nil {
		return models.LedgerTransaction{}, err
	}
	return tx, nil
}

// ReviseTransaction rewrites the row and applies delta to the pot's balance
// in one transaction.
func (s *Store) ReviseTransaction(ctx context.Context, tx models.LedgerTransaction, delta decimal.Decimal) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	const query = `UPDATE ledger_transactions
	SET amount = $2, date = $3, description = $4 WHERE id = $1`
	var result sql.Result
	if result, err = dbTx.ExecContext(ctx, query, tx.ID, tx.Amount, tx.Date, tx.Description); err != nil {
		return err
	}
	var affected int64
	if affected, err = result.RowsAffected(); err != nil {
		return err
	}
	if affected == 0 {
		err = interfaces.ErrTransactionNotFound
		return err
	}
	if !delta.IsZero() {
		if err = s.adjustPotBalanceTx(ctx, dbTx, tx.PotID, delta); err != nil {
			return err
		}
	}
	return dbTx.Commit()
}

// RemoveTransaction deletes the row and backs its amount out of the pot's
// balance in one transaction.
func (s *Store) RemoveTransaction(ctx context.Context, id string) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	const query = `DELETE FROM ledger_transactions WHERE id = $1 RETURNING pot_id, amount`
	var potID string
	var amount decimal.Decimal
	if err = dbTx.QueryRowContext(ctx, query, id).Scan(&potID, &amount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = interfaces.ErrTransactionNotFound
		}
		return err
	}
	if err = s.adjustPotBalanceTx(ctx, dbTx, potID, amount.Neg()); err != nil {
		return err
	}
	return dbTx.Commit()
}

func (s *Store) ListTransactions(ctx context.Context, potID string) ([]models.LedgerTransaction, error) {
	const query = `SELECT id, pot_id, user_id, amount, date, description, recurring_origin
	FROM ledger_transactions WHERE ($1 = '' OR pot_id = $1) ORDER BY date, id`

	rows, err := s.db.QueryContext(ctx, query, potID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.LedgerTransaction
	for rows.Next() {
		var tx models.LedgerTransaction
		if err := rows.Scan(&tx.ID, &tx.PotID, &tx.UserID, &tx.Amount, &tx.Date, &tx.Description, &tx.RecurringOrigin); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) SaveRule(ctx context.Context, rule models.RecurringRule) error {
	const query = `INSERT INTO recurring_rules (id, pot_id, user_id, amount, anchor_date, frequency, description)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE
	SET amount = EXCLUDED.amount, anchor_date = EXCLUDED.anchor_date,
	    frequency = EXCLUDED.frequency, description = EXCLUDED.description`

	_, err := s.db.ExecContext(ctx, query,
		rule.ID, rule.PotID, rule.UserID, rule.Amount, rule.AnchorDate, string(rule.Frequency), rule.Description)
	return err
}

func (s *Store) GetRule(ctx context.Context, id string) (models.RecurringRule, error) {
	const query = `SELECT id, pot_id, user_id, amount, anchor_date, frequency, description
	FROM recurring_rules WHERE id = $1`

	var rule models.RecurringRule
	var frequency string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rule.ID, &rule.PotID, &rule.UserID, &rule.Amount, &rule.AnchorDate, &frequency, &rule.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RecurringRule{}, interfaces.ErrRuleNotFound
	}
	if err != nil {
		return models.RecurringRule{}, err
	}
	rule.Frequency = models.Frequency(frequency)
	return rule, nil
}

func (s *Store) ListRules(ctx context.Context, potID string) ([]models.RecurringRule, error) {
	const query = `SELECT id, pot_id, user_id, amount, anchor_date, frequency, description
	FROM recurring_rules WHERE ($1 = '' OR pot_id = $1) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, potID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.RecurringRule
	for rows.Next() {
		var rule models.RecurringRule
		var frequency string
		if err := rows.Scan(&rule.ID, &rule.PotID, &rule.UserID, &rule.Amount, &rule.AnchorDate, &frequency, &rule.Description); err != nil {
			return nil, err
		}
		rule.Frequency = models.Frequency(frequency)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if _, err = dbTx.ExecContext(ctx, `DELETE FROM processed_markers WHERE rule_id = $1`, id); err != nil {
		return err
	}
	var result sql.Result
	if result, err = dbTx.ExecContext(ctx, `DELETE FROM recurring_rules WHERE id = $1`, id); err != nil {
		return err
	}
	var affected int64
	if affected, err = result.RowsAffected(); err != nil {
		return err
	}
	if affected == 0 {
		err = interfaces.ErrRuleNotFound
		return err
	}
	return dbTx.Commit()
}

func (s *Store) GetMarker(ctx context.Context, ruleID string, date time.Time) (models.ProcessedMarker, bool, error) {
	const query = `SELECT rule_id, occurrence_date, transaction_id
	FROM processed_markers WHERE rule_id = $1 AND occurrence_date = $2`

	var marker models.ProcessedMarker
	err := s.db.QueryRowContext(ctx, query, ruleID, calendar.Noon(date).Format("2006-01-02")).Scan(
		&marker.RuleID, &marker.OccurrenceDate, &marker.TransactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ProcessedMarker{}, false, nil
	}
	if err != nil {
		return models.ProcessedMarker{}, false, err
	}
	return marker, true, nil
}

// MaterializeOccurrence performs the ledger insert, balance adjustment and
// marker insert in one database transaction, so a crash can never leave a
// marker without its ledger row or the reverse.
func (s *Store) MaterializeOccurrence(ctx context.Context, tx models.LedgerTransaction, marker models.ProcessedMarker) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	const markerQuery = `INSERT INTO processed_markers (rule_id, occurrence_date, transaction_id)
	VALUES ($1, $2, $3)`
	if _, err = dbTx.ExecContext(ctx, markerQuery,
		marker.RuleID, calendar.Noon(marker.OccurrenceDate).Format("2006-01-02"), marker.TransactionID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			err = interfaces.ErrAlreadyMaterialized
		}
		return err
	}
	if err = s.saveTransactionTx(ctx, dbTx, tx); err != nil {
		return fmt.Errorf("insert ledger row: %w", err)
	}
	if err = s.adjustPotBalanceTx(ctx, dbTx, tx.PotID, tx.Amount); err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	return dbTx.Commit()
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	value := d.Decimal
	return &value
}

var _ interfaces.Store = (*Store)(nil)
