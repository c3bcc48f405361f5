// Package sqlite stores transactions in an embedded SQLite database.
//
// Every version of a transaction is a row holding the JSON document of the
// transaction, along with the columns needed to select it. The latest version
// of each transaction is flagged.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/date"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	asset_manager_id INTEGER NOT NULL,
	transaction_id   TEXT    NOT NULL,
	version          INTEGER NOT NULL,
	latest           BOOLEAN NOT NULL DEFAULT TRUE,
	asset_book_id    TEXT    NOT NULL,
	transaction_date TEXT    NOT NULL,
	settlement_date  TEXT    NOT NULL,
	status           TEXT    NOT NULL,
	document         TEXT    NOT NULL,
	PRIMARY KEY (asset_manager_id, transaction_id, version)
);
CREATE INDEX IF NOT EXISTS transactions_by_book ON transactions (asset_manager_id, asset_book_id, latest);
`

// Store is a tradebook.Repository backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating it if needed) the database file at path.
//
// Write transactions take the database lock immediately so that concurrent
// writers wait for each other instead of failing on upgrade.
func Open(ctx context.Context, path string) (*Store, error) {
	q := url.Values{}
	q.Add("_txlock", "immediate")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates the schema in db if missing and returns a Store using it.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Get implements tradebook.Repository.
func (s *Store) Get(ctx context.Context, tenant int64, id string, version int) (*tradebook.Transaction, error) {
	query := `SELECT version, document FROM transactions WHERE asset_manager_id = ? AND transaction_id = ? AND latest`
	args := []any{tenant, id}
	if version != 0 {
		query = `SELECT version, document FROM transactions WHERE asset_manager_id = ? AND transaction_id = ? AND version = ?`
		args = append(args, version)
	}
	tx, err := scanOne(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%d/%s version %d: %w", tenant, id, version, tradebook.ErrNotFound)
	}
	return tx, err
}

// Put implements tradebook.Repository.
func (s *Store) Put(ctx context.Context, tenant int64, tx *tradebook.Transaction, expectedVersion int) (*tradebook.Transaction, error) {
	stored, err := s.PutMany(ctx, tenant, []*tradebook.Transaction{tx}, []int{expectedVersion})
	if err != nil {
		return nil, err
	}
	return stored[0], nil
}

// PutMany implements tradebook.Repository. All rows are written in a single
// SQL transaction.
func (s *Store) PutMany(ctx context.Context, tenant int64, txs []*tradebook.Transaction, expectedVersions []int) (_ []*tradebook.Transaction, err error) {
	if len(txs) != len(expectedVersions) {
		return nil, fmt.Errorf("put %d transactions with %d expected versions", len(txs), len(expectedVersions))
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			sqlTx.Rollback()
		}
	}()

	out := make([]*tradebook.Transaction, len(txs))
	for i, tx := range txs {
		if tx.AssetManagerID != tenant {
			return nil, &tradebook.ValidationError{AssetManagerID: tx.AssetManagerID, TransactionID: tx.TransactionID,
				Field: "asset_manager_id", Reason: fmt.Sprintf("does not match repository tenant %d", tenant)}
		}
		if out[i], err = put(ctx, sqlTx, tx, expectedVersions[i]); err != nil {
			return nil, err
		}
	}
	if err = sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return out, nil
}

// put writes one version inside sqlTx.
func put(ctx context.Context, sqlTx *sql.Tx, tx *tradebook.Transaction, expected int) (*tradebook.Transaction, error) {
	var actual int
	err := sqlTx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM transactions WHERE asset_manager_id = ? AND transaction_id = ?`,
		tx.AssetManagerID, tx.TransactionID).Scan(&actual)
	if err != nil {
		return nil, fmt.Errorf("failed to read version of %s: %w", tx.TransactionID, err)
	}
	if actual != expected {
		return nil, &tradebook.VersionConflictError{AssetManagerID: tx.AssetManagerID, TransactionID: tx.TransactionID, Expected: expected, Actual: actual}
	}

	next := tx.Clone()
	next.Version = actual + 1

	if actual > 0 {
		prev, err := scanOne(sqlTx.QueryRowContext(ctx,
			`SELECT version, document FROM transactions WHERE asset_manager_id = ? AND transaction_id = ? AND version = ?`,
			tx.AssetManagerID, tx.TransactionID, actual))
		if err != nil {
			return nil, fmt.Errorf("failed to read version %d of %s: %w", actual, tx.TransactionID, err)
		}
		old := tradebook.Supersede(prev, next)
		doc, err := json.Marshal(old)
		if err != nil {
			return nil, err
		}
		res, err := sqlTx.ExecContext(ctx,
			`UPDATE transactions SET latest = FALSE, status = ?, document = ? WHERE asset_manager_id = ? AND transaction_id = ? AND version = ? AND latest`,
			string(old.Status), string(doc), tx.AssetManagerID, tx.TransactionID, actual)
		if err != nil {
			return nil, fmt.Errorf("failed to supersede %s: %w", tx.TransactionID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, &tradebook.VersionConflictError{AssetManagerID: tx.AssetManagerID, TransactionID: tx.TransactionID, Expected: expected, Actual: actual + 1}
		}
	}

	doc, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}
	_, err = sqlTx.ExecContext(ctx,
		`INSERT INTO transactions (asset_manager_id, transaction_id, version, latest, asset_book_id, transaction_date, settlement_date, status, document)
		VALUES (?, ?, ?, TRUE, ?, ?, ?, ?, ?)`,
		next.AssetManagerID, next.TransactionID, next.Version, next.AssetBookID, next.TransactionDate, next.SettlementDate, string(next.Status), string(doc))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, &tradebook.VersionConflictError{AssetManagerID: tx.AssetManagerID, TransactionID: tx.TransactionID, Expected: expected, Actual: next.Version}
		}
		return nil, fmt.Errorf("failed to insert %s: %w", tx.TransactionID, err)
	}
	return next, nil
}

// ListByBook implements tradebook.Repository.
func (s *Store) ListByBook(ctx context.Context, tenant int64, bookID string, asOf date.Date, acct tradebook.AccountingType) ([]*tradebook.Transaction, error) {
	query := `SELECT version, document FROM transactions WHERE asset_manager_id = ? AND asset_book_id = ? AND latest`
	args := []any{tenant, bookID}
	if !asOf.IsZero() {
		switch acct {
		case tradebook.SettlementDate:
			query += ` AND settlement_date <= ?`
		default:
			query += ` AND transaction_date <= ?`
		}
		args = append(args, asOf)
	}
	return s.list(ctx, query+` ORDER BY transaction_date, transaction_id`, args...)
}

// List implements tradebook.Repository.
func (s *Store) List(ctx context.Context, tenant int64) ([]*tradebook.Transaction, error) {
	return s.list(ctx, `SELECT version, document FROM transactions WHERE asset_manager_id = ? AND latest ORDER BY transaction_date, transaction_id`, tenant)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*tradebook.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()
	var txs []*tradebook.Transaction
	for rows.Next() {
		tx, err := scanOne(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// Clear implements tradebook.Repository.
func (s *Store) Clear(ctx context.Context, tenant int64, bookIDs ...string) (_ int, err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			sqlTx.Rollback()
		}
	}()

	where := `asset_manager_id = ?`
	args := []any{tenant}
	if len(bookIDs) > 0 {
		where += ` AND transaction_id IN (SELECT transaction_id FROM transactions WHERE asset_manager_id = ? AND latest AND asset_book_id IN (?` +
			strings.Repeat(", ?", len(bookIDs)-1) + `))`
		args = append(args, tenant)
		for _, b := range bookIDs {
			args = append(args, b)
		}
	}
	var n int
	if err = sqlTx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE latest AND `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	if _, err = sqlTx.ExecContext(ctx, `DELETE FROM transactions WHERE `+where, args...); err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}
	if err = sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner) (*tradebook.Transaction, error) {
	var (
		version int
		doc     string
	)
	if err := row.Scan(&version, &doc); err != nil {
		return nil, err
	}
	tx := new(tradebook.Transaction)
	if err := json.Unmarshal([]byte(doc), tx); err != nil {
		return nil, fmt.Errorf("corrupted transaction document: %w", err)
	}
	tx.Version = version
	return tx, nil
}
