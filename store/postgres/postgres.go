// Package postgres stores transactions in PostgreSQL through GORM.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/date"
)

// row is one version of a transaction.
type row struct {
	AssetManagerID  int64  `gorm:"primaryKey;autoIncrement:false"`
	TransactionID   string `gorm:"primaryKey"`
	Version         int    `gorm:"primaryKey;autoIncrement:false"`
	Latest          bool   `gorm:"not null;index:transactions_by_book,priority:3"`
	AssetBookID     string `gorm:"not null;index:transactions_by_book,priority:2"`
	TransactionDate string `gorm:"not null"`
	SettlementDate  string `gorm:"not null"`
	Status          string `gorm:"not null"`
	Document        string `gorm:"type:jsonb;not null"`
}

func (row) TableName() string { return "transactions" }

func toRow(tx *tradebook.Transaction, latest bool) (*row, error) {
	doc, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", tx.TransactionID, err)
	}
	return &row{
		AssetManagerID:  tx.AssetManagerID,
		TransactionID:   tx.TransactionID,
		Version:         tx.Version,
		Latest:          latest,
		AssetBookID:     tx.AssetBookID,
		TransactionDate: tx.TransactionDate.String(),
		SettlementDate:  tx.SettlementDate.String(),
		Status:          string(tx.Status),
		Document:        string(doc),
	}, nil
}

func (r *row) transaction() (*tradebook.Transaction, error) {
	tx := new(tradebook.Transaction)
	if err := json.Unmarshal([]byte(r.Document), tx); err != nil {
		return nil, fmt.Errorf("corrupted transaction document %d/%s: %w", r.AssetManagerID, r.TransactionID, err)
	}
	tx.Version = r.Version
	return tx, nil
}

// Options tunes the connection pool.
type Options struct {
	MaxIdleConns int
	MaxOpenConns int
	LogLevel     logger.LogLevel // LogLevel of GORM's SQL log, default silent.
}

// Store is a tradebook.Repository backed by PostgreSQL.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the schema.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	level := opts.LogLevel
	if level == 0 {
		level = logger.Silent
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	return New(ctx, db)
}

// New migrates the schema in db and returns a Store using it.
func New(ctx context.Context, db *gorm.DB) (*Store, error) {
	if err := db.WithContext(ctx).AutoMigrate(&row{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get implements tradebook.Repository.
func (s *Store) Get(ctx context.Context, tenant int64, id string, version int) (*tradebook.Transaction, error) {
	q := s.db.WithContext(ctx).Where("asset_manager_id = ? AND transaction_id = ?", tenant, id)
	if version == 0 {
		q = q.Where("latest")
	} else {
		q = q.Where("version = ?", version)
	}
	var r row
	if err := q.Take(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%d/%s version %d: %w", tenant, id, version, tradebook.ErrNotFound)
		}
		return nil, err
	}
	return r.transaction()
}

// Put implements tradebook.Repository.
func (s *Store) Put(ctx context.Context, tenant int64, tx *tradebook.Transaction, expectedVersion int) (*tradebook.Transaction, error) {
	stored, err := s.PutMany(ctx, tenant, []*tradebook.Transaction{tx}, []int{expectedVersion})
	if err != nil {
		return nil, err
	}
	return stored[0], nil
}

// PutMany implements tradebook.Repository. All rows are written in one
// database transaction.
func (s *Store) PutMany(ctx context.Context, tenant int64, txs []*tradebook.Transaction, expectedVersions []int) ([]*tradebook.Transaction, error) {
	if len(txs) != len(expectedVersions) {
		return nil, fmt.Errorf("put %d transactions with %d expected versions", len(txs), len(expectedVersions))
	}
	out := make([]*tradebook.Transaction, len(txs))
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		for i, tx := range txs {
			if tx.AssetManagerID != tenant {
				return &tradebook.ValidationError{AssetManagerID: tx.AssetManagerID, TransactionID: tx.TransactionID,
					Field: "asset_manager_id", Reason: fmt.Sprintf("does not match repository tenant %d", tenant)}
			}
			stored, err := put(db, tx, expectedVersions[i])
			if err != nil {
				return err
			}
			out[i] = stored
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func put(db *gorm.DB, tx *tradebook.Transaction, expected int) (*tradebook.Transaction, error) {
	conflict := func(actual int) error {
		return &tradebook.VersionConflictError{AssetManagerID: tx.AssetManagerID, TransactionID: tx.TransactionID, Expected: expected, Actual: actual}
	}
	var actual int
	err := db.Model(&row{}).
		Where("asset_manager_id = ? AND transaction_id = ?", tx.AssetManagerID, tx.TransactionID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&actual).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read version of %s: %w", tx.TransactionID, err)
	}
	if actual != expected {
		return nil, conflict(actual)
	}

	next := tx.Clone()
	next.Version = actual + 1

	if actual > 0 {
		var prevRow row
		if err := db.Where("asset_manager_id = ? AND transaction_id = ? AND version = ?", tx.AssetManagerID, tx.TransactionID, actual).Take(&prevRow).Error; err != nil {
			return nil, fmt.Errorf("failed to read version %d of %s: %w", actual, tx.TransactionID, err)
		}
		prev, err := prevRow.transaction()
		if err != nil {
			return nil, err
		}
		old, err := toRow(tradebook.Supersede(prev, next), false)
		if err != nil {
			return nil, err
		}
		// a concurrent writer may have replaced the latest version meanwhile
		result := db.Model(&row{}).
			Where("asset_manager_id = ? AND transaction_id = ? AND version = ? AND latest", tx.AssetManagerID, tx.TransactionID, actual).
			Updates(map[string]any{"latest": false, "status": old.Status, "document": old.Document})
		if result.Error != nil {
			return nil, fmt.Errorf("failed to supersede %s: %w", tx.TransactionID, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, conflict(actual + 1)
		}
	}

	r, err := toRow(next, true)
	if err != nil {
		return nil, err
	}
	if err := db.Create(r).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflict(next.Version)
		}
		return nil, fmt.Errorf("failed to insert %s: %w", tx.TransactionID, err)
	}
	return next, nil
}

// ListByBook implements tradebook.Repository.
func (s *Store) ListByBook(ctx context.Context, tenant int64, bookID string, asOf date.Date, acct tradebook.AccountingType) ([]*tradebook.Transaction, error) {
	q := s.db.WithContext(ctx).Where("asset_manager_id = ? AND asset_book_id = ? AND latest", tenant, bookID)
	if !asOf.IsZero() {
		switch acct {
		case tradebook.SettlementDate:
			q = q.Where("settlement_date <= ?", asOf.String())
		default:
			q = q.Where("transaction_date <= ?", asOf.String())
		}
	}
	return find(q)
}

// List implements tradebook.Repository.
func (s *Store) List(ctx context.Context, tenant int64) ([]*tradebook.Transaction, error) {
	return find(s.db.WithContext(ctx).Where("asset_manager_id = ? AND latest", tenant))
}

func find(q *gorm.DB) ([]*tradebook.Transaction, error) {
	var rows []row
	if err := q.Order("transaction_date, transaction_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	txs := make([]*tradebook.Transaction, 0, len(rows))
	for i := range rows {
		tx, err := rows[i].transaction()
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// Clear implements tradebook.Repository.
func (s *Store) Clear(ctx context.Context, tenant int64, bookIDs ...string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		latest := db.Model(&row{}).Where("asset_manager_id = ? AND latest", tenant)
		if len(bookIDs) > 0 {
			latest = latest.Where("asset_book_id IN ?", bookIDs)
		}
		if err := latest.Count(&n).Error; err != nil {
			return fmt.Errorf("failed to count transactions: %w", err)
		}
		del := db.Where("asset_manager_id = ?", tenant)
		if len(bookIDs) > 0 {
			ids := db.Model(&row{}).Select("transaction_id").Where("asset_manager_id = ? AND latest AND asset_book_id IN ?", tenant, bookIDs)
			del = del.Where("transaction_id IN (?)", ids)
		}
		if err := del.Delete(&row{}).Error; err != nil {
			return fmt.Errorf("failed to delete transactions: %w", err)
		}
		return nil
	})
	return int(n), err
}
