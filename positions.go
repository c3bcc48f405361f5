package tradebook

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/etnz/tradebook/date"
)

// Position is the quantity of an asset held in a book at a date.
type Position struct {
	AssetManagerID int64
	BookID         string
	AssetID        string
	AccountingType AccountingType
	Quantity       decimal.Decimal
	AsOf           date.Date
}

type positionKey struct {
	tenant int64
	book   string
	asset  string
}

// Counts reports whether tx contributes to positions: its latest version is
// live and it has not been split into an allocation batch.
func Counts(tx *Transaction) bool {
	switch tx.Status {
	case Cancelled, Netted, Novated, Superseded:
		return false
	}
	return !tx.Allocated()
}

// Fold derives positions from txs as of asOf, dating transactions by acct.
//
// Only the highest version of each transaction is used, so folding a stream
// that contains history, or the same stream twice, gives the same result.
// Positions are sorted by tenant, book then asset.
func Fold(txs []*Transaction, asOf date.Date, acct AccountingType) []Position {
	latest := make(map[Key]*Transaction, len(txs))
	for _, tx := range txs {
		if prev, ok := latest[tx.Key()]; !ok || tx.Version > prev.Version {
			latest[tx.Key()] = tx
		}
	}

	sums := make(map[positionKey]decimal.Decimal)
	for _, tx := range latest {
		if !Counts(tx) || !IncludedAt(tx, asOf, acct) {
			continue
		}
		k := positionKey{tx.AssetManagerID, tx.AssetBookID, tx.AssetID}
		sums[k] = sums[k].Add(tx.Quantity)
	}

	positions := make([]Position, 0, len(sums))
	for k, q := range sums {
		positions = append(positions, Position{
			AssetManagerID: k.tenant,
			BookID:         k.book,
			AssetID:        k.asset,
			AccountingType: acct,
			Quantity:       q,
			AsOf:           asOf,
		})
	}
	slices.SortFunc(positions, func(a, b Position) int {
		return cmp.Or(
			cmp.Compare(a.AssetManagerID, b.AssetManagerID),
			cmp.Compare(a.BookID, b.BookID),
			cmp.Compare(a.AssetID, b.AssetID),
		)
	})
	return positions
}

// Positions folds the book's transactions as of asOf. An empty bookID is not
// allowed, use PositionsByAssetManager for a tenant wide view.
func (e *Engine) Positions(ctx context.Context, tenant int64, bookID string, asOf date.Date, acct AccountingType) (_ []Position, err error) {
	ctx, span := e.start(ctx, "Positions", tenant, "")
	defer func() { e.end(span, "positions", err) }()

	if _, err := ParseAccountingType(string(acct)); err != nil {
		return nil, &ValidationError{AssetManagerID: tenant, Field: "accounting_type", Reason: err.Error()}
	}
	if bookID == "" {
		return nil, &ValidationError{AssetManagerID: tenant, Field: "asset_book_id", Reason: "is missing"}
	}
	ctx, cancel := e.bound(ctx)
	defer cancel()
	txs, err := e.repo.ListByBook(ctx, tenant, bookID, asOf, acct)
	if err != nil {
		return nil, repositoryError(tenant, "list by book", err)
	}
	return Fold(txs, asOf, acct), nil
}

// PositionsByAssetManager folds the tenant's transactions as of asOf, across
// every book, or across bookIDs only when any is given.
func (e *Engine) PositionsByAssetManager(ctx context.Context, tenant int64, asOf date.Date, acct AccountingType, bookIDs ...string) (_ []Position, err error) {
	ctx, span := e.start(ctx, "PositionsByAssetManager", tenant, "")
	defer func() { e.end(span, "positions by asset manager", err) }()

	if _, err := ParseAccountingType(string(acct)); err != nil {
		return nil, &ValidationError{AssetManagerID: tenant, Field: "accounting_type", Reason: err.Error()}
	}
	ctx, cancel := e.bound(ctx)
	defer cancel()
	txs, err := e.repo.List(ctx, tenant)
	if err != nil {
		return nil, repositoryError(tenant, "list", err)
	}
	if len(bookIDs) > 0 {
		selected := make([]*Transaction, 0, len(txs))
		for _, tx := range txs {
			if slices.Contains(bookIDs, tx.AssetBookID) {
				selected = append(selected, tx)
			}
		}
		txs = selected
	}
	return Fold(txs, asOf, acct), nil
}

// PositionView is a materialized view of positions kept up to date by
// listening to an Engine.
type PositionView struct {
	mu  sync.RWMutex
	txs map[Key]*Transaction
}

// NewPositionView returns an empty view.
func NewPositionView() *PositionView {
	return &PositionView{txs: make(map[Key]*Transaction)}
}

// Committed implements Listener.
func (v *PositionView) Committed(_ context.Context, txs []*Transaction) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, tx := range txs {
		if prev, ok := v.txs[tx.Key()]; ok && prev.Version >= tx.Version {
			continue
		}
		v.txs[tx.Key()] = tx.Clone()
	}
}

// Positions returns the tenant's positions as of asOf. An empty bookID selects
// every book.
func (v *PositionView) Positions(tenant int64, bookID string, asOf date.Date, acct AccountingType) []Position {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var txs []*Transaction
	for k, tx := range v.txs {
		if k.AssetManagerID == tenant && (bookID == "" || tx.AssetBookID == bookID) {
			txs = append(txs, tx)
		}
	}
	return Fold(txs, asOf, acct)
}
