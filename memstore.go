package tradebook

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/etnz/tradebook/date"
)

// MemoryStore is an in-memory Repository. It keeps every version of every
// transaction and is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	versions map[Key][]*Transaction // versions[k][i] is version i+1
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{versions: make(map[Key][]*Transaction)}
}

// Get implements Repository.
func (s *MemoryStore) Get(ctx context.Context, tenant int64, id string, version int) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.versions[Key{tenant, id}]
	switch {
	case len(history) == 0:
		return nil, fmt.Errorf("%d/%s: %w", tenant, id, ErrNotFound)
	case version == 0:
		return history[len(history)-1].Clone(), nil
	case version < 0 || version > len(history):
		return nil, fmt.Errorf("%d/%s version %d: %w", tenant, id, version, ErrNotFound)
	}
	return history[version-1].Clone(), nil
}

// Put implements Repository.
func (s *MemoryStore) Put(ctx context.Context, tenant int64, tx *Transaction, expectedVersion int) (*Transaction, error) {
	stored, err := s.PutMany(ctx, tenant, []*Transaction{tx}, []int{expectedVersion})
	if err != nil {
		return nil, err
	}
	return stored[0], nil
}

// PutMany implements Repository. Every check runs before anything is written.
func (s *MemoryStore) PutMany(ctx context.Context, tenant int64, txs []*Transaction, expectedVersions []int) ([]*Transaction, error) {
	if len(txs) != len(expectedVersions) {
		return nil, fmt.Errorf("put %d transactions with %d expected versions", len(txs), len(expectedVersions))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[Key]bool, len(txs))
	staged := make([]*Transaction, len(txs))
	for i, tx := range txs {
		if err := checkOwner(tenant, tx); err != nil {
			return nil, err
		}
		k := tx.Key()
		if seen[k] {
			return nil, fmt.Errorf("transaction %d/%s written twice in one batch", tenant, tx.TransactionID)
		}
		seen[k] = true
		actual := len(s.versions[k])
		if actual != expectedVersions[i] {
			return nil, &VersionConflictError{AssetManagerID: tenant, TransactionID: tx.TransactionID, Expected: expectedVersions[i], Actual: actual}
		}
		next := tx.Clone()
		next.Version = actual + 1
		staged[i] = next
	}

	out := make([]*Transaction, len(staged))
	for i, next := range staged {
		k := next.Key()
		history := s.versions[k]
		if n := len(history); n > 0 {
			history[n-1] = Supersede(history[n-1], next)
		}
		s.versions[k] = append(history, next)
		out[i] = next.Clone()
	}
	return out, nil
}

// ListByBook implements Repository.
func (s *MemoryStore) ListByBook(ctx context.Context, tenant int64, bookID string, asOf date.Date, acct AccountingType) ([]*Transaction, error) {
	return s.list(ctx, tenant, func(tx *Transaction) bool {
		return tx.AssetBookID == bookID && IncludedAt(tx, asOf, acct)
	})
}

// List implements Repository.
func (s *MemoryStore) List(ctx context.Context, tenant int64) ([]*Transaction, error) {
	return s.list(ctx, tenant, func(*Transaction) bool { return true })
}

func (s *MemoryStore) list(ctx context.Context, tenant int64, keep func(*Transaction) bool) ([]*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var txs []*Transaction
	for k, history := range s.versions {
		if k.AssetManagerID != tenant {
			continue
		}
		if latest := history[len(history)-1]; keep(latest) {
			txs = append(txs, latest.Clone())
		}
	}
	SortTransactions(txs)
	return txs, nil
}

// Clear implements Repository.
func (s *MemoryStore) Clear(ctx context.Context, tenant int64, bookIDs ...string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, history := range s.versions {
		if k.AssetManagerID != tenant {
			continue
		}
		if len(bookIDs) > 0 && !slices.Contains(bookIDs, history[len(history)-1].AssetBookID) {
			continue
		}
		delete(s.versions, k)
		n++
	}
	return n, nil
}

// SortTransactions sorts txs by transaction date then transaction id.
func SortTransactions(txs []*Transaction) {
	slices.SortStableFunc(txs, func(a, b *Transaction) int {
		if c := a.TransactionDate.Compare(b.TransactionDate); c != 0 {
			return c
		}
		return strings.Compare(a.TransactionID, b.TransactionID)
	})
}

// checkOwner rejects a transaction that does not belong to tenant.
func checkOwner(tenant int64, tx *Transaction) error {
	if tx.AssetManagerID != tenant {
		return &ValidationError{
			AssetManagerID: tx.AssetManagerID,
			TransactionID:  tx.TransactionID,
			Field:          "asset_manager_id",
			Reason:         fmt.Sprintf("does not match repository tenant %d", tenant),
		}
	}
	return nil
}
