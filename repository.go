package tradebook

import (
	"context"
	"fmt"

	"github.com/etnz/tradebook/date"
)

// Repository is the durable store of transactions, keyed by
// (asset_manager_id, transaction_id) with optimistic versioning.
//
// Implementations must:
//   - keep every version: Get with a version > 0 returns that version, 0
//     returns the latest;
//   - on Put, store tx as version expectedVersion+1 and fail with a
//     VersionConflictError when the latest stored version differs from
//     expectedVersion (0 means "must not exist yet");
//   - record the replaced version as returned by Supersede;
//   - apply PutMany as one indivisible change, readers never observe a part
//     of it;
//   - return ErrNotFound (possibly wrapped) for unknown transactions.
type Repository interface {
	Get(ctx context.Context, tenant int64, id string, version int) (*Transaction, error)
	Put(ctx context.Context, tenant int64, tx *Transaction, expectedVersion int) (*Transaction, error)
	PutMany(ctx context.Context, tenant int64, txs []*Transaction, expectedVersions []int) ([]*Transaction, error)
	// ListByBook returns the latest version of every transaction of the book
	// whose date for acct is on or before asOf (all dates when asOf is zero).
	ListByBook(ctx context.Context, tenant int64, bookID string, asOf date.Date, acct AccountingType) ([]*Transaction, error)
	// List returns the latest version of every transaction of the tenant.
	List(ctx context.Context, tenant int64) ([]*Transaction, error)
	// Clear physically deletes the tenant's transactions, all versions, only
	// for the given books if any. It returns the number of transactions removed.
	Clear(ctx context.Context, tenant int64, bookIDs ...string) (int, error)
}

// Kind is the kind of reference data an id refers to.
type Kind int

// Reference data kinds.
const (
	KindAsset Kind = iota + 1
	KindBook
	KindParty
)

func (k Kind) String() string {
	switch k {
	case KindAsset:
		return "asset"
	case KindBook:
		return "book"
	case KindParty:
		return "party"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses "asset", "book" or "party".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "asset":
		return KindAsset, nil
	case "book":
		return KindBook, nil
	case "party":
		return KindParty, nil
	default:
		return 0, fmt.Errorf("unknown reference data kind: %q", s)
	}
}

// RefData answers whether assets, books and parties exist and are active.
type RefData interface {
	ExistsActive(ctx context.Context, tenant int64, kind Kind, id string) (bool, error)
}

// Listener is notified of every committed write, with the transactions as
// stored.
type Listener interface {
	Committed(ctx context.Context, txs []*Transaction)
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(ctx context.Context, txs []*Transaction)

// Committed calls f.
func (f ListenerFunc) Committed(ctx context.Context, txs []*Transaction) { f(ctx, txs) }

// Locker serializes mutations of the same transactions. TryLock acquires all
// keys or none and never waits indefinitely; a busy key is reported as an
// error.
type Locker interface {
	TryLock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// LockKey returns the lock key of a transaction.
func LockKey(tenant int64, id string) string { return fmt.Sprintf("tradebook:%d:%s", tenant, id) }

// IncludedAt reports whether tx's date for acct is on or before asOf. A zero
// asOf includes everything.
func IncludedAt(tx *Transaction, asOf date.Date, acct AccountingType) bool {
	if asOf.IsZero() {
		return true
	}
	on := tx.TransactionDate
	if acct == SettlementDate {
		on = tx.SettlementDate
	}
	return !on.After(asOf)
}
