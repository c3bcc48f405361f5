package tradebook

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// KeyedLocker is an in-process Locker. It holds a set of busy keys and fails
// fast on contention.
type KeyedLocker struct {
	mu   sync.Mutex
	busy map[string]bool
}

// NewKeyedLocker returns a ready to use KeyedLocker.
func NewKeyedLocker() *KeyedLocker { return &KeyedLocker{busy: make(map[string]bool)} }

// TryLock implements Locker.
func (l *KeyedLocker) TryLock(ctx context.Context, keys ...string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys = slices.Compact(slices.Sorted(slices.Values(keys)))
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		if l.busy[k] {
			return nil, fmt.Errorf("%s: %w", k, ErrLocked)
		}
	}
	for _, k := range keys {
		l.busy[k] = true
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for _, k := range keys {
				delete(l.busy, k)
			}
		})
	}, nil
}
