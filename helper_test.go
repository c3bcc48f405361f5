package tradebook

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnz/tradebook/date"
)

const tenant int64 = 1

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// trade builds a valid New transaction on asset ACME in USD, dated 2024-03-01.
func trade(id, book string, action Action, quantity, price string) *Transaction {
	return &Transaction{
		AssetManagerID:      tenant,
		TransactionID:       id,
		AssetID:             "ACME",
		AssetBookID:         book,
		Action:              action,
		Type:                Trade,
		Status:              New,
		Quantity:            dec(quantity),
		Price:               dec(price),
		TransactionCurrency: "USD",
		SettlementCurrency:  "USD",
		TransactionDate:     date.MustParse("2024-03-01"),
		SettlementDate:      date.MustParse("2024-03-03"),
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

// sequence returns an id generator yielding ids in order, then id-N.
func sequence(ids ...string) func() string {
	n := 0
	return func() string {
		n++
		if n <= len(ids) {
			return ids[n-1]
		}
		return fmt.Sprintf("id-%d", n)
	}
}

// newEngine returns an engine over a fresh memory store.
func newEngine(t *testing.T, opts ...Option) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewEngine(store, opts...), store
}

func mustCreate(t *testing.T, e *Engine, txs ...*Transaction) []*Transaction {
	t.Helper()
	var out []*Transaction
	for _, tx := range txs {
		stored, err := e.Create(context.Background(), tx)
		require.NoError(t, err)
		out = append(out, stored)
	}
	return out
}
