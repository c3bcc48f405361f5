// Package storetest checks that a tradebook.Repository honors the repository
// contract. Adapters run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/date"
)

// Tenant is the asset manager used by the contract tests.
const Tenant int64 = 7

// Trade returns a valid New buy of qty ACME in book, dated on.
func Trade(id, book string, qty int64, on string) *tradebook.Transaction {
	d := date.MustParse(on)
	return &tradebook.Transaction{
		AssetManagerID:      Tenant,
		TransactionID:       id,
		AssetID:             "ACME",
		AssetBookID:         book,
		Action:              tradebook.Buy,
		Type:                tradebook.Trade,
		Status:              tradebook.New,
		Quantity:            decimal.NewFromInt(qty),
		Price:               decimal.RequireFromString("10.25"),
		TransactionCurrency: "USD",
		SettlementCurrency:  "USD",
		TransactionDate:     d,
		SettlementDate:      d.Add(2),
	}
}

// Run runs the contract tests, calling open for a fresh empty repository in
// every subtest.
func Run(t *testing.T, open func(t *testing.T) tradebook.Repository) {
	t.Run("Versions", func(t *testing.T) { testVersions(t, open(t)) })
	t.Run("PutManyIsAtomic", func(t *testing.T) { testPutMany(t, open(t)) })
	t.Run("ListByBook", func(t *testing.T) { testListByBook(t, open(t)) })
	t.Run("Clear", func(t *testing.T) { testClear(t, open(t)) })
	t.Run("Document", func(t *testing.T) { testDocument(t, open(t)) })
}

func put(t *testing.T, repo tradebook.Repository, tx *tradebook.Transaction, expected int) *tradebook.Transaction {
	t.Helper()
	stored, err := repo.Put(context.Background(), tx.AssetManagerID, tx, expected)
	require.NoError(t, err)
	return stored
}

func ids(txs []*tradebook.Transaction) []string {
	var out []string
	for _, tx := range txs {
		out = append(out, tx.TransactionID)
	}
	return out
}

func testVersions(t *testing.T, repo tradebook.Repository) {
	ctx := context.Background()

	_, err := repo.Get(ctx, Tenant, "t1", 0)
	assert.ErrorIs(t, err, tradebook.ErrNotFound)

	v1 := put(t, repo, Trade("t1", "B1", 100, "2024-03-01"), 0)
	assert.Equal(t, 1, v1.Version)

	_, err = repo.Put(ctx, Tenant, Trade("t1", "B1", 100, "2024-03-01"), 0)
	var conflict *tradebook.VersionConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, 1, conflict.Actual)

	amended := v1.Clone()
	amended.Status = tradebook.Amended
	amended.Quantity = decimal.NewFromInt(120)
	v2 := put(t, repo, amended, 1)
	assert.Equal(t, 2, v2.Version)

	_, err = repo.Put(ctx, Tenant, amended, 1)
	require.True(t, errors.As(err, &conflict), "stale writes lose, got %v", err)

	latest, err := repo.Get(ctx, Tenant, "t1", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.True(t, latest.Quantity.Equal(decimal.NewFromInt(120)))

	first, err := repo.Get(ctx, Tenant, "t1", 1)
	require.NoError(t, err)
	assert.Equal(t, tradebook.Superseded, first.Status)
	assert.True(t, first.Quantity.Equal(decimal.NewFromInt(100)))

	_, err = repo.Get(ctx, Tenant, "t1", 3)
	assert.ErrorIs(t, err, tradebook.ErrNotFound)
	_, err = repo.Get(ctx, Tenant+1, "t1", 0)
	assert.ErrorIs(t, err, tradebook.ErrNotFound)
}

func testPutMany(t *testing.T, repo tradebook.Repository) {
	ctx := context.Background()
	put(t, repo, Trade("taken", "B1", 1, "2024-03-01"), 0)

	_, err := repo.PutMany(ctx, Tenant, []*tradebook.Transaction{
		Trade("fresh", "B1", 1, "2024-03-01"),
		Trade("taken", "B1", 2, "2024-03-01"),
	}, []int{0, 0})
	var conflict *tradebook.VersionConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)

	_, err = repo.Get(ctx, Tenant, "fresh", 0)
	assert.ErrorIs(t, err, tradebook.ErrNotFound)
	taken, err := repo.Get(ctx, Tenant, "taken", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, taken.Version)

	stored, err := repo.PutMany(ctx, Tenant, []*tradebook.Transaction{
		Trade("fresh", "B1", 1, "2024-03-01"),
		taken,
	}, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh", "taken"}, ids(stored))
	assert.Equal(t, 1, stored[0].Version)
	assert.Equal(t, 2, stored[1].Version)
}

func testListByBook(t *testing.T, repo tradebook.Repository) {
	ctx := context.Background()
	put(t, repo, Trade("t2", "B1", 1, "2024-03-01"), 0)
	put(t, repo, Trade("t1", "B1", 1, "2024-03-01"), 0)
	put(t, repo, Trade("t3", "B1", 1, "2024-03-10"), 0)
	put(t, repo, Trade("t4", "B2", 1, "2024-03-01"), 0)
	v1 := put(t, repo, Trade("t5", "B1", 1, "2024-03-01"), 0)
	amended := v1.Clone()
	amended.Status = tradebook.Amended
	put(t, repo, amended, 1)

	all, err := repo.ListByBook(ctx, Tenant, "B1", date.Date{}, tradebook.TransactionDate)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t5", "t3"}, ids(all))
	for _, tx := range all {
		if tx.TransactionID == "t5" {
			assert.Equal(t, 2, tx.Version, "only the latest version is listed")
		}
	}

	early, err := repo.ListByBook(ctx, Tenant, "B1", date.MustParse("2024-03-02"), tradebook.TransactionDate)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t5"}, ids(early))

	settled, err := repo.ListByBook(ctx, Tenant, "B1", date.MustParse("2024-03-02"), tradebook.SettlementDate)
	require.NoError(t, err)
	assert.Empty(t, settled)

	everything, err := repo.List(ctx, Tenant)
	require.NoError(t, err)
	assert.Len(t, everything, 5)

	none, err := repo.List(ctx, Tenant+1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testClear(t *testing.T, repo tradebook.Repository) {
	ctx := context.Background()
	put(t, repo, Trade("t1", "B1", 1, "2024-03-01"), 0)
	v1 := put(t, repo, Trade("t2", "B2", 1, "2024-03-01"), 0)
	amended := v1.Clone()
	amended.Status = tradebook.Amended
	put(t, repo, amended, 1)

	n, err := repo.Clear(ctx, Tenant, "B2", "B3")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = repo.Get(ctx, Tenant, "t2", 1)
	assert.ErrorIs(t, err, tradebook.ErrNotFound, "history is cleared too")

	n, err = repo.Clear(ctx, Tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	all, err := repo.List(ctx, Tenant)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testDocument(t *testing.T, repo tradebook.Repository) {
	tx := Trade("t1", "B1", 100, "2024-03-01")
	tx.CounterpartyBookID = "CP"
	tx.Charges.Add("Commission", tradebook.Charge{Value: decimal.RequireFromString("1.5"), Currency: "USD", NetAffecting: true, Active: true})
	tx.Links.Add(tradebook.LinkNet, tradebook.Link{LinkedTransactionID: "n1", Active: true})
	tx.Parties.Add("Broker", tradebook.Party{PartyID: "brk", Active: true})
	put(t, repo, tx, 0)

	got, err := repo.Get(context.Background(), Tenant, "t1", 0)
	require.NoError(t, err)
	assert.Equal(t, "CP", got.CounterpartyBookID)
	assert.Equal(t, tx.TransactionDate, got.TransactionDate)
	assert.Equal(t, tx.SettlementDate, got.SettlementDate)
	assert.True(t, got.Price.Equal(tx.Price))
	require.Len(t, got.Charges.Get("Commission"), 1)
	assert.True(t, got.Charges.Get("Commission")[0].NetAffecting)
	assert.Equal(t, []string{"n1"}, got.Links.Targets(tradebook.LinkNet))
	assert.Equal(t, "brk", got.Parties.Get("Broker")[0].PartyID)
}
