package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/date"
	"github.com/etnz/tradebook/storetest"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "tradebook.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) tradebook.Repository { return open(t) })
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tradebook.db")
	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.Put(ctx, storetest.Tenant, storetest.Trade("t1", "B1", 5, "2024-03-01"), 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, storetest.Tenant, "t1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
}

func TestStore_BookTransferIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	_, err := s.Put(ctx, storetest.Tenant, storetest.Trade("existing", "B", 1, "2024-03-01"), 0)
	require.NoError(t, err)

	ids := []string{"out", "existing"}
	e := tradebook.NewEngine(s, tradebook.WithIDs(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))
	_, _, err = e.BookTransfer(ctx, tradebook.TransferRequest{
		AssetManagerID:  storetest.Tenant,
		AssetID:         "ACME",
		SourceBookID:    "A",
		TargetBookID:    "B",
		WashBookID:      "W",
		Quantity:        decimal.NewFromInt(75),
		Price:           decimal.RequireFromString("10.50"),
		Currency:        "USD",
		TransactionDate: date.MustParse("2024-03-01"),
	})
	var conflict *tradebook.VersionConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)

	_, err = s.Get(ctx, storetest.Tenant, "out", 0)
	assert.ErrorIs(t, err, tradebook.ErrNotFound)
}

func TestStore_NettingScenario(t *testing.T) {
	ctx := context.Background()
	e := tradebook.NewEngine(open(t))
	buy := storetest.Trade("t1", "B1", 100, "2024-03-01")
	sell := storetest.Trade("t2", "B1", -40, "2024-03-01")
	sell.Action = tradebook.Sell
	for _, tx := range []*tradebook.Transaction{buy, sell} {
		_, err := e.Create(ctx, tx)
		require.NoError(t, err)
	}
	net, _, err := e.Net(ctx, tradebook.NettingRequest{AssetManagerID: storetest.Tenant, TransactionIDs: []string{"t1", "t2"}})
	require.NoError(t, err)
	assert.True(t, net.Quantity.Equal(decimal.NewFromInt(60)))

	positions, err := e.Positions(ctx, storetest.Tenant, "B1", date.Date{}, tradebook.TransactionDate)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Quantity.Equal(decimal.NewFromInt(60)))
}
