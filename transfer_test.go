package tradebook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnz/tradebook/date"
)

func transferRequest() TransferRequest {
	return TransferRequest{
		AssetManagerID: tenant,
		AssetID:        "ACME",
		SourceBookID:   "A",
		TargetBookID:   "B",
		WashBookID:     "W",
		Quantity:       dec("75"),
		Price:          dec("10.50"),
		Currency:       "USD",
	}
}

func TestEngine_BookTransfer(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC) }
	e, _ := newEngine(t, WithIDs(sequence("out", "in")), WithClock(clock))
	ctx := context.Background()

	deliver, receive, err := e.BookTransfer(ctx, transferRequest())
	require.NoError(t, err)

	assert.Equal(t, Deliver, deliver.Action)
	assert.Equal(t, "A", deliver.AssetBookID)
	assertDecimal(t, "-75", deliver.Quantity)
	assert.Equal(t, Receive, receive.Action)
	assert.Equal(t, "B", receive.AssetBookID)
	assertDecimal(t, "75", receive.Quantity)
	for _, leg := range []*Transaction{deliver, receive} {
		assert.Equal(t, Transfer, leg.Type)
		assert.Equal(t, New, leg.Status)
		assert.Equal(t, "W", leg.CounterpartyBookID)
		assertDecimal(t, "10.5", leg.Price)
		assert.Equal(t, "USD", leg.SettlementCurrency)
		assert.Equal(t, date.New(2024, 6, 3), leg.TransactionDate)
		assert.Equal(t, date.New(2024, 6, 3), leg.SettlementDate)
	}
	other, _ := deliver.Links.Target(LinkTransferLeg)
	assert.Equal(t, "in", other)
	other, _ = receive.Links.Target(LinkTransferLeg)
	assert.Equal(t, "out", other)

	for book, want := range map[string]string{"A": "-75", "B": "75"} {
		positions, err := e.Positions(ctx, tenant, book, date.Date{}, SettlementDate)
		require.NoError(t, err)
		require.Len(t, positions, 1)
		assertDecimal(t, want, positions[0].Quantity)
	}
	positions, err := e.Positions(ctx, tenant, "W", date.Date{}, TransactionDate)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestEngine_BookTransferIsAtomic(t *testing.T) {
	e, store := newEngine(t, WithIDs(sequence("out", "existing")))
	ctx := context.Background()
	mustCreate(t, e, trade("existing", "B", Buy, "1", "1"))

	_, _, err := e.BookTransfer(ctx, transferRequest())
	var conflict *VersionConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, "existing", conflict.TransactionID)

	_, err = store.Get(ctx, tenant, "out", 0)
	assert.ErrorIs(t, err, ErrNotFound, "the first leg must not be written alone")
	existing, err := store.Get(ctx, tenant, "existing", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, existing.Version)
}

func TestEngine_BookTransferValidation(t *testing.T) {
	e, _ := newEngine(t)
	tests := []struct {
		name  string
		edit  func(*TransferRequest)
		field string
	}{
		{"no asset", func(r *TransferRequest) { r.AssetID = "" }, "asset_id"},
		{"same books", func(r *TransferRequest) { r.TargetBookID = "A" }, "target_book_id"},
		{"wash is source", func(r *TransferRequest) { r.WashBookID = "A" }, "wash_book_id"},
		{"wash is target", func(r *TransferRequest) { r.WashBookID = "B" }, "wash_book_id"},
		{"zero quantity", func(r *TransferRequest) { r.Quantity = dec("0") }, "quantity"},
		{"negative quantity", func(r *TransferRequest) { r.Quantity = dec("-1") }, "quantity"},
		{"negative price", func(r *TransferRequest) { r.Price = dec("-1") }, "price"},
		{"unknown currency", func(r *TransferRequest) { r.Currency = "ZZZ" }, "currency"},
		{"settles before trade", func(r *TransferRequest) {
			r.TransactionDate = date.MustParse("2024-06-03")
			r.SettlementDate = date.MustParse("2024-06-01")
		}, "settlement_date"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := transferRequest()
			tc.edit(&req)
			_, _, err := e.BookTransfer(context.Background(), req)
			var invalid *ValidationError
			require.True(t, errors.As(err, &invalid), "got %v", err)
			assert.Equal(t, tc.field, invalid.Field)
		})
	}
}
