package tradebook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnz/tradebook/date"
)

func TestEngine_Net(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	buy := trade("t1", "B1", Buy, "100", "10")
	sell := trade("t2", "B1", Sell, "-40", "12.5")
	sell.TransactionDate = date.MustParse("2024-03-02")
	sell.SettlementDate = date.MustParse("2024-03-05")
	mustCreate(t, e, buy, sell)

	net, members, err := e.Net(ctx, NettingRequest{AssetManagerID: tenant, TransactionIDs: []string{"t1", "t2"}, TransactionID: "n1"})
	require.NoError(t, err)

	assert.Equal(t, "n1", net.TransactionID)
	assert.Equal(t, Net, net.Type)
	assert.Equal(t, New, net.Status)
	assert.Equal(t, Buy, net.Action)
	assertDecimal(t, "60", net.Quantity)
	// (100*10 + 40*12.5) / 140
	assertDecimal(t, "1500", net.Price.Mul(dec("140")).Round(8))
	assert.Equal(t, date.MustParse("2024-03-02"), net.TransactionDate)
	assert.Equal(t, date.MustParse("2024-03-05"), net.SettlementDate)
	assert.Equal(t, []string{"t1", "t2"}, net.Links.Targets(LinkNetMember))
	assert.Equal(t, DefaultNettingType, net.Codes.Get(CodeNettingType)[0].Value)

	require.Len(t, members, 2)
	for _, m := range members {
		assert.Equal(t, Netted, m.Status)
		assert.Equal(t, 2, m.Version)
		id, ok := m.NetTransactionID()
		assert.True(t, ok)
		assert.Equal(t, "n1", id)
	}

	positions, err := e.Positions(ctx, tenant, "B1", date.Date{}, TransactionDate)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assertDecimal(t, "60", positions[0].Quantity)

	// membership is navigable from either side
	for _, id := range []string{"n1", "t1", "t2"} {
		gotNet, gotMembers, err := e.NettingSet(ctx, tenant, id)
		require.NoError(t, err)
		assert.Equal(t, "n1", gotNet.TransactionID)
		require.Len(t, gotMembers, 2)
		assert.Equal(t, "t1", gotMembers[0].TransactionID)
		assert.Equal(t, "t2", gotMembers[1].TransactionID)
	}

	_, _, err = e.Net(ctx, NettingRequest{AssetManagerID: tenant, TransactionIDs: []string{"t1"}})
	var netting *NettingError
	assert.True(t, errors.As(err, &netting), "netted members cannot be netted again")
}

func TestEngine_NetDeliveries(t *testing.T) {
	e, _ := newEngine(t)
	out := trade("d1", "B1", Deliver, "-10", "1")
	in := trade("r1", "B1", Receive, "4", "1")
	mustCreate(t, e, out, in)
	net, _, err := e.Net(context.Background(), NettingRequest{AssetManagerID: tenant, TransactionIDs: []string{"d1", "r1"}, NettingType: "Settlement"})
	require.NoError(t, err)
	assert.Equal(t, Deliver, net.Action)
	assertDecimal(t, "-6", net.Quantity)
	assert.Equal(t, "Settlement", net.Codes.Get(CodeNettingType)[0].Value)
}

func TestEngine_NetPreconditions(t *testing.T) {
	e, store := newEngine(t)
	ctx := context.Background()

	otherAsset := trade("asset", "B1", Buy, "1", "1")
	otherAsset.AssetID = "OTHER"
	otherBook := trade("book", "B2", Buy, "1", "1")
	otherCounterparty := trade("cpty", "B1", Buy, "1", "1")
	otherCounterparty.CounterpartyBookID = "X"
	otherCurrency := trade("ccy", "B1", Buy, "1", "1")
	otherCurrency.TransactionCurrency = "EUR"
	cancelled := trade("cancelled", "B1", Buy, "1", "1")
	allocated := trade("allocated", "B1", Buy, "1", "1")
	allocated.Links.Add(LinkAllocation, linkTo("child"))
	mustCreate(t, e,
		trade("base", "B1", Buy, "10", "1"),
		trade("flat", "B1", Sell, "-10", "1"),
		otherAsset, otherBook, otherCounterparty, otherCurrency, cancelled, allocated,
	)
	_, err := e.Cancel(ctx, tenant, "cancelled")
	require.NoError(t, err)
	foreign := trade("foreign", "B1", Buy, "1", "1")
	foreign.AssetManagerID = 2
	mustCreate(t, e, foreign)

	tests := []struct {
		name string
		ids  []string
	}{
		{"empty", nil},
		{"duplicate", []string{"base", "base"}},
		{"missing", []string{"base", "missing"}},
		{"other tenant", []string{"base", "foreign"}},
		{"terminal", []string{"base", "cancelled"}},
		{"allocated", []string{"base", "allocated"}},
		{"other asset", []string{"base", "asset"}},
		{"other book", []string{"base", "book"}},
		{"other counterparty", []string{"base", "cpty"}},
		{"other currency", []string{"base", "ccy"}},
		{"zero sum", []string{"base", "flat"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := e.Net(ctx, NettingRequest{AssetManagerID: tenant, TransactionIDs: tc.ids, TransactionID: "net-" + tc.name})
			var netting *NettingError
			require.True(t, errors.As(err, &netting), "got %v", err)
			assert.Equal(t, tenant, netting.AssetManagerID)

			base, err := store.Get(ctx, tenant, "base", 0)
			require.NoError(t, err)
			assert.Equal(t, 1, base.Version, "a rejected netting writes nothing")
		})
	}
}

func TestEngine_NettingSetOfPlainTransaction(t *testing.T) {
	e, _ := newEngine(t)
	mustCreate(t, e, trade("t1", "B1", Buy, "1", "1"))
	_, _, err := e.NettingSet(context.Background(), tenant, "t1")
	var netting *NettingError
	assert.True(t, errors.As(err, &netting))
}
