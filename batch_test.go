package tradebook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnz/tradebook/date"
)

func allocatedBlock(t *testing.T) *Engine {
	t.Helper()
	e, _ := newEngine(t, WithIDs(sequence("c1", "c2", "c3")))
	mustCreate(t, e, trade("block", "BLOCK", Buy, "1000", "10"))
	_, _, err := e.Allocate(context.Background(), AllocationRequest{
		AssetManagerID: tenant,
		TransactionID:  "block",
		Allocations:    weights("50", "30", "20"),
	})
	require.NoError(t, err)
	return e
}

func TestEngine_AllocatedParentIsFrozen(t *testing.T) {
	e := allocatedBlock(t)
	ctx := context.Background()

	q := dec("2000")
	book := "OTHER"
	tests := map[string]func() error{
		"partial quantity": func() error { _, err := e.Partial(ctx, tenant, "block", 0, Patch{Quantity: &q}); return err },
		"partial link": func() error {
			var p Patch
			p.Links.Add(LinkAllocation, linkTo("c4"))
			_, err := e.Partial(ctx, tenant, "block", 0, p)
			return err
		},
		"amend dropping links": func() error {
			cur, err := e.Retrieve(ctx, tenant, "block", 0)
			require.NoError(t, err)
			cur.Links = nil
			_, err = e.Amend(ctx, cur)
			return err
		},
		"amend book": func() error {
			cur, err := e.Retrieve(ctx, tenant, "block", 0)
			require.NoError(t, err)
			cur.AssetBookID = book
			_, err = e.Amend(ctx, cur)
			return err
		},
		"cancel": func() error { _, err := e.Cancel(ctx, tenant, "block"); return err },
		"novate": func() error { _, err := e.Novate(ctx, tenant, "block"); return err },
	}
	for name, change := range tests {
		t.Run(name, func(t *testing.T) {
			var allocation *AllocationError
			assert.True(t, errors.As(change(), &allocation))
		})
	}

	// nothing changed
	children, err := e.Allocations(ctx, tenant, "block")
	require.NoError(t, err)
	assert.Len(t, children, 3)
	positions, err := e.Positions(ctx, tenant, "BLOCK", date.Date{}, TransactionDate)
	require.NoError(t, err)
	assert.Empty(t, positions)

	// economic fields other than asset, book and quantity can still change
	price := dec("10.5")
	amended, err := e.Partial(ctx, tenant, "block", 0, Patch{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, Amended, amended.Status)
	assert.Equal(t, []string{"c1", "c2", "c3"}, amended.Links.Targets(LinkAllocation))
}

func TestEngine_AllocationChildIsFrozen(t *testing.T) {
	e := allocatedBlock(t)
	ctx := context.Background()

	q := dec("600")
	_, err := e.Partial(ctx, tenant, "c1", 0, Patch{Quantity: &q})
	var allocation *AllocationError
	assert.True(t, errors.As(err, &allocation))

	_, err = e.Cancel(ctx, tenant, "c2")
	assert.True(t, errors.As(err, &allocation))

	var sum = dec("0")
	children, err := e.Allocations(ctx, tenant, "block")
	require.NoError(t, err)
	for _, c := range children {
		sum = sum.Add(c.Quantity)
	}
	assertDecimal(t, "1000", sum)
}

func TestEngine_NetTransactionIsFrozen(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	mustCreate(t, e, trade("t1", "B1", Buy, "100", "10"), trade("t2", "B1", Sell, "-40", "10"))
	_, _, err := e.Net(ctx, NettingRequest{AssetManagerID: tenant, TransactionIDs: []string{"t1", "t2"}, TransactionID: "n1"})
	require.NoError(t, err)

	var netting *NettingError
	q := dec("70")
	_, err = e.Partial(ctx, tenant, "n1", 0, Patch{Quantity: &q})
	assert.True(t, errors.As(err, &netting))

	cur, err := e.Retrieve(ctx, tenant, "n1", 0)
	require.NoError(t, err)
	cur.Links = nil
	_, err = e.Amend(ctx, cur)
	assert.True(t, errors.As(err, &netting))

	_, err = e.Cancel(ctx, tenant, "n1")
	assert.True(t, errors.As(err, &netting), "cancelling the net transaction would drop its members from positions")

	positions, err := e.Positions(ctx, tenant, "B1", date.Date{}, TransactionDate)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assertDecimal(t, "60", positions[0].Quantity)

	_, members, err := e.NettingSet(ctx, tenant, "n1")
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestEngine_TransferLegIsFrozen(t *testing.T) {
	e, _ := newEngine(t, WithIDs(sequence("out", "in")))
	ctx := context.Background()
	_, _, err := e.BookTransfer(ctx, transferRequest())
	require.NoError(t, err)

	var invalid *ValidationError
	q := dec("-70")
	_, err = e.Partial(ctx, tenant, "out", 0, Patch{Quantity: &q})
	assert.True(t, errors.As(err, &invalid))
	_, err = e.Cancel(ctx, tenant, "in")
	assert.True(t, errors.As(err, &invalid))
}

func TestEngine_EngineLinksAreReserved(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	mustCreate(t, e, trade("t1", "B1", Buy, "100", "10"))

	var p Patch
	p.Links.Add(LinkNet, linkTo("n9"))
	_, err := e.Partial(ctx, tenant, "t1", 0, p)
	var invalid *ValidationError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "links", invalid.Field)

	// other links are free
	p = Patch{}
	p.Links.Add("Related", linkTo("t0"))
	amended, err := e.Partial(ctx, tenant, "t1", 0, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"t0"}, amended.Links.Targets("Related"))

	q := dec("120")
	amended, err = e.Partial(ctx, tenant, "t1", 0, Patch{Quantity: &q})
	require.NoError(t, err)
	assertDecimal(t, "120", amended.Quantity)
}
