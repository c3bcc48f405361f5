package tradebook

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/etnz/tradebook/date"
)

// DefaultNettingType is the netting type recorded when none is given.
const DefaultNettingType = "Net"

// NettingRequest asks to net transactions of the same asset and book pairing
// into a single net transaction.
type NettingRequest struct {
	AssetManagerID int64
	TransactionIDs []string
	NettingType    string // NettingType defaults to DefaultNettingType.
	TransactionID  string // TransactionID of the net transaction, generated when empty.
}

// Net nets the requested transactions. The members move to Netted and link to
// the new net transaction, all in one repository write.
func (e *Engine) Net(ctx context.Context, req NettingRequest) (net *Transaction, members []*Transaction, err error) {
	ctx, span := e.start(ctx, "Net", req.AssetManagerID, req.TransactionID)
	defer func() { e.end(span, "net", err) }()

	fail := func(reason string, err error) error {
		return &NettingError{AssetManagerID: req.AssetManagerID, TransactionIDs: req.TransactionIDs, Reason: reason, Err: err}
	}
	if len(req.TransactionIDs) == 0 {
		return nil, nil, fail("no transactions to net", nil)
	}
	seen := make(map[string]bool, len(req.TransactionIDs))
	for _, id := range req.TransactionIDs {
		if seen[id] {
			return nil, nil, fail("transaction "+id+" listed twice", nil)
		}
		seen[id] = true
	}
	netID := req.TransactionID
	if netID == "" {
		netID = e.newID()
	}

	unlock, err := e.lock(ctx, req.AssetManagerID, append([]string{netID}, req.TransactionIDs...)...)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	read := make([]*Transaction, len(req.TransactionIDs))
	for i, id := range req.TransactionIDs {
		m, err := e.get(ctx, req.AssetManagerID, id, 0)
		if errors.Is(err, ErrNotFound) {
			return nil, nil, fail("transaction "+id+" not found", err)
		}
		if err != nil {
			return nil, nil, err
		}
		read[i] = m
	}

	nettingType := req.NettingType
	if nettingType == "" {
		nettingType = DefaultNettingType
	}
	net, err = NetTransaction(req.AssetManagerID, netID, nettingType, read)
	if err != nil {
		return nil, nil, err
	}

	batch := []*Transaction{net}
	expected := []int{0}
	for _, m := range read {
		next := m.Clone()
		if err := next.Apply(EventNet); err != nil {
			return nil, nil, fail("transaction "+m.TransactionID+" cannot be netted", err)
		}
		next.Links.Add(LinkNet, linkTo(netID))
		batch = append(batch, next)
		expected = append(expected, m.Version)
	}
	stored, err := e.putMany(ctx, req.AssetManagerID, batch, expected)
	if err != nil {
		return nil, nil, err
	}
	e.committed(ctx, "transactions netted", stored...)
	return stored[0], stored[1:], nil
}

// NetTransaction builds the New net transaction of members, checking that
// they can be netted together. Members are not modified.
//
// The net quantity is the sum of the signed quantities, its price the
// quantity weighted average price, and its dates the latest member dates.
func NetTransaction(tenant int64, id, nettingType string, members []*Transaction) (*Transaction, error) {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.TransactionID
	}
	fail := func(reason string) error {
		return &NettingError{AssetManagerID: tenant, TransactionIDs: ids, Reason: reason}
	}
	if len(members) == 0 {
		return nil, fail("no transactions to net")
	}

	first := members[0]
	var (
		quantity, notional, volume decimal.Decimal
		tradeDates, settleDates    []date.Date
		deliveries                 = true
	)
	for _, m := range members {
		switch {
		case m.AssetManagerID != tenant:
			return nil, fail(fmt.Sprintf("transaction %s belongs to asset manager %d", m.TransactionID, m.AssetManagerID))
		case !m.Status.Live():
			return nil, fail(fmt.Sprintf("transaction %s is %s", m.TransactionID, m.Status))
		case m.Allocated():
			return nil, fail("transaction " + m.TransactionID + " is allocated")
		case m.AssetID != first.AssetID:
			return nil, fail(fmt.Sprintf("transaction %s is on asset %s, not %s", m.TransactionID, m.AssetID, first.AssetID))
		case m.AssetBookID != first.AssetBookID || m.CounterpartyBookID != first.CounterpartyBookID:
			return nil, fail(fmt.Sprintf("transaction %s is between books %s/%s, not %s/%s", m.TransactionID,
				m.AssetBookID, m.CounterpartyBookID, first.AssetBookID, first.CounterpartyBookID))
		case m.TransactionCurrency != first.TransactionCurrency:
			return nil, fail(fmt.Sprintf("transaction %s is in %s, not %s", m.TransactionID, m.TransactionCurrency, first.TransactionCurrency))
		}
		quantity = quantity.Add(m.Quantity)
		volume = volume.Add(m.Quantity.Abs())
		notional = notional.Add(m.Quantity.Abs().Mul(m.Price))
		tradeDates = append(tradeDates, m.TransactionDate)
		settleDates = append(settleDates, m.SettlementDate)
		if m.Action != Deliver && m.Action != Receive {
			deliveries = false
		}
	}
	if quantity.IsZero() {
		return nil, fail("net quantity is zero")
	}

	net := &Transaction{
		AssetManagerID:      tenant,
		TransactionID:       id,
		AssetID:             first.AssetID,
		AssetBookID:         first.AssetBookID,
		CounterpartyBookID:  first.CounterpartyBookID,
		Action:              directionFor(quantity, deliveries),
		Type:                Net,
		Status:              New,
		Quantity:            quantity,
		Price:               notional.Div(volume),
		TransactionCurrency: first.TransactionCurrency,
		SettlementCurrency:  first.SettlementCurrency,
		TransactionDate:     date.Max(tradeDates...),
		SettlementDate:      date.Max(settleDates...),
	}
	net.Codes.Add(CodeNettingType, Code{Value: nettingType, Active: true})
	for _, m := range members {
		net.Links.Add(LinkNetMember, linkTo(m.TransactionID))
	}
	if err := net.Validate(); err != nil {
		return nil, &NettingError{AssetManagerID: tenant, TransactionIDs: ids, Reason: "invalid net transaction", Err: err}
	}
	return net, nil
}

// NettingSet returns the net transaction and its members, starting from the
// net transaction or any of its members.
func (e *Engine) NettingSet(ctx context.Context, tenant int64, id string) (net *Transaction, members []*Transaction, err error) {
	ctx, span := e.start(ctx, "NettingSet", tenant, id)
	defer func() { e.end(span, "netting set", err) }()

	tx, err := e.get(ctx, tenant, id, 0)
	if err != nil {
		return nil, nil, err
	}
	switch netID, ok := tx.NetTransactionID(); {
	case ok:
		if net, err = e.get(ctx, tenant, netID, 0); err != nil {
			return nil, nil, err
		}
	case len(tx.Links.Targets(LinkNetMember)) > 0:
		net = tx
	default:
		return nil, nil, &NettingError{AssetManagerID: tenant, TransactionIDs: []string{id}, Reason: "not part of a netting set"}
	}
	for _, mid := range net.Links.Targets(LinkNetMember) {
		m, err := e.get(ctx, tenant, mid, 0)
		if err != nil {
			return nil, nil, err
		}
		members = append(members, m)
	}
	return net, members, nil
}
