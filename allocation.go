package tradebook

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultAllocationType is the allocation type recorded when none is given.
const DefaultAllocationType = "Allocation"

// AllocationSpec describes one child of an allocation. Either Quantity (an
// absolute magnitude) or Weight is set, the same way for every allocation of a
// request.
type AllocationSpec struct {
	BookID             string
	CounterpartyBookID string // CounterpartyBookID defaults to the parent's.
	Quantity           decimal.Decimal
	Weight             decimal.Decimal
	TransactionID      string // TransactionID of the child, generated when empty.
}

// AllocationRequest asks to split a parent transaction into children.
type AllocationRequest struct {
	AssetManagerID int64
	TransactionID  string
	AllocationType string          // AllocationType defaults to DefaultAllocationType.
	TickSize       decimal.Decimal // TickSize rounds proportional quantities, default 1.
	Allocations    []AllocationSpec
}

// Apportion divides total among specs. It returns signed quantities, with the sign
// of total, whose sum is exactly total.
//
// With absolute quantities the magnitudes must add up to |total|. With
// weights, every child but the last gets |total|*w/sum(w) rounded to tick, and
// the last one takes the remainder.
func Apportion(total decimal.Decimal, specs []AllocationSpec, tick decimal.Decimal) ([]decimal.Decimal, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no allocations")
	}
	if total.IsZero() {
		return nil, fmt.Errorf("nothing to allocate")
	}
	if tick.IsZero() {
		tick = decimal.NewFromInt(1)
	}
	if tick.IsNegative() {
		return nil, fmt.Errorf("negative tick size %s", tick)
	}
	sign := decimal.NewFromInt(int64(total.Sign()))
	magnitude := total.Abs()

	absolute := !specs[0].Quantity.IsZero()
	out := make([]decimal.Decimal, len(specs))
	var sum decimal.Decimal

	if absolute {
		for i, s := range specs {
			if s.Quantity.IsZero() {
				return nil, fmt.Errorf("allocation %d has no quantity, cannot mix quantities and weights", i)
			}
			if s.Quantity.IsNegative() {
				return nil, fmt.Errorf("allocation %d has a negative quantity %s", i, s.Quantity)
			}
			sum = sum.Add(s.Quantity)
			out[i] = s.Quantity.Mul(sign)
		}
		if !sum.Equal(magnitude) {
			return nil, fmt.Errorf("allocated %s out of %s", sum, magnitude)
		}
		return out, nil
	}

	var weights decimal.Decimal
	for i, s := range specs {
		if !s.Quantity.IsZero() {
			return nil, fmt.Errorf("allocation %d has a quantity, cannot mix quantities and weights", i)
		}
		if s.Weight.IsNegative() {
			return nil, fmt.Errorf("allocation %d has a negative weight %s", i, s.Weight)
		}
		weights = weights.Add(s.Weight)
	}
	if !weights.IsPositive() {
		return nil, fmt.Errorf("weights sum to %s", weights)
	}
	last := len(specs) - 1
	for i, s := range specs[:last] {
		q := magnitude.Mul(s.Weight).Div(weights).Div(tick).Round(0).Mul(tick)
		if !q.IsPositive() {
			return nil, fmt.Errorf("allocation %d rounds to %s", i, q)
		}
		sum = sum.Add(q)
		out[i] = q.Mul(sign)
	}
	rest := magnitude.Sub(sum)
	if !rest.IsPositive() {
		return nil, fmt.Errorf("allocation %d is left with %s", last, rest)
	}
	out[last] = rest.Mul(sign)
	return out, nil
}

// Allocate splits the parent into children booked to the requested books. The
// parent keeps its status, gains links to the children and stops counting in
// positions. Parent and children are written at once.
func (e *Engine) Allocate(ctx context.Context, req AllocationRequest) (parent *Transaction, children []*Transaction, err error) {
	ctx, span := e.start(ctx, "Allocate", req.AssetManagerID, req.TransactionID)
	defer func() { e.end(span, "allocate", err) }()

	fail := func(reason string, err error) error {
		return &AllocationError{AssetManagerID: req.AssetManagerID, TransactionID: req.TransactionID, Reason: reason, Err: err}
	}
	if len(req.Allocations) == 0 {
		return nil, nil, fail("no allocations", nil)
	}
	ids := make([]string, len(req.Allocations))
	seen := map[string]bool{req.TransactionID: true}
	for i, s := range req.Allocations {
		if s.BookID == "" {
			return nil, nil, fail(fmt.Sprintf("allocation %d has no book", i), nil)
		}
		ids[i] = s.TransactionID
		if ids[i] == "" {
			ids[i] = e.newID()
		}
		if seen[ids[i]] {
			return nil, nil, fail("transaction "+ids[i]+" used twice", nil)
		}
		seen[ids[i]] = true
	}

	unlock, err := e.lock(ctx, req.AssetManagerID, append([]string{req.TransactionID}, ids...)...)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	read, err := e.get(ctx, req.AssetManagerID, req.TransactionID, 0)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case !read.Status.Live():
		return nil, nil, fail("transaction is "+string(read.Status), nil)
	case read.Allocated():
		return nil, nil, fail("transaction is already allocated", nil)
	}
	quantities, err := Apportion(read.Quantity, req.Allocations, req.TickSize)
	if err != nil {
		return nil, nil, fail("invalid allocations", err)
	}

	allocationType := req.AllocationType
	if allocationType == "" {
		allocationType = DefaultAllocationType
	}
	next := read.Clone()
	batch := []*Transaction{next}
	expected := []int{read.Version}
	for i, s := range req.Allocations {
		child := read.Clone()
		child.TransactionID = ids[i]
		child.Version = 0
		child.Status = New
		child.Type = Allocation
		child.AssetBookID = s.BookID
		if s.CounterpartyBookID != "" {
			child.CounterpartyBookID = s.CounterpartyBookID
		}
		child.Quantity = quantities[i]
		child.Links = nil
		child.Links.Add(LinkAllocatedFrom, linkTo(read.TransactionID))
		child.Codes.Add(CodeAllocationType, Code{Value: allocationType, Active: true})
		if err := e.check(ctx, child); err != nil {
			return nil, nil, fail("invalid child "+child.TransactionID, err)
		}
		next.Links.Add(LinkAllocation, linkTo(child.TransactionID))
		batch = append(batch, child)
		expected = append(expected, 0)
	}

	stored, err := e.putMany(ctx, req.AssetManagerID, batch, expected)
	if err != nil {
		return nil, nil, err
	}
	e.committed(ctx, "transaction allocated", stored...)
	return stored[0], stored[1:], nil
}

// Allocations returns the children of an allocated transaction in batch order.
func (e *Engine) Allocations(ctx context.Context, tenant int64, parentID string) (_ []*Transaction, err error) {
	ctx, span := e.start(ctx, "Allocations", tenant, parentID)
	defer func() { e.end(span, "allocations", err) }()

	parent, err := e.get(ctx, tenant, parentID, 0)
	if err != nil {
		return nil, err
	}
	var children []*Transaction
	for _, id := range parent.Links.Targets(LinkAllocation) {
		child, err := e.get(ctx, tenant, id, 0)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}
