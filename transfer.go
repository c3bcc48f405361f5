package tradebook

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/etnz/tradebook/date"
)

// TransferRequest asks to move a quantity of an asset from one book to
// another through a wash book.
type TransferRequest struct {
	AssetManagerID  int64
	AssetID         string
	SourceBookID    string
	TargetBookID    string
	WashBookID      string
	Quantity        decimal.Decimal // Quantity is the positive quantity moved.
	Price           decimal.Decimal
	Currency        string
	TransactionDate date.Date // TransactionDate defaults to today.
	SettlementDate  date.Date // SettlementDate defaults to TransactionDate.
	DeliverID       string    // DeliverID of the source leg, generated when empty.
	ReceiveID       string    // ReceiveID of the target leg, generated when empty.
}

func (r TransferRequest) validate() error {
	invalid := func(field, reason string) error {
		return &ValidationError{AssetManagerID: r.AssetManagerID, Field: field, Reason: reason}
	}
	switch {
	case r.AssetID == "":
		return invalid("asset_id", "is missing")
	case r.SourceBookID == "":
		return invalid("source_book_id", "is missing")
	case r.TargetBookID == "":
		return invalid("target_book_id", "is missing")
	case r.WashBookID == "":
		return invalid("wash_book_id", "is missing")
	case r.SourceBookID == r.TargetBookID:
		return invalid("target_book_id", "is the source book")
	case r.WashBookID == r.SourceBookID || r.WashBookID == r.TargetBookID:
		return invalid("wash_book_id", "is the source or target book")
	case !r.Quantity.IsPositive():
		return invalid("quantity", "must be positive")
	case r.Price.IsNegative():
		return invalid("price", "must not be negative")
	}
	if err := ValidateCurrency(r.Currency); err != nil {
		return invalid("currency", err.(*ValidationError).Reason)
	}
	return nil
}

// BookTransfer moves the quantity from the source to the target book: a
// Deliver out of the source and a Receive into the target, both against the
// wash book and linked to each other. Both legs are written at once.
func (e *Engine) BookTransfer(ctx context.Context, req TransferRequest) (deliver, receive *Transaction, err error) {
	ctx, span := e.start(ctx, "BookTransfer", req.AssetManagerID, "")
	defer func() { e.end(span, "book transfer", err) }()

	if err := req.validate(); err != nil {
		return nil, nil, err
	}
	on := req.TransactionDate
	if on.IsZero() {
		on = e.today()
	}
	deliverID, receiveID := req.DeliverID, req.ReceiveID
	if deliverID == "" {
		deliverID = e.newID()
	}
	if receiveID == "" {
		receiveID = e.newID()
	}

	leg := func(id, book string, action Action, q decimal.Decimal, other string) (*Transaction, error) {
		p := TransactionParams{
			AssetManagerID:      req.AssetManagerID,
			TransactionID:       id,
			AssetID:             req.AssetID,
			AssetBookID:         book,
			CounterpartyBookID:  req.WashBookID,
			Action:              action,
			Type:                Transfer,
			Quantity:            q,
			Price:               req.Price,
			TransactionCurrency: req.Currency,
			TransactionDate:     on,
			SettlementDate:      req.SettlementDate,
		}
		p.Links.Add(LinkTransferLeg, linkTo(other))
		tx, err := NewTransaction(p)
		if err != nil {
			return nil, err
		}
		return tx, e.check(ctx, tx)
	}
	out, err := leg(deliverID, req.SourceBookID, Deliver, req.Quantity.Neg(), receiveID)
	if err != nil {
		return nil, nil, err
	}
	in, err := leg(receiveID, req.TargetBookID, Receive, req.Quantity, deliverID)
	if err != nil {
		return nil, nil, err
	}

	unlock, err := e.lock(ctx, req.AssetManagerID, deliverID, receiveID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()
	stored, err := e.putMany(ctx, req.AssetManagerID, []*Transaction{out, in}, []int{0, 0})
	if err != nil {
		return nil, nil, err
	}
	e.committed(ctx, "book transfer", stored...)
	return stored[0], stored[1], nil
}
