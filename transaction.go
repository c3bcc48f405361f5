package tradebook

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/etnz/tradebook/date"
)

// Transaction is the atomic ledger event, one version of it.
//
// Quantity is signed: inbound actions (Buy, Receive, Acquire, Subscription)
// carry positive quantities, outbound actions negative ones.
type Transaction struct {
	AssetManagerID int64  // AssetManagerID is the owning tenant.
	TransactionID  string // TransactionID is unique within the tenant.
	Version        int    // Version is 0 until persisted, then incremented on every write.

	AssetID            string
	AssetBookID        string
	CounterpartyBookID string

	Action Action
	Type   Type
	Status Status

	Quantity            decimal.Decimal
	Price               decimal.Decimal
	TransactionCurrency string
	SettlementCurrency  string
	TransactionDate     date.Date
	SettlementDate      date.Date

	Charges    Children[Charge]
	Codes      Children[Code]
	Comments   Children[Comment]
	Links      Links
	Parties    Children[Party]
	Rates      Children[Rate]
	References Children[Reference]
}

// TransactionParams lists the fields needed to build a Transaction.
//
// Required: AssetManagerID, TransactionID, AssetID, AssetBookID, Action,
// Quantity, TransactionCurrency, TransactionDate. Everything else is optional:
// Type defaults to Trade, SettlementCurrency to TransactionCurrency and
// SettlementDate to TransactionDate.
type TransactionParams struct {
	AssetManagerID      int64
	TransactionID       string
	AssetID             string
	AssetBookID         string
	CounterpartyBookID  string
	Action              Action
	Type                Type
	Quantity            decimal.Decimal
	Price               decimal.Decimal
	TransactionCurrency string
	SettlementCurrency  string
	TransactionDate     date.Date
	SettlementDate      date.Date

	Charges    Children[Charge]
	Codes      Children[Code]
	Comments   Children[Comment]
	Links      Links
	Parties    Children[Party]
	Rates      Children[Rate]
	References Children[Reference]
}

// NewTransaction builds a New transaction from p and validates it.
func NewTransaction(p TransactionParams) (*Transaction, error) {
	t := &Transaction{
		AssetManagerID:      p.AssetManagerID,
		TransactionID:       p.TransactionID,
		AssetID:             p.AssetID,
		AssetBookID:         p.AssetBookID,
		CounterpartyBookID:  p.CounterpartyBookID,
		Action:              p.Action,
		Type:                p.Type,
		Status:              New,
		Quantity:            p.Quantity,
		Price:               p.Price,
		TransactionCurrency: p.TransactionCurrency,
		SettlementCurrency:  p.SettlementCurrency,
		TransactionDate:     p.TransactionDate,
		SettlementDate:      p.SettlementDate,
		Charges:             p.Charges.clone(),
		Codes:               p.Codes.clone(),
		Comments:            p.Comments.clone(),
		Links:               p.Links.clone(),
		Parties:             p.Parties.clone(),
		Rates:               p.Rates.clone(),
		References:          p.References.clone(),
	}
	if t.Type == "" {
		t.Type = Trade
	}
	if t.SettlementCurrency == "" {
		t.SettlementCurrency = t.TransactionCurrency
	}
	if t.SettlementDate.IsZero() {
		t.SettlementDate = t.TransactionDate
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks every invariant of a transaction and returns a
// ValidationError naming the first offending field.
func (t *Transaction) Validate() error {
	invalid := func(field, reason string) error {
		return &ValidationError{AssetManagerID: t.AssetManagerID, TransactionID: t.TransactionID, Field: field, Reason: reason}
	}
	switch {
	case t.AssetManagerID <= 0:
		return invalid("asset_manager_id", "must be positive")
	case t.TransactionID == "":
		return invalid("transaction_id", "is missing")
	case t.AssetID == "":
		return invalid("asset_id", "is missing")
	case t.AssetBookID == "":
		return invalid("asset_book_id", "is missing")
	case !t.Action.Valid():
		return invalid("transaction_action", "unknown action "+string(t.Action))
	case !t.Type.Valid():
		return invalid("transaction_type", "unknown type "+string(t.Type))
	case !t.Status.Valid():
		return invalid("transaction_status", "unknown status "+string(t.Status))
	case t.Quantity.IsZero():
		return invalid("quantity", "must not be zero")
	case t.Action.Inbound() && t.Quantity.IsNegative():
		return invalid("quantity", "must be positive for "+string(t.Action))
	case !t.Action.Inbound() && t.Quantity.IsPositive():
		return invalid("quantity", "must be negative for "+string(t.Action))
	case t.Price.IsNegative():
		return invalid("price", "must not be negative")
	case t.TransactionDate.IsZero():
		return invalid("transaction_date", "is missing")
	case t.SettlementDate.IsZero():
		return invalid("settlement_date", "is missing")
	case t.SettlementDate.Before(t.TransactionDate):
		return invalid("settlement_date", "is before transaction_date "+t.TransactionDate.String())
	}
	if err := ValidateCurrency(t.TransactionCurrency); err != nil {
		return invalid("transaction_currency", err.Error())
	}
	if err := ValidateCurrency(t.SettlementCurrency); err != nil {
		return invalid("settlement_currency", err.Error())
	}
	for label, charges := range t.Charges {
		for _, c := range charges {
			if c.Currency == "" {
				continue
			}
			if err := ValidateCurrency(c.Currency); err != nil {
				return invalid("charges."+label, err.Error())
			}
		}
	}
	return nil
}

// ValidateCurrency checks that cur is an ISO-4217 currency code.
func ValidateCurrency(cur string) error {
	if cur == "" {
		return &ValidationError{Field: "currency", Reason: "is missing"}
	}
	if money.GetCurrency(cur) == nil {
		return &ValidationError{Field: "currency", Reason: "unknown currency " + cur}
	}
	return nil
}

// Clone returns a deep copy of t.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Charges = t.Charges.clone()
	c.Codes = t.Codes.clone()
	c.Comments = t.Comments.clone()
	c.Links = t.Links.clone()
	c.Parties = t.Parties.clone()
	c.Rates = t.Rates.clone()
	c.References = t.References.clone()
	return &c
}

// Key returns the identity of t within its repository.
func (t *Transaction) Key() Key {
	return Key{AssetManagerID: t.AssetManagerID, TransactionID: t.TransactionID}
}

// Allocated reports whether t is the parent of an allocation batch.
func (t *Transaction) Allocated() bool { return len(t.Links.Targets(LinkAllocation)) > 0 }

// NetTransactionID returns the id of the net transaction t was netted into.
func (t *Transaction) NetTransactionID() (string, bool) { return t.Links.Target(LinkNet) }

// Key identifies a transaction: (asset_manager_id, transaction_id).
type Key struct {
	AssetManagerID int64
	TransactionID  string
}

// directionFor returns the action matching the sign of q, keeping to the
// Deliver/Receive family when deliveries is true.
func directionFor(q decimal.Decimal, deliveries bool) Action {
	switch {
	case deliveries && q.IsNegative():
		return Deliver
	case deliveries:
		return Receive
	case q.IsNegative():
		return Sell
	default:
		return Buy
	}
}
