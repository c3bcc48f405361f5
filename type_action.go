package tradebook

import "fmt"

// Action is the economic direction of a transaction.
type Action string

// Transaction actions.
const (
	Buy          Action = "Buy"
	Sell         Action = "Sell"
	ShortSell    Action = "Short Sell"
	Deliver      Action = "Deliver"
	Receive      Action = "Receive"
	Acquire      Action = "Acquire"
	Remove       Action = "Remove"
	Subscription Action = "Subscription"
	Redemption   Action = "Redemption"
)

// Actions lists every valid Action.
var Actions = []Action{Buy, Sell, ShortSell, Deliver, Receive, Acquire, Remove, Subscription, Redemption}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case Buy, Sell, ShortSell, Deliver, Receive, Acquire, Remove, Subscription, Redemption:
		return true
	}
	return false
}

// Inbound reports whether the action increases the holding of the asset book.
//
// Inbound actions carry positive quantities, outbound ones negative quantities.
func (a Action) Inbound() bool {
	switch a {
	case Buy, Receive, Acquire, Subscription:
		return true
	}
	return false
}

// ParseAction parses a string into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown transaction action: %q", s)
	}
	return a, nil
}

// Type classifies what produced a transaction.
type Type string

// Transaction types.
const (
	Allocation Type = "Allocation"
	Block      Type = "Block"
	Exercise   Type = "Exercise"
	Expiry     Type = "Expiry"
	Journal    Type = "Journal"
	Maturity   Type = "Maturity"
	Net        Type = "Net"
	Novation   Type = "Novation"
	Split      Type = "Split"
	Trade      Type = "Trade"
	Transfer   Type = "Transfer"

	// cash transaction types
	Cashflow Type = "Cashflow"
	Coupon   Type = "Coupon"
	Dividend Type = "Dividend"
	Payment  Type = "Payment"
)

// Valid reports whether t is a known transaction type.
func (t Type) Valid() bool {
	switch t {
	case Allocation, Block, Exercise, Expiry, Journal, Maturity, Net, Novation, Split, Trade, Transfer:
		return true
	}
	return t.IsCash()
}

// IsCash reports whether t is a cash transaction type.
func (t Type) IsCash() bool {
	switch t {
	case Cashflow, Coupon, Dividend, Payment:
		return true
	}
	return false
}

// ParseType parses a string into a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown transaction type: %q", s)
	}
	return t, nil
}
