package tradebook

import "fmt"

// Status is the lifecycle state of a transaction version.
type Status string

// Transaction statuses.
const (
	New        Status = "New"
	Amended    Status = "Amended"
	Superseded Status = "Superseded"
	Cancelled  Status = "Cancelled"
	Netted     Status = "Netted"
	Novated    Status = "Novated"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case New, Amended, Superseded, Cancelled, Netted, Novated:
		return true
	}
	return false
}

// Terminal reports whether s is one of the absorbing states Cancelled, Netted
// or Novated.
func (s Status) Terminal() bool {
	switch s {
	case Cancelled, Netted, Novated:
		return true
	}
	return false
}

// Live reports whether a transaction in status s still accepts lifecycle
// events.
func (s Status) Live() bool { return s == New || s == Amended }

// ParseStatus parses a string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown transaction status: %q", s)
	}
	return st, nil
}

// AccountingType is the date basis used to aggregate positions.
type AccountingType string

// Accounting types.
const (
	TransactionDate AccountingType = "Transaction Date"
	SettlementDate  AccountingType = "Settlement Date"
)

// ParseAccountingType parses a string into an AccountingType.
//
// The short forms "trade" and "settlement" are accepted as well.
func ParseAccountingType(s string) (AccountingType, error) {
	switch s {
	case string(TransactionDate), "trade", "transaction":
		return TransactionDate, nil
	case string(SettlementDate), "settlement":
		return SettlementDate, nil
	default:
		return "", fmt.Errorf("unknown accounting type: %q", s)
	}
}
