package tradebook

import (
	"maps"
	"slices"

	"github.com/shopspring/decimal"
)

// Charge is a fee or tax attached to a transaction.
type Charge struct {
	Value        decimal.Decimal `json:"charge_value"`
	Currency     string          `json:"currency"`
	NetAffecting bool            `json:"net_affecting"`
	Active       bool            `json:"active"`
}

// Code is a free-form classification code.
type Code struct {
	Value  string `json:"code_value"`
	Active bool   `json:"active"`
}

// Comment is a note attached to a transaction.
type Comment struct {
	Value  string `json:"comment_value"`
	Active bool   `json:"active"`
}

// Link points to another transaction of the same tenant.
type Link struct {
	LinkedTransactionID string `json:"linked_transaction_id"`
	Active              bool   `json:"active"`
}

// Party references a party involved in the transaction (broker, custodian...).
type Party struct {
	PartyID string `json:"party_id"`
	Active  bool   `json:"active"`
}

// Rate is a rate attached to a transaction.
type Rate struct {
	Value  decimal.Decimal `json:"rate_value"`
	Active bool            `json:"active"`
}

// Reference is an external identifier of the transaction.
type Reference struct {
	Value  string `json:"reference_value"`
	Active bool   `json:"active"`
}

// Children maps a type label to the children of that type, e.g. "Commission"
// to a Charge. Children are owned by their transaction.
type Children[T any] map[string][]T

// Add appends items to the label's collection, creating it if needed.
func (c *Children[T]) Add(label string, items ...T) {
	if len(items) == 0 {
		return
	}
	if *c == nil {
		*c = make(Children[T])
	}
	(*c)[label] = append((*c)[label], items...)
}

// Get returns the children with that label.
func (c Children[T]) Get(label string) []T { return c[label] }

// Labels returns the labels in lexical order.
func (c Children[T]) Labels() []string { return slices.Sorted(maps.Keys(c)) }

func (c Children[T]) clone() Children[T] {
	if c == nil {
		return nil
	}
	out := make(Children[T], len(c))
	for k, v := range c {
		out[k] = slices.Clone(v)
	}
	return out
}

// Well known link labels maintained by the engine.
const (
	LinkNet            = "Net"            // member -> net transaction
	LinkNetMember      = "Net Member"     // net transaction -> members
	LinkAllocation     = "Allocation"     // parent -> children
	LinkAllocatedFrom  = "Allocated From" // child -> parent
	LinkTransferLeg    = "Transfer"       // transfer leg -> opposite leg
	CodeNettingType    = "Netting Type"
	CodeAllocationType = "Allocation Type"
)

// Links maps a link type to the linked transactions. A link type may hold a
// single link or a set of links.
type Links map[string][]Link

// Add merges links into the label's collection by target: a link to a
// transaction already present under that label replaces it, any other link is
// appended.
func (l *Links) Add(label string, links ...Link) {
	if len(links) == 0 {
		return
	}
	if *l == nil {
		*l = make(Links)
	}
	current := (*l)[label]
	for _, link := range links {
		i := slices.IndexFunc(current, func(x Link) bool { return x.LinkedTransactionID == link.LinkedTransactionID })
		if i >= 0 {
			current[i] = link
		} else {
			current = append(current, link)
		}
	}
	(*l)[label] = current
}

// Targets returns the ids of the active links under label, in order.
func (l Links) Targets(label string) []string {
	var ids []string
	for _, link := range l[label] {
		if link.Active {
			ids = append(ids, link.LinkedTransactionID)
		}
	}
	return ids
}

// Target returns the first active link target under label.
func (l Links) Target(label string) (string, bool) {
	ids := l.Targets(label)
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// Labels returns the link types in lexical order.
func (l Links) Labels() []string { return slices.Sorted(maps.Keys(l)) }

func (l Links) clone() Links {
	if l == nil {
		return nil
	}
	out := make(Links, len(l))
	for k, v := range l {
		out[k] = slices.Clone(v)
	}
	return out
}

// linkTo returns an active link to id.
func linkTo(id string) Link { return Link{LinkedTransactionID: id, Active: true} }
