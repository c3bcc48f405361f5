package cmd

import (
	"flag"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/etnz/tradebook/date"
)

// optionalDecimal parses s, returning nil for an empty string.
func optionalDecimal(name, s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid -%s %q: %w", name, s, err)
	}
	return &d, nil
}

// optionalDate parses s, returning the zero date for an empty string.
func optionalDate(name, s string) (date.Date, error) {
	if s == "" {
		return date.Date{}, nil
	}
	d, err := date.Parse(s)
	if err != nil {
		return date.Date{}, fmt.Errorf("invalid -%s %q: %w", name, s, err)
	}
	return d, nil
}

// labeled collects repeated "label=value" flags.
type labeled struct {
	labels []string
	values []string
}

func (l *labeled) String() string {
	var parts []string
	for i := range l.labels {
		parts = append(parts, l.labels[i]+"="+l.values[i])
	}
	return strings.Join(parts, ",")
}

func (l *labeled) Set(s string) error {
	label, value, ok := strings.Cut(s, "=")
	if !ok || label == "" {
		return fmt.Errorf("%q is not label=value", s)
	}
	l.labels = append(l.labels, label)
	l.values = append(l.values, value)
	return nil
}

// each calls f for every label and value, in order.
func (l *labeled) each(f func(label, value string)) {
	for i := range l.labels {
		f(l.labels[i], l.values[i])
	}
}

// childFlags declares the flags adding children to a transaction.
type childFlags struct {
	comments, codes, references, parties labeled
}

func (c *childFlags) SetFlags(f *flag.FlagSet) {
	f.Var(&c.comments, "comment", "Add a comment, as label=text. Repeatable.")
	f.Var(&c.codes, "code", "Add a code, as label=value. Repeatable.")
	f.Var(&c.references, "ref", "Add a reference, as label=value. Repeatable.")
	f.Var(&c.parties, "party", "Add a party, as label=party_id. Repeatable.")
}
