package cmd

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/renderer"
)

type amendCmd struct {
	version                      int
	counterparty                 string
	quantity, price              string
	currency, settlementCurrency string
	tradeDate, settlementDate    string
	children                     childFlags
}

func (*amendCmd) Name() string     { return "amend" }
func (*amendCmd) Synopsis() string { return "change fields of a transaction" }
func (*amendCmd) Usage() string {
	return `tbk amend -v <version> [options] <transaction_id>

  Stores a new Amended version of a transaction with the given fields changed.
  -v is the version the change is based on: the amendment is rejected if the
  transaction has changed since. Children flags add to or replace the
  children with the same label.

Usage Examples:
$ tbk amend -v 1 -q 120 -comment Desk="late booking" t1
`
}

func (p *amendCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&p.version, "v", 0, "Version the change is based on.")
	f.StringVar(&p.counterparty, "cp", "", "New counterparty book id.")
	f.StringVar(&p.quantity, "q", "", "New signed quantity.")
	f.StringVar(&p.price, "p", "", "New price.")
	f.StringVar(&p.currency, "c", "", "New transaction currency.")
	f.StringVar(&p.settlementCurrency, "sc", "", "New settlement currency.")
	f.StringVar(&p.tradeDate, "d", "", "New transaction date.")
	f.StringVar(&p.settlementDate, "sd", "", "New settlement date.")
	p.children.SetFlags(f)
}

func (p *amendCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage("amend takes exactly one transaction id")
	}
	if p.version <= 0 {
		return usage("-v is required")
	}
	var (
		patch tradebook.Patch
		err   error
	)
	if patch.Quantity, err = optionalDecimal("q", p.quantity); err != nil {
		return usage("%v", err)
	}
	if patch.Price, err = optionalDecimal("p", p.price); err != nil {
		return usage("%v", err)
	}
	if p.counterparty != "" {
		patch.CounterpartyBookID = &p.counterparty
	}
	if p.currency != "" {
		patch.TransactionCurrency = &p.currency
	}
	if p.settlementCurrency != "" {
		patch.SettlementCurrency = &p.settlementCurrency
	}
	tradeDate, err := optionalDate("d", p.tradeDate)
	if err != nil {
		return usage("%v", err)
	}
	if !tradeDate.IsZero() {
		patch.TransactionDate = &tradeDate
	}
	settlementDate, err := optionalDate("sd", p.settlementDate)
	if err != nil {
		return usage("%v", err)
	}
	if !settlementDate.IsZero() {
		patch.SettlementDate = &settlementDate
	}
	patch.Comments = comments(&p.children.comments)
	patch.Codes = codes(&p.children.codes)
	patch.References = references(&p.children.references)
	patch.Parties = parties(&p.children.parties)

	return run(ctx, func(a *app) error {
		tx, err := a.engine.Partial(ctx, a.tenant, f.Arg(0), p.version, patch)
		if err != nil {
			return err
		}
		printMarkdown(renderer.Transaction(tx))
		return nil
	})
}
