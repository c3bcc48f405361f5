package cmd

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/date"
	"github.com/etnz/tradebook/renderer"
)

type positionsCmd struct {
	asOf       string
	settlement bool
}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "display the positions of one or more books" }
func (*positionsCmd) Usage() string {
	return `tbk positions [-asof <date>] [-settlement] [<book_id>...]

  Displays the quantity held per asset in a book, as of a date. With several
  book ids, or none for every book of the asset manager, positions are listed
  per book. Positions are computed on transaction dates unless -settlement is
  set.
`
}

func (p *positionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.asOf, "asof", "", "Date of the positions, defaults to today.")
	f.BoolVar(&p.settlement, "settlement", false, "Compute positions on settlement dates.")
}

func (p *positionsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	asOf, err := optionalDate("asof", p.asOf)
	if err != nil {
		return usage("%v", err)
	}
	if asOf.IsZero() {
		asOf = date.Today()
	}
	acct := tradebook.TransactionDate
	if p.settlement {
		acct = tradebook.SettlementDate
	}
	books := f.Args()
	return run(ctx, func(a *app) error {
		if len(books) == 1 {
			positions, err := a.engine.Positions(ctx, a.tenant, books[0], asOf, acct)
			if err != nil {
				return err
			}
			printMarkdown(renderer.Positions(books[0], asOf, acct, positions))
			return nil
		}
		positions, err := a.engine.PositionsByAssetManager(ctx, a.tenant, asOf, acct, books...)
		if err != nil {
			return err
		}
		printMarkdown(renderer.BookPositions(books, asOf, acct, positions))
		return nil
	})
}
