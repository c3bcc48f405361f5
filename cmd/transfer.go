package cmd

import (
	"context"
	"flag"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/renderer"
)

type transferCmd struct {
	asset, from, to, wash     string
	quantity, price, currency string
	tradeDate, settlementDate string
}

func (*transferCmd) Name() string     { return "transfer" }
func (*transferCmd) Synopsis() string { return "move an asset between two books" }
func (*transferCmd) Usage() string {
	return `tbk transfer -asset <id> -from <book> -to <book> -wash <book> -q <quantity> [options]

  Moves a positive quantity of an asset from one book to another. It records a
  Deliver out of the source book and a Receive into the target book, both
  against the wash book and linked to each other.

Usage Examples:
$ tbk transfer -asset ACME -from B1 -to B2 -wash W -q 25 -p 10 -c USD
`
}

func (p *transferCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.asset, "asset", "", "Asset id.")
	f.StringVar(&p.from, "from", "", "Source book id.")
	f.StringVar(&p.to, "to", "", "Target book id.")
	f.StringVar(&p.wash, "wash", "", "Wash book id, the counterparty of both legs.")
	f.StringVar(&p.quantity, "q", "", "Positive quantity to move.")
	f.StringVar(&p.price, "p", "0", "Price.")
	f.StringVar(&p.currency, "c", "", "Currency.")
	f.StringVar(&p.tradeDate, "d", "", "Transaction date, defaults to today.")
	f.StringVar(&p.settlementDate, "sd", "", "Settlement date, defaults to the transaction date.")
}

func (p *transferCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	quantity, err := optionalDecimal("q", p.quantity)
	if err != nil || quantity == nil {
		return usage("a valid -q quantity is required")
	}
	price, err := optionalDecimal("p", p.price)
	if err != nil {
		return usage("%v", err)
	}
	if price == nil {
		price = &decimal.Zero
	}
	tradeDate, err := optionalDate("d", p.tradeDate)
	if err != nil {
		return usage("%v", err)
	}
	settlementDate, err := optionalDate("sd", p.settlementDate)
	if err != nil {
		return usage("%v", err)
	}
	return run(ctx, func(a *app) error {
		deliver, receive, err := a.engine.BookTransfer(ctx, tradebook.TransferRequest{
			AssetManagerID:  a.tenant,
			AssetID:         p.asset,
			SourceBookID:    p.from,
			TargetBookID:    p.to,
			WashBookID:      p.wash,
			Quantity:        *quantity,
			Price:           *price,
			Currency:        p.currency,
			TransactionDate: tradeDate,
			SettlementDate:  settlementDate,
		})
		if err != nil {
			return err
		}
		printMarkdown(renderer.Transactions("Book Transfer", []*tradebook.Transaction{deliver, receive}))
		return nil
	})
}
