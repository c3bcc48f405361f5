package cmd

import (
	"context"
	"flag"

	"github.com/google/subcommands"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/date"
	"github.com/etnz/tradebook/renderer"
)

type createCmd struct {
	id, asset, book, counterparty string
	action, txType                string
	quantity, price               string
	currency, settlementCurrency  string
	tradeDate, settlementDate     string
	children                      childFlags
}

func (*createCmd) Name() string     { return "create" }
func (*createCmd) Synopsis() string { return "record a new transaction" }
func (*createCmd) Usage() string {
	return `tbk create -asset <id> -book <id> -action <action> -q <quantity> -c <currency> [options]

  Records a New transaction. Quantities are signed: buys and receipts are
  positive, sells and deliveries negative. The transaction id is generated
  unless -id is given.

Usage Examples:
$ tbk create -asset ACME -book B1 -action Buy -q 100 -p 10.25 -c USD -d 2024-03-01
`
}

func (p *createCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.id, "id", "", "Transaction id. Generated when empty.")
	f.StringVar(&p.asset, "asset", "", "Asset id.")
	f.StringVar(&p.book, "book", "", "Asset book id.")
	f.StringVar(&p.counterparty, "cp", "", "Counterparty book id.")
	f.StringVar(&p.action, "action", "Buy", "Action: Buy, Sell, Short Sell, Deliver, Receive, Acquire, Remove, Subscription, Redemption.")
	f.StringVar(&p.txType, "type", "Trade", "Transaction type.")
	f.StringVar(&p.quantity, "q", "", "Signed quantity.")
	f.StringVar(&p.price, "p", "0", "Price.")
	f.StringVar(&p.currency, "c", "", "Transaction currency.")
	f.StringVar(&p.settlementCurrency, "sc", "", "Settlement currency, defaults to the transaction currency.")
	f.StringVar(&p.tradeDate, "d", "", "Transaction date, defaults to today.")
	f.StringVar(&p.settlementDate, "sd", "", "Settlement date, defaults to the transaction date.")
	p.children.SetFlags(f)
}

func (p *createCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	action, err := tradebook.ParseAction(p.action)
	if err != nil {
		return usage("%v", err)
	}
	txType, err := tradebook.ParseType(p.txType)
	if err != nil {
		return usage("%v", err)
	}
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
	if tradeDate.IsZero() {
		tradeDate = date.Today()
	}
	settlementDate, err := optionalDate("sd", p.settlementDate)
	if err != nil {
		return usage("%v", err)
	}

	id := p.id
	if id == "" {
		id = uuid.NewString()
	}

	return run(ctx, func(a *app) error {
		tx, err := tradebook.NewTransaction(tradebook.TransactionParams{
			AssetManagerID:      a.tenant,
			TransactionID:       id,
			AssetID:             p.asset,
			AssetBookID:         p.book,
			CounterpartyBookID:  p.counterparty,
			Action:              action,
			Type:                txType,
			Quantity:            *quantity,
			Price:               *price,
			TransactionCurrency: p.currency,
			SettlementCurrency:  p.settlementCurrency,
			TransactionDate:     tradeDate,
			SettlementDate:      settlementDate,
			Comments:            comments(&p.children.comments),
			Codes:               codes(&p.children.codes),
			References:          references(&p.children.references),
			Parties:             parties(&p.children.parties),
		})
		if err != nil {
			return err
		}
		stored, err := a.engine.Create(ctx, tx)
		if err != nil {
			return err
		}
		printMarkdown(renderer.Transaction(stored))
		return nil
	})
}

func comments(l *labeled) (c tradebook.Children[tradebook.Comment]) {
	l.each(func(label, value string) { c.Add(label, tradebook.Comment{Value: value, Active: true}) })
	return c
}

func codes(l *labeled) (c tradebook.Children[tradebook.Code]) {
	l.each(func(label, value string) { c.Add(label, tradebook.Code{Value: value, Active: true}) })
	return c
}

func references(l *labeled) (c tradebook.Children[tradebook.Reference]) {
	l.each(func(label, value string) { c.Add(label, tradebook.Reference{Value: value, Active: true}) })
	return c
}

func parties(l *labeled) (c tradebook.Children[tradebook.Party]) {
	l.each(func(label, value string) { c.Add(label, tradebook.Party{PartyID: value, Active: true}) })
	return c
}
