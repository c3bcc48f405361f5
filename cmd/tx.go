package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/renderer"
)

type txCmd struct {
	book   string
	status string
	head   int
	tail   int
	json   bool
}

func (*txCmd) Name() string     { return "tx" }
func (*txCmd) Synopsis() string { return "list transactions" }
func (*txCmd) Usage() string {
	return `tbk tx [-book <id>] [-status <status>] [-head <n>] [-tail <n>] [-json]

  Lists the latest version of the asset manager's transactions, ordered by
  transaction date, with options for filtering and limiting the output.
`
}

func (p *txCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.book, "book", "", "Only list transactions of this asset book.")
	f.StringVar(&p.status, "status", "", "Only list transactions with this status.")
	f.IntVar(&p.head, "head", 0, "Show only the first N transactions.")
	f.IntVar(&p.tail, "tail", 0, "Show only the last N transactions.")
	f.BoolVar(&p.json, "json", false, "Print the transactions as JSONL, one per line.")
}

func (p *txCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if p.head > 0 && p.tail > 0 {
		return usage("-head and -tail flags cannot be used together")
	}
	var status tradebook.Status
	if p.status != "" {
		var err error
		if status, err = tradebook.ParseStatus(p.status); err != nil {
			return usage("%v", err)
		}
	}
	return run(ctx, func(a *app) error {
		all, err := a.engine.Transactions(ctx, a.tenant)
		if err != nil {
			return err
		}
		var transactions []*tradebook.Transaction
		for _, tx := range all {
			if (p.book == "" || tx.AssetBookID == p.book) && (status == "" || tx.Status == status) {
				transactions = append(transactions, tx)
			}
		}
		if p.head > 0 && len(transactions) > p.head {
			transactions = transactions[:p.head]
		}
		if p.tail > 0 && len(transactions) > p.tail {
			transactions = transactions[len(transactions)-p.tail:]
		}
		if p.json {
			return tradebook.EncodeTransactions(stdout, transactions)
		}

		title := fmt.Sprintf("Transactions of %d", a.tenant)
		if p.book != "" {
			title = "Transactions of " + p.book
		}
		printMarkdown(renderer.Transactions(title, transactions))
		return nil
	})
}
