package cmd

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/renderer"
)

type showCmd struct {
	version int
	json    bool
}

func (*showCmd) Name() string     { return "show" }
func (*showCmd) Synopsis() string { return "display a transaction" }
func (*showCmd) Usage() string {
	return `tbk show [-v <version>] [-json] <transaction_id>

  Displays the latest version of a transaction, or the given version from its
  history.
`
}

func (p *showCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&p.version, "v", 0, "Version to display, the latest by default.")
	f.BoolVar(&p.json, "json", false, "Print the transaction as JSON.")
}

func (p *showCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage("show takes exactly one transaction id")
	}
	return run(ctx, func(a *app) error {
		tx, err := a.engine.Retrieve(ctx, a.tenant, f.Arg(0), p.version)
		if err != nil {
			return err
		}
		if p.json {
			return tradebook.EncodeTransaction(stdout, tx)
		}
		printMarkdown(renderer.Transaction(tx))
		return nil
	})
}
