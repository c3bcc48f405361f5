package cmd

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/renderer"
)

type cancelCmd struct{}

func (*cancelCmd) Name() string     { return "cancel" }
func (*cancelCmd) Synopsis() string { return "cancel transactions" }
func (*cancelCmd) Usage() string {
	return `tbk cancel <transaction_id>...

  Cancels transactions. A cancelled transaction no longer counts in positions
  and cannot change anymore.
`
}

func (*cancelCmd) SetFlags(*flag.FlagSet) {}

func (*cancelCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return transition(ctx, f, "cancel", (*tradebook.Engine).Cancel)
}

type novateCmd struct{}

func (*novateCmd) Name() string     { return "novate" }
func (*novateCmd) Synopsis() string { return "novate transactions" }
func (*novateCmd) Usage() string {
	return `tbk novate <transaction_id>...

  Marks transactions as Novated: they have been replaced by a contract with
  another counterparty and no longer count in positions.
`
}

func (*novateCmd) SetFlags(*flag.FlagSet) {}

func (*novateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return transition(ctx, f, "novate", (*tradebook.Engine).Novate)
}

// transition applies op to every transaction named on the command line, and
// stops at the first failure.
func transition(ctx context.Context, f *flag.FlagSet, name string, op func(*tradebook.Engine, context.Context, int64, string) (*tradebook.Transaction, error)) subcommands.ExitStatus {
	if f.NArg() == 0 {
		return usage("%s takes at least one transaction id", name)
	}
	return run(ctx, func(a *app) error {
		var done []*tradebook.Transaction
		for _, id := range f.Args() {
			tx, err := op(a.engine, ctx, a.tenant, id)
			if err != nil {
				return err
			}
			done = append(done, tx)
		}
		printMarkdown(renderer.Transactions("Updated Transactions", done))
		return nil
	})
}
