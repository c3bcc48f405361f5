package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/etnz/tradebook"
)

type importCmd struct{}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "create transactions from a JSONL file" }
func (*importCmd) Usage() string {
	return `tbk import <file.jsonl>

  Creates every transaction of a JSONL file, as written by 'tbk tx -json'.
  Each one is stored as a New transaction at version 1 of the current asset
  manager; the import stops at the first rejected transaction.
`
}

func (*importCmd) SetFlags(*flag.FlagSet) {}

func (*importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage("import takes exactly one file")
	}
	return run(ctx, func(a *app) error {
		file, err := os.Open(f.Arg(0))
		if err != nil {
			return err
		}
		defer file.Close()
		txs, err := tradebook.DecodeTransactions(file)
		if err != nil {
			return err
		}
		for _, tx := range txs {
			tx.AssetManagerID = a.tenant
			if _, err := a.engine.Create(ctx, tx); err != nil {
				return err
			}
		}
		fmt.Fprintf(stdout, "%d transactions imported\n", len(txs))
		return nil
	})
}
