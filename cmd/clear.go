package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type clearCmd struct {
	yes bool
}

func (*clearCmd) Name() string     { return "clear" }
func (*clearCmd) Synopsis() string { return "delete transactions" }
func (*clearCmd) Usage() string {
	return `tbk clear -yes [<book_id>...]

  Deletes every transaction of the asset manager, or only those of the given
  books. This cannot be undone.
`
}

func (p *clearCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&p.yes, "yes", false, "Confirm the deletion.")
}

func (p *clearCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !p.yes {
		return usage("refusing to clear transactions without -yes")
	}
	return run(ctx, func(a *app) error {
		n, err := a.engine.Clear(ctx, a.tenant, f.Args()...)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d transactions deleted\n", n)
		return nil
	})
}
