package cmd

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/renderer"
)

type netCmd struct {
	id          string
	nettingType string
}

func (*netCmd) Name() string     { return "net" }
func (*netCmd) Synopsis() string { return "net transactions into a single one" }
func (*netCmd) Usage() string {
	return `tbk net [-id <net_id>] [-type <netting_type>] <transaction_id>...

  Nets transactions of the same asset, book and settlement into a single net
  transaction. The members become Netted and link to the net transaction.

Usage Examples:
$ tbk net -type Payment t1 t2 t3
`
}

func (p *netCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.id, "id", "", "Id of the net transaction. Generated when empty.")
	f.StringVar(&p.nettingType, "type", tradebook.DefaultNettingType, "Netting type, recorded as a code of the net transaction.")
}

func (p *netCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		return usage("net takes at least two transaction ids")
	}
	return run(ctx, func(a *app) error {
		net, members, err := a.engine.Net(ctx, tradebook.NettingRequest{
			AssetManagerID: a.tenant,
			TransactionIDs: f.Args(),
			NettingType:    p.nettingType,
			TransactionID:  p.id,
		})
		if err != nil {
			return err
		}
		printMarkdown(renderer.NettingSet(net, members))
		return nil
	})
}

type nettingSetCmd struct{}

func (*nettingSetCmd) Name() string     { return "netting-set" }
func (*nettingSetCmd) Synopsis() string { return "display a net transaction and its members" }
func (*nettingSetCmd) Usage() string {
	return `tbk netting-set <net_id>
`
}

func (*nettingSetCmd) SetFlags(*flag.FlagSet) {}

func (*nettingSetCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage("netting-set takes exactly one transaction id")
	}
	return run(ctx, func(a *app) error {
		net, members, err := a.engine.NettingSet(ctx, a.tenant, f.Arg(0))
		if err != nil {
			return err
		}
		printMarkdown(renderer.NettingSet(net, members))
		return nil
	})
}
