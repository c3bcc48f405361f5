package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/renderer"
)

type allocateCmd struct {
	allocationType string
	tick           string
}

func (*allocateCmd) Name() string     { return "allocate" }
func (*allocateCmd) Synopsis() string { return "split a transaction across books" }
func (*allocateCmd) Usage() string {
	return `tbk allocate [-type <allocation_type>] [-tick <size>] <transaction_id> <book>=<quantity>|<book>=<weight>%...

  Splits a transaction into children booked to other books. Either every
  allocation is an absolute quantity, and they add up to the transaction
  quantity, or every allocation is a weight, and quantities are rounded to the
  tick size with the last book taking the remainder.

Usage Examples:
$ tbk allocate t1 FUND1=60 FUND2=40
$ tbk allocate -tick 10 t1 FUND1=1% FUND2=2%
`
}

func (p *allocateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.allocationType, "type", tradebook.DefaultAllocationType, "Allocation type, recorded as a code of the children.")
	f.StringVar(&p.tick, "tick", "1", "Tick size proportional quantities are rounded to.")
}

func (p *allocateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		return usage("allocate takes a transaction id and at least one allocation")
	}
	tick, err := decimal.NewFromString(p.tick)
	if err != nil {
		return usage("invalid -tick %q: %v", p.tick, err)
	}
	specs := make([]tradebook.AllocationSpec, 0, f.NArg()-1)
	for _, arg := range f.Args()[1:] {
		spec, err := parseAllocation(arg)
		if err != nil {
			return usage("%v", err)
		}
		specs = append(specs, spec)
	}
	return run(ctx, func(a *app) error {
		parent, children, err := a.engine.Allocate(ctx, tradebook.AllocationRequest{
			AssetManagerID: a.tenant,
			TransactionID:  f.Arg(0),
			AllocationType: p.allocationType,
			TickSize:       tick,
			Allocations:    specs,
		})
		if err != nil {
			return err
		}
		printMarkdown(renderer.Transactions("Allocations of "+parent.TransactionID, children))
		return nil
	})
}

// parseAllocation reads book=quantity or book=weight%.
func parseAllocation(s string) (tradebook.AllocationSpec, error) {
	book, value, ok := strings.Cut(s, "=")
	if !ok || book == "" || value == "" {
		return tradebook.AllocationSpec{}, fmt.Errorf("allocation %q is not book=quantity or book=weight%%", s)
	}
	weighted := strings.HasSuffix(value, "%")
	d, err := decimal.NewFromString(strings.TrimSuffix(value, "%"))
	if err != nil {
		return tradebook.AllocationSpec{}, fmt.Errorf("allocation %q: %w", s, err)
	}
	if weighted {
		return tradebook.AllocationSpec{BookID: book, Weight: d}, nil
	}
	return tradebook.AllocationSpec{BookID: book, Quantity: d}, nil
}

type allocationsCmd struct{}

func (*allocationsCmd) Name() string     { return "allocations" }
func (*allocationsCmd) Synopsis() string { return "list the children of an allocated transaction" }
func (*allocationsCmd) Usage() string {
	return `tbk allocations <transaction_id>
`
}

func (*allocationsCmd) SetFlags(*flag.FlagSet) {}

func (*allocationsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage("allocations takes exactly one transaction id")
	}
	return run(ctx, func(a *app) error {
		children, err := a.engine.Allocations(ctx, a.tenant, f.Arg(0))
		if err != nil {
			return err
		}
		printMarkdown(renderer.Transactions("Allocations of "+f.Arg(0), children))
		return nil
	})
}
