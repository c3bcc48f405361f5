package cmd

import (
	"flag"

	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"

	"github.com/etnz/tradebook"
)

// Completion describes the command line for shell completion: global flags,
// subcommands and their flags.
func Completion() *complete.Command {
	root := &complete.Command{
		Sub:   map[string]*complete.Command{},
		Flags: predictors(flag.CommandLine, nil),
	}
	for _, cmds := range Commands() {
		for _, c := range cmds {
			fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
			c.SetFlags(fs)
			root.Sub[c.Name()] = &complete.Command{Flags: predictors(fs, flagValues[c.Name()])}
		}
	}
	for _, name := range []string{"help", "flags", "commands"} {
		root.Sub[name] = &complete.Command{}
	}
	return root
}

// flagValues lists the known values of enumerated flags, by command.
var flagValues = map[string]map[string]predict.Set{
	"create": {"action": actions(), "type": types()},
	"tx":     {"status": statuses()},
}

func predictors(fs *flag.FlagSet, values map[string]predict.Set) map[string]complete.Predictor {
	flags := map[string]complete.Predictor{}
	fs.VisitAll(func(f *flag.Flag) {
		switch {
		case values[f.Name] != nil:
			flags[f.Name] = values[f.Name]
		case f.Name == "config":
			flags[f.Name] = predict.Files("*")
		case isBool(f):
			flags[f.Name] = predict.Nothing
		default:
			flags[f.Name] = predict.Something
		}
	})
	return flags
}

func isBool(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

func actions() (s predict.Set) {
	for _, a := range tradebook.Actions {
		s = append(s, string(a))
	}
	return s
}

func types() predict.Set {
	return predict.Set{
		string(tradebook.Allocation), string(tradebook.Block), string(tradebook.Exercise), string(tradebook.Expiry),
		string(tradebook.Journal), string(tradebook.Maturity), string(tradebook.Net), string(tradebook.Novation),
		string(tradebook.Split), string(tradebook.Trade), string(tradebook.Transfer),
		string(tradebook.Cashflow), string(tradebook.Coupon), string(tradebook.Dividend), string(tradebook.Payment),
	}
}

func statuses() predict.Set {
	return predict.Set{
		string(tradebook.New), string(tradebook.Amended), string(tradebook.Superseded),
		string(tradebook.Cancelled), string(tradebook.Netted), string(tradebook.Novated),
	}
}
