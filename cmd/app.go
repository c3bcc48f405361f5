// Package cmd implements the tbk command line application to manage a
// transaction ledger.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/config"
	"github.com/etnz/tradebook/lineage"
	"github.com/etnz/tradebook/lock"
	"github.com/etnz/tradebook/logging"
	"github.com/etnz/tradebook/refdata"
	"github.com/etnz/tradebook/session"
	"github.com/etnz/tradebook/store/postgres"
	"github.com/etnz/tradebook/store/sqlite"
)

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var (
	configFile   = flag.String("config", "", "Path to a configuration file (yaml, json, toml).")
	assetManager = flag.Int64("am", 0, "Asset manager id. Overrides asset_manager_id from the configuration.")
	raw          = flag.Bool("raw", false, "Print markdown as is instead of rendering it for the terminal.")
)

// stdout and stderr are replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	for group, cmds := range Commands() {
		for _, cmd := range cmds {
			c.Register(cmd, group)
		}
	}
}

// Commands returns the subcommands by group.
func Commands() map[string][]subcommands.Command {
	return map[string][]subcommands.Command{
		"transactions": {&createCmd{}, &showCmd{}, &txCmd{}, &amendCmd{}, &cancelCmd{}, &novateCmd{}, &importCmd{}},
		"batches":      {&netCmd{}, &nettingSetCmd{}, &allocateCmd{}, &allocationsCmd{}, &transferCmd{}},
		"books":        {&positionsCmd{}, &clearCmd{}},
	}
}

// app is the engine and its collaborators, wired from the configuration.
type app struct {
	tenant  int64
	engine  *tradebook.Engine
	logger  *zap.Logger
	closers []func()
}

// open loads the configuration and wires the engine.
func open(ctx context.Context) (a *app, err error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level})
	if err != nil {
		return nil, err
	}
	a = &app{tenant: cfg.AssetManagerID, logger: logger}
	if *assetManager != 0 {
		a.tenant = *assetManager
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	repo, err := a.repository(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	opts := []tradebook.Option{
		tradebook.WithLogger(logger),
		tradebook.WithTimeout(cfg.Store.Timeout),
		tradebook.WithLocker(tradebook.NewKeyedLocker()),
	}

	if cfg.RefData.URL != "" {
		client := http.DefaultClient
		if cfg.Auth.TokenURL != "" {
			s := session.New(session.Config{
				TokenURL:      cfg.Auth.TokenURL,
				ClientID:      cfg.Auth.ClientID,
				ClientSecret:  cfg.Auth.ClientSecret,
				Username:      cfg.Auth.Username,
				Password:      cfg.Auth.Password,
				RefreshPeriod: cfg.Auth.RefreshPeriod,
			}, session.WithLogger(logger))
			if err := s.Init(ctx); err != nil {
				return nil, err
			}
			a.closers = append(a.closers, s.Teardown)
			client = s.HTTPClient()
		}
		checker := refdata.NewHTTP(cfg.RefData.URL,
			refdata.WithClient(client),
			refdata.WithRateLimit(rate.Limit(cfg.RefData.Rate), cfg.RefData.Burst),
		)
		opts = append(opts, tradebook.WithRefData(refdata.NewCached(checker, cfg.RefData.TTL)))
	}

	if cfg.Redis.Addr != "" {
		l, err := lock.Dial(ctx, cfg.Redis.Addr, lock.WithExpiry(cfg.Redis.LockExpiry), lock.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, tradebook.WithLocker(l))
	}

	if cfg.Neo4j.URI != "" {
		client, err := lineage.Dial(ctx, lineage.Options{
			URI:      cfg.Neo4j.URI,
			Database: cfg.Neo4j.Database,
			Username: cfg.Neo4j.Username,
			Password: cfg.Neo4j.Password,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { client.Close(context.Background()) })
		opts = append(opts, tradebook.WithListener(lineage.NewSink(client, logger)))
	}

	a.engine = tradebook.NewEngine(repo, opts...)
	return a, nil
}

func (a *app) repository(ctx context.Context, cfg config.Store) (tradebook.Repository, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { s.Close() })
		return s, nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.DSN, postgres.Options{MaxIdleConns: cfg.MaxIdleConns, MaxOpenConns: cfg.MaxOpenConns})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { s.Close() })
		return s, nil
	default:
		a.logger.Warn("using the memory store, nothing will be saved")
		return tradebook.NewMemoryStore(), nil
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.logger.Sync()
}

// run opens the app, runs f and reports its error.
func run(ctx context.Context, f func(a *app) error) subcommands.ExitStatus {
	a, err := open(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.close()
	if err := f(a); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// printMarkdown renders md for the terminal.
func printMarkdown(md string) {
	if *raw {
		fmt.Fprint(stdout, md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err != nil {
		fmt.Fprint(stdout, md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Fprint(stdout, md)
		return
	}
	fmt.Fprint(stdout, out)
}

// usage reports a usage error.
func usage(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(stderr, "Error: "+format+"\n", args...)
	return subcommands.ExitUsageError
}
