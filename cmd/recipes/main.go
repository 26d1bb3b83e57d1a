// Command recipes collects recipes from the declared source websites into
// the configured database.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"recipes/internal/config"
	"recipes/internal/extracthtml"
	"recipes/internal/logger"
	"recipes/internal/rules"
	"recipes/internal/scrape"
	"recipes/internal/scrape/sources"
	"recipes/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "recipes/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, modules: sources.All()}
	root := newRootCmd(a)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

// app carries what every subcommand shares once the root has loaded config.
type app struct {
	cfgPath string
	debug   bool

	stdout  io.Writer
	stderr  io.Writer
	modules []rules.Source

	cfg *config.Config
	log logger.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "recipes",
		Short:         "Collect recipes from declared source websites.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default ./config.yaml when present)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logs")

	root.AddCommand(
		newCollectCmd(a),
		newMigrateCmd(a),
		newSourcesCmd(a),
		newRegisterCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log, err := logger.New(cfg.Log, a.stderr)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	a.log.Debug("opening store", logger.String("kind", a.cfg.Database.Kind))
	return storage.Open(ctx, storage.Config{Kind: a.cfg.Database.Kind, DSN: a.cfg.Database.DSN})
}

// newFetcher builds the HTTP fetcher for one source. A user agent declared
// by the source wins over the configured one.
func (a *app) newFetcher(opts rules.FetchOptions) extracthtml.Fetcher {
	ua := a.cfg.HTTP.UserAgent
	if strings.TrimSpace(opts.UserAgent) != "" {
		ua = opts.UserAgent
	}
	return extracthtml.NewHTTPFetcher(extracthtml.FetcherOptions{
		UserAgent:        ua,
		RatePerSecond:    a.cfg.HTTP.RatePerSecond,
		CloudflareBypass: opts.CloudflareBypass,
	})
}

func (a *app) newRegistry(st storage.Store, dryRun bool) *scrape.Registry {
	return scrape.NewRegistry(a.modules, st, a.newFetcher, a.log, scrape.Options{
		IngredientWorkers: a.cfg.Ingest.IngredientWorkers,
		SlugMaxProbes:     a.cfg.Ingest.SlugMaxProbes,
		DryRun:            dryRun,
	})
}
