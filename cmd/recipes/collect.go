package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"recipes/internal/lock"
	"recipes/internal/logger"
	"recipes/internal/scrape"
)

func newCollectCmd(a *app) *cobra.Command {
	var (
		source string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Crawl every registered source (or one with --source) and store new recipes.",
		Long: `Crawl sources and store new recipes.

Without --source every module registered in the database is crawled
concurrently. With --source the named module is crawled whether or not it
is registered. --dry-run never touches the database and prints the collected
records as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.collect(cmd.Context(), source, dryRun)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "crawl only the module with this name")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "collect without saving and print records")
	return cmd
}

func (a *app) collect(ctx context.Context, source string, dryRun bool) error {
	flush := setupMetrics(ctx, a.cfg.Metrics, a.log)
	defer flush()

	start := time.Now()
	var results []scrape.Result

	if dryRun {
		reg := a.newRegistry(nil, true)
		names := reg.Modules()
		if source != "" {
			names = []string{source}
		}
		for _, name := range names {
			res, err := reg.Collect(ctx, name)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
	} else {
		release, err := a.acquireRunLock(ctx)
		if errors.Is(err, lock.ErrHeld) {
			a.log.Warn("another collection is running, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		defer release()

		st, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		reg := a.newRegistry(st, false)
		if source != "" {
			res, err := reg.Collect(ctx, source)
			if err != nil {
				return err
			}
			results = append(results, res)
		} else {
			byName, err := reg.CollectAll(ctx)
			if err != nil {
				return err
			}
			for _, name := range scrape.SortedNames(byName) {
				results = append(results, byName[name])
			}
		}
	}

	failed := 0
	for _, r := range results {
		if r.Outcome == scrape.OutcomeFailed {
			failed++
		}
	}
	a.log.Info("collection finished",
		logger.Int("sources", len(results)),
		logger.Int("failed", failed),
		logger.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)))

	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(results))
	}
	return nil
}

// acquireRunLock takes the redis run lock when it is enabled. The returned
// function releases it.
func (a *app) acquireRunLock(ctx context.Context) (func(), error) {
	lc := a.cfg.Lock
	if !lc.Enabled {
		return func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     lc.RedisAddr,
		Password: lc.RedisPassword,
		DB:       lc.RedisDB,
	})
	l := lock.New(client, lc.Key, lc.TTL)
	if err := l.Acquire(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	a.log.Debug("run lock acquired", logger.String("key", l.Key()))

	return func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn("run lock release failed", logger.String("key", l.Key()), logger.Error(err))
		}
		_ = client.Close()
	}, nil
}
