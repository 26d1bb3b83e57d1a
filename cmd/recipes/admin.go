package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"recipes/internal/logger"
	"recipes/internal/storage"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and seed the recipe categories.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(st storage.Store) error {
				if err := st.EnsureSchema(cmd.Context()); err != nil {
					return fmt.Errorf("ensure schema: %w", err)
				}
				cats := storage.DefaultCategories()
				if err := st.SeedCategories(cmd.Context(), cats); err != nil {
					return fmt.Errorf("seed categories: %w", err)
				}
				a.log.Info("schema ready", logger.String("kind", a.cfg.Database.Kind), logger.Int("categories", len(cats)))
				fmt.Fprintln(a.stdout, "schema ready")
				return nil
			})
		},
	}
}

func newSourcesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List declared source modules and whether each is registered.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(st storage.Store) error {
				stored, err := st.ListSources(cmd.Context())
				if err != nil {
					return err
				}
				byName := make(map[string]storage.Source, len(stored))
				for _, s := range stored {
					byName[s.Name] = s
				}

				t := table.NewWriter()
				t.SetOutputMirror(a.stdout)
				t.AppendHeader(table.Row{"Source", "URL", "Registered", "ID"})
				for _, m := range a.modules {
					s, ok := byName[m.Name]
					if !ok {
						t.AppendRow(table.Row{m.Name, m.URL, "no", ""})
						continue
					}
					t.AppendRow(table.Row{m.Name, s.URL, "yes", s.ID})
					delete(byName, m.Name)
				}

				// Stored rows without a module are never crawled.
				orphans := make([]string, 0, len(byName))
				for name := range byName {
					orphans = append(orphans, name)
				}
				sort.Strings(orphans)
				for _, name := range orphans {
					s := byName[name]
					t.AppendRow(table.Row{s.Name, s.URL, "no module", s.ID})
				}

				t.SetStyle(table.StyleRounded)
				t.Render()
				return nil
			})
		},
	}
}

func newRegisterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register NAME",
		Short: "Whitelist a declared source module for collection.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(st storage.Store) error {
				src, err := a.newRegistry(st, false).Register(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				a.log.Info("source registered", logger.String("source", src.Name), logger.Int64("id", src.ID))
				fmt.Fprintf(a.stdout, "registered %q (id %d, %s)\n", src.Name, src.ID, src.URL)
				return nil
			})
		},
	}
}

func (a *app) withStore(ctx context.Context, fn func(storage.Store) error) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}
