package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sakif/snippet-store/internal/config"
	"github.com/sakif/snippet-store/internal/database"
	"github.com/sakif/snippet-store/internal/repository"
	"github.com/sakif/snippet-store/internal/repository/sqlstore"
)

// env is what every subcommand works against: the open database, its
// repositories and a logger writing to stderr.
type env struct {
	db     *database.DB
	repos  repository.Repositories
	logger *slog.Logger
}

type rootOptions struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "storectl",
		Short:        "Administer a snippet-store database",
		Long:         "storectl migrates the schema, manages users, inspects the moderation queue and purges old data.",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log database activity to stderr")

	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newUsersCmd(opts))
	root.AddCommand(newReportsCmd(opts))
	root.AddCommand(newStatsCmd(opts))
	root.AddCommand(newPurgeCmd(opts))
	return root
}

// run opens the configured database, runs fn, and closes it. Unless
// migrating, the schema must already be in place.
func (o *rootOptions) run(cmd *cobra.Command, needSchema bool, fn func(ctx context.Context, e *env) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := database.Open(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	if needSchema {
		version, dirty, err := db.SchemaVersion()
		if err != nil {
			return err
		}
		if version == 0 {
			return fmt.Errorf("database has no schema; run `storectl migrate up` first")
		}
		if dirty {
			return fmt.Errorf("schema version %d is dirty; fix the failed migration first", version)
		}
	}

	return fn(ctx, &env{db: db, repos: sqlstore.New(db, logger).Repositories(), logger: logger})
}

// newTable returns a table writer that renders to the command's stdout.
func newTable(cmd *cobra.Command) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	return t
}

func outputJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func checkFormat(format string) error {
	switch format {
	case "table", "json":
		return nil
	}
	return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
}
