package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"sniper-scanner/internal/db"

	"github.com/spf13/cobra"
)

type migrator interface {
	Up(ctx context.Context) (int, error)
	Down(ctx context.Context, steps int) (int, error)
	Version(ctx context.Context) (int64, string, error)
}

var openMigratorFunc = func(ctx context.Context, dsn string) (migrator, func(), error) {
	pool, err := initPostgresFunc(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	m, err := db.NewMigrator(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return m, pool.Close, nil
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the alert journal schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), func(m migrator) error {
					n, err := m.Up(cmd.Context())
					if err != nil {
						return err
					}
					return report(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
				})
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back the latest migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n <= 0 {
						return fmt.Errorf("steps must be a positive integer, got %q", args[0])
					}
					steps = n
				}
				return withMigrator(cmd.Context(), func(m migrator) error {
					n, err := m.Down(cmd.Context(), steps)
					if err != nil {
						return err
					}
					return report(cmd.OutOrStdout(), "rolled back %d migration(s)\n", n)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the latest applied migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), func(m migrator) error {
					v, name, err := m.Version(cmd.Context())
					if err != nil {
						return err
					}
					if v == 0 {
						return report(cmd.OutOrStdout(), "no migrations applied\n")
					}
					return report(cmd.OutOrStdout(), "version %d (%s)\n", v, name)
				})
			},
		},
	)
	return cmd
}

func withMigrator(ctx context.Context, fn func(migrator) error) error {
	cfg := loadConfig()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	m, closeFn, err := openMigratorFunc(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(m)
}

func report(out io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(out, format, args...)
	return err
}
