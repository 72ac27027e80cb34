package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/infrastructure/migration"
	"github.com/campaignlens/backend/internal/infrastructure/persistence"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// migrationStatus is the output of migrate version.
type migrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Applied bool `json:"applied"`
}

func (c *cli) newMigrateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: "Applies the SQL migrations to postgres. Without --path the migrations embedded in the binary are used. " +
			"For the sqlite driver, up creates the tables from the models instead.",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "migrations directory (default: embedded migrations)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withMigrator(cmd, path, func(m *migration.Migrator) error { return m.Up() })
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withMigrator(cmd, path, func(m *migration.Migrator) error { return m.Down() })
			},
		},
		&cobra.Command{
			Use:   "step <n>",
			Short: "Apply n migrations (negative rolls back)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				return c.withMigrator(cmd, path, func(m *migration.Migrator) error { return m.Steps(n) })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the applied migration version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.withMigrator(cmd, path, func(m *migration.Migrator) error {
					v, dirty, err := m.Version()
					if err != nil {
						return err
					}
					return c.print(cmd.OutOrStdout(), migrationStatus{Version: v, Dirty: dirty, Applied: v > 0})
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the migration version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return c.withMigrator(cmd, path, func(m *migration.Migrator) error { return m.Force(v) })
			},
		},
		&cobra.Command{
			Use:   "create <name> [description]",
			Short: "Write the next numbered migration pair",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if path == "" {
					return errors.New("--path is required to create migrations")
				}
				var desc string
				if len(args) > 1 {
					desc = args[1]
				}
				mf, err := migration.CreateMigration(path, args[0], desc)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), mf)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the available migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				var fsys fs.FS = migration.Files()
				if path != "" {
					fsys = os.DirFS(path)
				}
				entries, err := migration.ListMigrations(fsys)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), entries)
			},
		},
	)
	return cmd
}

// withMigrator opens the configured postgres database and runs fn with a
// migrator over it. On sqlite only up is supported and maps to AutoMigrate.
func (c *cli) withMigrator(cmd *cobra.Command, path string, fn func(*migration.Migrator) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	log, err := c.logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Database.Driver == persistence.DriverSQLite {
		if cmd.Name() != "up" {
			return fmt.Errorf("migrate %s requires the postgres driver", cmd.Name())
		}
		return autoMigrate(cmd.Context(), &cfg.Database, log)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(cmd.Context()); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, path, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			log.Warn("Closing migrator failed", zap.Error(cerr))
		}
	}()
	return fn(m)
}

func autoMigrate(ctx context.Context, cfg *config.DatabaseConfig, log *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := persistence.NewDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.AutoMigrate(ctx); err != nil {
		return err
	}
	log.Info("SQLite schema created", zap.String("path", cfg.SQLitePath))
	return nil
}
