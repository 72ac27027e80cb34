package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/campaignlens/backend/internal/bootstrap"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/infrastructure/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli carries the persistent flags shared by every subcommand.
type cli struct {
	logLevel string
	compact  bool

	// Overridable in tests.
	loadConfig func() (*config.Config, error)
}

func newRootCmd() *cobra.Command {
	return (&cli{loadConfig: config.Load}).rootCmd()
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "campaignctl",
		Short:         "Operate the LinkedIn campaign analytics pipeline",
		Long:          "campaignctl analyzes posts, correlates them with campaigns, validates engagement data and manages the database schema.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&c.compact, "compact", false, "print JSON on a single line")

	root.AddCommand(
		c.newAnalyzeCmd(),
		c.newCorrelateCmd(),
		c.newReconcileCmd(),
		c.newSyncCmd(),
		c.newEnrichCmd(),
		c.newMigrateCmd(),
		c.newTokenCmd(),
	)
	return root
}

// logger builds the console logger on stderr so stdout stays parseable.
func (c *cli) logger() (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      c.logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
}

// withContainer loads configuration, wires the services and releases them
// once fn returns.
func (c *cli) withContainer(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.Container) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	log, err := c.logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Warn("Error releasing resources", zap.Error(cerr))
		}
	}()
	return fn(ctx, app)
}

// print writes v as JSON.
func (c *cli) print(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if !c.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
