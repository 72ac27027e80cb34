package main

import (
	"context"
	"errors"

	"github.com/campaignlens/backend/internal/bootstrap"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// queued is the output of enrich queue.
type queued struct {
	Queued int `json:"queued"`
}

func (c *cli) newEnrichCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Inspect and work the profile enrichment queue",
	}
	cmd.AddCommand(c.newEnrichStatsCmd(), c.newEnrichQueueCmd(), c.newEnrichProcessCmd())
	return cmd
}

func (c *cli) newEnrichStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show enrichment backlog counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withContainer(cmd, func(ctx context.Context, app *bootstrap.Container) error {
				stats, err := app.Enrichment.Stats(ctx)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func (c *cli) newEnrichQueueCmd() *cobra.Command {
	var (
		priority int
		auto     bool
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "queue [person-id]...",
		Short: "Queue persons for enrichment",
		Long:  "Queues the given persons, or with --auto the high-value persons that have never been enriched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if auto == (len(args) > 0) {
				return errors.New("give person ids or --auto, not both")
			}
			if priority < 1 || priority > 10 {
				return errors.New("--priority must be between 1 and 10")
			}
			ids := make([]uuid.UUID, 0, len(args))
			for _, a := range args {
				id, err := uuid.Parse(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return c.withContainer(cmd, func(ctx context.Context, app *bootstrap.Container) error {
				var (
					n   int
					err error
				)
				if auto {
					n, err = app.Enrichment.AutoQueueHighValuePeople(ctx, limit)
				} else {
					n, err = app.Enrichment.QueueForEnrichment(ctx, ids, priority)
				}
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), queued{Queued: n})
			})
		},
	}
	cmd.Flags().IntVar(&priority, "priority", 5, "queue priority, 1 (low) to 10 (high)")
	cmd.Flags().BoolVar(&auto, "auto", false, "queue notable persons automatically")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum persons queued by --auto")
	return cmd
}

func (c *cli) newEnrichProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Enrich the next batch of queued persons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withContainer(cmd, func(ctx context.Context, app *bootstrap.Container) error {
				res, err := app.Enrichment.ProcessQueue(ctx)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), res)
			})
		},
	}
}
