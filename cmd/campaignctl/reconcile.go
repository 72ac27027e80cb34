package main

import (
	"context"
	"fmt"

	"github.com/campaignlens/backend/internal/application/reconciliation"
	"github.com/campaignlens/backend/internal/bootstrap"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// maxBatchPosts matches the batch limit of the HTTP API.
const maxBatchPosts = 100

func (c *cli) newReconcileCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reconcile <post-id>...",
		Short: "Validate and clean the stored engagements of posts",
		Args:  cobra.RangeArgs(1, maxBatchPosts),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePostIDs(args)
			if err != nil {
				return err
			}
			var opts []reconciliation.ValidateOption
			if dryRun {
				opts = append(opts, reconciliation.DryRun())
			}
			return c.withContainer(cmd, func(ctx context.Context, app *bootstrap.Container) error {
				if len(ids) == 1 {
					report, err := app.Reconciler.ValidatePostEngagements(ctx, ids[0], opts...)
					if err != nil {
						return err
					}
					return c.print(cmd.OutOrStdout(), report)
				}
				return c.print(cmd.OutOrStdout(), app.Reconciler.ValidateBatch(ctx, ids, opts...))
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report issues without removing duplicates or linking orphans")
	return cmd
}

func parsePostIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("invalid post id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
