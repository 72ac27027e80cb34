package main

import (
	"context"
	"errors"

	"github.com/campaignlens/backend/internal/application/analysis"
	"github.com/campaignlens/backend/internal/bootstrap"
	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/spf13/cobra"
)

func (c *cli) newAnalyzeCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "analyze <post-url>",
		Short: "Run the full analysis pipeline for a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, app *bootstrap.Container) error {
				resp, err := app.Orchestrator.AnalyzePost(ctx, args[0], analysis.Options{ForceRefresh: force})
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "ignore a cached analysis from the last 24 hours")
	return cmd
}

func (c *cli) newCorrelateCmd() *cobra.Command {
	var (
		campaignIDs []string
		link        bool
	)
	cmd := &cobra.Command{
		Use:   "correlate <post-url>",
		Short: "Score a post against candidate campaigns",
		Long: "Scores the post against the given campaigns, or against the live campaigns of the configured ad account, " +
			"falling back to the stored campaigns when the platform is unavailable.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, app *bootstrap.Container) error {
				post, stored, err := findOrNewPost(ctx, app, args[0])
				if err != nil {
					return err
				}
				campaigns, err := candidateCampaigns(ctx, app, campaignIDs)
				if err != nil {
					return err
				}
				match, err := app.Correlator.FindBestMatch(ctx, post, campaigns)
				if err != nil {
					return err
				}
				if link && match.Matched() {
					if !stored {
						if err := app.Repos.Posts.Upsert(ctx, post); err != nil {
							return err
						}
					}
					if err := app.Linker.LinkCorrelation(ctx, post, match); err != nil {
						return err
					}
				}
				return c.print(cmd.OutOrStdout(), match)
			})
		},
	}
	cmd.Flags().StringSliceVar(&campaignIDs, "campaign", nil, "candidate campaign id (repeatable)")
	cmd.Flags().BoolVar(&link, "link", false, "store the match as post to campaign links")
	return cmd
}

// findOrNewPost returns the stored post for rawURL, or an unsaved one.
func findOrNewPost(ctx context.Context, app *bootstrap.Container, rawURL string) (*analytics.Post, bool, error) {
	if _, err := analytics.ExtractPostMetadata(rawURL); err != nil {
		return nil, false, err
	}
	post := analytics.NewPost(rawURL)
	stored, err := app.Repos.Posts.FindByURL(ctx, post.URL)
	switch {
	case err == nil:
		return stored, true, nil
	case errors.Is(err, shared.ErrNotFound):
		return post, false, nil
	default:
		return nil, false, err
	}
}

func candidateCampaigns(ctx context.Context, app *bootstrap.Container, ids []string) ([]analytics.Campaign, error) {
	if len(ids) > 0 {
		return app.Repos.Campaigns.FindByIDs(ctx, ids)
	}
	accountID := app.Config.LinkedIn.AdAccountID
	if accountID == "" {
		return nil, errors.New("no --campaign given and linkedin.ad_account_id is not configured")
	}
	campaigns, err := app.LinkedIn.GetCampaigns(ctx, accountID)
	if err == nil {
		return campaigns, nil
	}
	app.Logger.Sugar().Warnw("Live campaigns unavailable, using stored campaigns", "error", err)
	return app.Repos.Campaigns.ListByAccount(ctx, accountID)
}
