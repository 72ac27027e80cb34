package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campaignlens/backend/internal/application/campaign"
	"github.com/campaignlens/backend/internal/bootstrap"
	"github.com/spf13/cobra"
)

// campaignSyncOutput is the output of a single campaign sync.
type campaignSyncOutput struct {
	*campaign.SyncResult
	Performance *campaign.PerformanceResult `json:"performance,omitempty"`
}

func (c *cli) newSyncCmd() *cobra.Command {
	var (
		accountID  string
		campaignID string
		orgID      string
		orgName    string

		skipPerformance bool
	)
	cmd := &cobra.Command{
		Use:   "sync-campaigns",
		Short: "Sync campaign posts and reporting, or organic shares",
		Long: "Without flags every live campaign of the configured ad account is stored, its posts synced and " +
			"its daily reporting and audience breakdown stored. --campaign syncs one stored campaign; " +
			"--org syncs the organic shares of an organization.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if campaignID != "" && orgID != "" {
				return errors.New("--campaign and --org are mutually exclusive")
			}
			return c.withContainer(cmd, func(ctx context.Context, app *bootstrap.Container) error {
				switch {
				case campaignID != "":
					camp, err := app.Repos.Campaigns.FindByID(ctx, campaignID)
					if err != nil {
						return err
					}
					res, err := app.Syncer.SyncCampaignPosts(ctx, camp)
					if err != nil {
						return err
					}
					if !skipPerformance {
						since := time.Now().UTC().Add(-campaign.PerformanceLookback).Truncate(24 * time.Hour)
						perf, err := app.Syncer.SyncPerformance(ctx, []string{camp.ID}, since)
						if err != nil {
							return fmt.Errorf("sync performance: %w", err)
						}
						return c.print(cmd.OutOrStdout(), campaignSyncOutput{SyncResult: res, Performance: perf})
					}
					return c.print(cmd.OutOrStdout(), res)
				case orgID != "":
					res, err := app.Syncer.SyncOrganizationShares(ctx, orgID, orgName)
					if err != nil {
						return err
					}
					return c.print(cmd.OutOrStdout(), res)
				}

				account := accountID
				if account == "" {
					account = app.Config.LinkedIn.AdAccountID
				}
				if account == "" {
					return errors.New("no --account given and linkedin.ad_account_id is not configured")
				}
				syncer := app.Syncer
				if skipPerformance {
					syncer = campaign.NewSyncer(app.LinkedIn, app.Repos.Posts, app.Repos.Campaigns, app.Linker, app.Logger.Named("sync"))
				}
				res, err := syncer.SyncAccount(ctx, app.LinkedIn, account)
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "ad account id (defaults to linkedin.ad_account_id)")
	cmd.Flags().StringVar(&campaignID, "campaign", "", "sync a single stored campaign")
	cmd.Flags().StringVar(&orgID, "org", "", "organization id whose organic shares are synced")
	cmd.Flags().StringVar(&orgName, "org-name", "", "author name recorded on organic posts")
	cmd.Flags().BoolVar(&skipPerformance, "skip-performance", false, "sync posts only, without reporting rows and demographics")
	return cmd
}
