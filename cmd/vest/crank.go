package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/vesting/internal/api"
	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/vesting"
)

// crankPairs turns schedules into crank pairs, keeping only open schedules
// of mint whose cliff is at or before now, at most limit of them.
func crankPairs(schedules []*model.Schedule, mint solana.PublicKey, now int64, limit int) []api.CrankPair {
	var pairs []api.CrankPair
	for _, s := range schedules {
		if len(pairs) == limit {
			break
		}
		if !s.Mint.Equals(mint) || s.FullyProcessed() || s.CliffTimestamp > now {
			continue
		}
		pairs = append(pairs, api.CrankPair{ScheduleID: s.ID, Vault: s.Vault})
	}
	return pairs
}

var crankCmd = &cobra.Command{
	Use:     "crank [id...]",
	Short:   "Release vested tokens for the given schedules (anyone may crank)",
	GroupID: "schedules",
	Long: `Release whatever has vested on the given schedules in one batch.

All schedules must share a mint. Hub-routed schedules need --hub-account,
the distribution hub's token account. With --due, the open schedules of
--mint whose cliff has passed are selected instead of explicit ids.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		flags := cmd.Flags()
		due, _ := flags.GetBool("due")
		maxSchedules, _ := flags.GetInt("max")
		mintFlag, _ := flags.GetString("mint")
		hubFlag, _ := flags.GetString("hub-account")

		hubAccount, err := optionalKey("hub account", hubFlag)
		if err != nil {
			return err
		}
		mint, err := optionalKey("mint", mintFlag)
		if err != nil {
			return err
		}

		var schedules []*model.Schedule
		switch {
		case due && len(args) > 0:
			return fmt.Errorf("--due and explicit ids are mutually exclusive")
		case due:
			if mint.IsZero() {
				return fmt.Errorf("--due requires --mint")
			}
			resp, err := vestingClient.ListSchedules(ctx, &api.ListSchedulesRequest{Mint: mint, OpenOnly: true})
			if err != nil {
				return fmt.Errorf("listing schedules: %w", err)
			}
			schedules = resp.Schedules
		case len(args) == 0:
			return fmt.Errorf("give schedule ids or --due")
		default:
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				s, err := vestingClient.GetSchedule(ctx, id)
				if err != nil {
					return fmt.Errorf("getting schedule %d: %w", id, err)
				}
				schedules = append(schedules, s)
			}
			if mint.IsZero() {
				mint = schedules[0].Mint
			}
		}

		limit := vesting.MaxSchedulesPerCrank
		if maxSchedules > 0 && maxSchedules < limit {
			limit = maxSchedules
		}
		var pairs []api.CrankPair
		if due {
			pairs = crankPairs(schedules, mint, time.Now().Unix(), limit)
		} else {
			// Explicit ids go through as given; the server reports skips.
			for _, s := range schedules {
				pairs = append(pairs, api.CrankPair{ScheduleID: s.ID, Vault: s.Vault})
			}
		}
		if len(pairs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to crank")
			return nil
		}

		report, err := vestingClient.Crank(ctx, &api.CrankRequest{
			Mint:         mint,
			HubAccount:   hubAccount,
			Pairs:        pairs,
			MaxSchedules: maxSchedules,
		})
		if err != nil {
			return fmt.Errorf("cranking: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), report)
		}
		printCrankReport(cmd.OutOrStdout(), report, decimals)
		return nil
	},
}

func init() {
	crankCmd.Flags().String("mint", "", "mint of the schedules (default: the first schedule's mint)")
	crankCmd.Flags().String("hub-account", "", "distribution hub token account for hub-routed schedules")
	crankCmd.Flags().Int("max", 0, "process at most this many schedules")
	crankCmd.Flags().Bool("due", false, "crank the open schedules of --mint whose cliff has passed")
}
