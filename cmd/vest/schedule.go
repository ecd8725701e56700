package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/vesting/internal/api"
	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/ui"
)

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule id %q", s)
	}
	return id, nil
}

// scheduleParams builds creation parameters from the create command flags.
func scheduleParams(cmd *cobra.Command) (model.ScheduleParams, error) {
	var p model.ScheduleParams
	flags := cmd.Flags()
	var err error

	mint, _ := flags.GetString("mint")
	if p.Mint, err = parseKey("mint", mint); err != nil {
		return p, err
	}
	from, _ := flags.GetString("from")
	if p.DepositorAccount, err = parseKey("depositor account", from); err != nil {
		return p, err
	}

	routing, _ := flags.GetString("routing")
	p.Routing = model.Routing(routing)
	if !p.Routing.IsValid() {
		return p, fmt.Errorf("invalid routing %q (must be hub or beneficiary)", routing)
	}
	beneficiary, _ := flags.GetString("beneficiary")
	if p.Beneficiary, err = optionalKey("beneficiary", beneficiary); err != nil {
		return p, err
	}
	recipient, _ := flags.GetString("recipient")
	if p.BeneficiaryAccount, err = optionalKey("recipient", recipient); err != nil {
		return p, err
	}

	category, _ := flags.GetString("category")
	p.SourceCategory = model.SourceCategory(category)
	if !p.SourceCategory.IsValid() {
		return p, fmt.Errorf("invalid category %q", category)
	}

	amount, _ := flags.GetString("amount")
	if p.TotalAmount, err = parseAmount(amount, decimals); err != nil {
		return p, err
	}

	start, _ := flags.GetString("start")
	if p.VestingStartTimestamp, err = parseTimestamp(start); err != nil {
		return p, err
	}
	end, _ := flags.GetString("end")
	if p.VestingEndTimestamp, err = parseTimestamp(end); err != nil {
		return p, err
	}
	p.CliffTimestamp = p.VestingStartTimestamp
	if cliff, _ := flags.GetString("cliff"); cliff != "" {
		if p.CliffTimestamp, err = parseTimestamp(cliff); err != nil {
			return p, err
		}
	}
	return p, nil
}

var createCmd = &cobra.Command{
	Use:     "create",
	Short:   "Create a vesting schedule funded from the admin's account",
	GroupID: "schedules",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSigner(); err != nil {
			return err
		}
		params, err := scheduleParams(cmd)
		if err != nil {
			return err
		}

		ctx := context.Background()
		id, _ := cmd.Flags().GetInt64("id")
		if id < 0 {
			cfg, err := vestingClient.GetConfig(ctx)
			if err != nil {
				return fmt.Errorf("getting next schedule id: %w", err)
			}
			id = int64(cfg.TotalSchedules)
		}

		s, err := vestingClient.CreateSchedule(ctx, &api.CreateScheduleRequest{ID: uint64(id), Params: params})
		if err != nil {
			return fmt.Errorf("creating schedule: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), s)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s schedule %s (%s into vault %s)\n",
			ui.RenderOK("created"), ui.RenderAccent(strconv.FormatUint(s.ID, 10)),
			formatAmount(s.TotalAmount, decimals), s.Vault)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	Short:   "Show a schedule and what it has unlocked",
	GroupID: "schedules",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx := context.Background()
		s, err := vestingClient.GetSchedule(ctx, id)
		if err != nil {
			return fmt.Errorf("getting schedule: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), s)
		}
		rel, err := vestingClient.GetRelease(ctx, id, 0)
		if err != nil {
			return fmt.Errorf("getting release: %w", err)
		}
		printSchedule(cmd.OutOrStdout(), s, rel, decimals)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List schedules",
	GroupID: "schedules",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		mint, _ := flags.GetString("mint")
		routing, _ := flags.GetString("routing")
		category, _ := flags.GetString("category")
		open, _ := flags.GetBool("open")
		limit, _ := flags.GetInt("limit")
		offset, _ := flags.GetInt("offset")

		req := &api.ListSchedulesRequest{
			Routing:  model.Routing(routing),
			Category: model.SourceCategory(category),
			OpenOnly: open,
			Limit:    limit,
			Offset:   offset,
		}
		var err error
		if req.Mint, err = optionalKey("mint", mint); err != nil {
			return err
		}

		resp, err := vestingClient.ListSchedules(context.Background(), req)
		if err != nil {
			return fmt.Errorf("listing schedules: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		printScheduleList(cmd.OutOrStdout(), resp.Schedules, resp.Total, decimals)
		return nil
	},
}

var releaseCmd = &cobra.Command{
	Use:     "release <id>",
	Short:   "Preview what a schedule has unlocked at a point in time",
	GroupID: "schedules",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var at int64
		if s, _ := cmd.Flags().GetString("at"); s != "" {
			if at, err = parseTimestamp(s); err != nil {
				return err
			}
		}
		rel, err := vestingClient.GetRelease(context.Background(), id, at)
		if err != nil {
			return fmt.Errorf("getting release: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), rel)
		}
		printRelease(cmd.OutOrStdout(), rel, decimals)
		return nil
	},
}

var closeCmd = &cobra.Command{
	Use:     "close <id>",
	Short:   "Close a fully vested and drained schedule",
	GroupID: "schedules",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSigner(); err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		s, err := vestingClient.CloseSchedule(context.Background(), id)
		if err != nil {
			return fmt.Errorf("closing schedule: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), s)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s schedule %d\n", ui.RenderOK("closed"), s.ID)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:     "events <id>",
	Short:   "Show the event history of a schedule",
	GroupID: "schedules",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		evts, err := vestingClient.GetEvents(context.Background(), id)
		if err != nil {
			return fmt.Errorf("getting events: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), evts)
		}
		printEvents(cmd.OutOrStdout(), evts)
		return nil
	},
}

func init() {
	f := createCmd.Flags()
	f.Int64("id", -1, "schedule id (default: the next id from the program config)")
	f.String("mint", "", "mint of the vested token (required)")
	f.String("from", "", "admin token account funding the vault (required)")
	f.String("routing", string(model.RoutingHub), "where releases go: hub or beneficiary")
	f.String("beneficiary", "", "beneficiary wallet (beneficiary routing)")
	f.String("recipient", "", "beneficiary token account (beneficiary routing)")
	f.String("amount", "", "total amount, in display units (required)")
	f.String("cliff", "", "cliff time, unix seconds or RFC 3339 (default: --start)")
	f.String("start", "", "vesting start, unix seconds or RFC 3339 (required)")
	f.String("end", "", "vesting end, unix seconds or RFC 3339 (required)")
	f.String("category", string(model.CategoryOther), "source category of the allocation")
	for _, name := range []string{"mint", "from", "amount", "start", "end"} {
		_ = createCmd.MarkFlagRequired(name)
	}

	lf := listCmd.Flags()
	lf.String("mint", "", "only schedules of this mint")
	lf.String("routing", "", "only schedules with this routing")
	lf.String("category", "", "only schedules with this source category")
	lf.Bool("open", false, "only schedules that are not fully processed")
	lf.Int("limit", 50, "maximum number of schedules")
	lf.Int("offset", 0, "number of schedules to skip")

	releaseCmd.Flags().String("at", "", "point in time, unix seconds or RFC 3339 (default: now)")
}
