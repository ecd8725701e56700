package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alfredjeanlab/vesting/internal/api"
	"github.com/alfredjeanlab/vesting/internal/model"
	"github.com/alfredjeanlab/vesting/internal/ui"
	"github.com/alfredjeanlab/vesting/internal/vesting"
)

// formatAmount renders a raw token amount with the given mint decimals.
func formatAmount(v uint64, decimals int32) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(v), -decimals)
	return d.StringFixed(decimals)
}

// parseAmount converts a human amount such as "1.5" into raw token units.
func parseAmount(s string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid amount %q: must not be negative", s)
	}
	raw := d.Shift(decimals)
	if !raw.IsInteger() {
		return 0, fmt.Errorf("invalid amount %q: more than %d decimal places", s, decimals)
	}
	n := raw.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("invalid amount %q: too large", s)
	}
	return n.Uint64(), nil
}

// parseTimestamp accepts unix seconds or an RFC 3339 time.
func parseTimestamp(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: want unix seconds or RFC 3339", s)
	}
	return t.Unix(), nil
}

func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printConfig(w io.Writer, cfg *model.ProgramConfig) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Address:\t%s\n", ui.RenderAccent(cfg.Address.String()))
	fmt.Fprintf(tw, "Admin:\t%s\n", cfg.Admin)
	if cfg.HubSet() {
		fmt.Fprintf(tw, "Hub:\t%s\n", cfg.DistributionHub)
	} else {
		fmt.Fprintf(tw, "Hub:\t%s\n", ui.RenderWarn("not set"))
	}
	if p := cfg.PendingHub; p != nil {
		fmt.Fprintf(tw, "Pending hub:\t%s (effective %s)\n", p.Target, formatTime(p.Deadline))
	}
	fmt.Fprintf(tw, "Schedules:\t%d\n", cfg.TotalSchedules)
	tw.Flush()
}

func printHubResult(w io.Writer, res *api.HubResult) {
	switch res.Action {
	case vesting.HubProposed:
		p := res.Config.PendingHub
		fmt.Fprintf(w, "%s hub %s, confirm after %s\n", ui.RenderWarn("proposed"), p.Target, formatTime(p.Deadline))
	default:
		fmt.Fprintf(w, "%s hub %s\n", ui.RenderOK(string(res.Action)), res.Config.DistributionHub)
	}
}

func printSchedule(w io.Writer, s *model.Schedule, rel *api.Release, decimals int32) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", ui.RenderAccent(strconv.FormatUint(s.ID, 10)))
	fmt.Fprintf(tw, "Address:\t%s\n", s.Address)
	fmt.Fprintf(tw, "Mint:\t%s\n", s.Mint)
	fmt.Fprintf(tw, "Vault:\t%s\n", s.Vault)
	fmt.Fprintf(tw, "Routing:\t%s\n", s.Routing)
	if s.Routing == model.RoutingBeneficiary {
		fmt.Fprintf(tw, "Beneficiary:\t%s\n", s.Beneficiary)
		fmt.Fprintf(tw, "Recipient:\t%s\n", s.BeneficiaryAccount)
	}
	fmt.Fprintf(tw, "Category:\t%s\n", s.SourceCategory)
	fmt.Fprintf(tw, "Total:\t%s\n", formatAmount(s.TotalAmount, decimals))
	fmt.Fprintf(tw, "Transferred:\t%s\n", formatAmount(s.AmountTransferred, decimals))
	fmt.Fprintf(tw, "Cliff:\t%s\n", formatTime(s.CliffTimestamp))
	fmt.Fprintf(tw, "Vesting:\t%s .. %s\n", formatTime(s.VestingStartTimestamp), formatTime(s.VestingEndTimestamp))
	if rel != nil {
		fmt.Fprintf(tw, "Unlocked:\t%s\n", formatAmount(rel.Unlocked, decimals))
		fmt.Fprintf(tw, "Transferable:\t%s\n", formatAmount(rel.Transferable, decimals))
	}
	if s.FullyProcessed() {
		fmt.Fprintf(tw, "Status:\t%s\n", ui.RenderOK("fully processed"))
	} else {
		fmt.Fprintf(tw, "Status:\t%s\n", "open")
	}
	tw.Flush()
}

func printScheduleList(w io.Writer, schedules []*model.Schedule, total int, decimals int32) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tROUTING\tCATEGORY\tTOTAL\tTRANSFERRED\tCLIFF\tEND")
	for _, s := range schedules {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.Routing,
			s.SourceCategory,
			formatAmount(s.TotalAmount, decimals),
			formatAmount(s.AmountTransferred, decimals),
			formatTime(s.CliffTimestamp),
			formatTime(s.VestingEndTimestamp),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d schedules (%d total)\n", len(schedules), total)
}

func printRelease(w io.Writer, rel *api.Release, decimals int32) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Schedule:\t%d\n", rel.ScheduleID)
	fmt.Fprintf(tw, "At:\t%s\n", formatTime(rel.At))
	fmt.Fprintf(tw, "Total:\t%s\n", formatAmount(rel.TotalAmount, decimals))
	fmt.Fprintf(tw, "Unlocked:\t%s\n", formatAmount(rel.Unlocked, decimals))
	fmt.Fprintf(tw, "Transferred:\t%s\n", formatAmount(rel.AmountTransferred, decimals))
	fmt.Fprintf(tw, "Transferable:\t%s\n", formatAmount(rel.Transferable, decimals))
	tw.Flush()
}

func printCrankReport(w io.Writer, r *api.CrankReport, decimals int32) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCHEDULE\tOUTCOME\tAMOUNT\tDETAIL")
	for _, res := range r.Results {
		detail := res.Reason
		if res.Outcome == vesting.OutcomeReleased {
			detail = res.Recipient.String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			res.ScheduleID,
			ui.RenderOutcome(string(res.Outcome)),
			formatAmount(res.Amount, decimals),
			detail,
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%s: %d released, %d skipped, %d failed, %s total\n",
		ui.RenderMuted(r.RunID), r.Released, r.Skipped, r.Failed, formatAmount(r.TotalReleased, decimals))
	if r.Interrupted {
		fmt.Fprintln(w, ui.RenderWarn("interrupted before every schedule was processed"))
	}
}

func printAccount(w io.Writer, a *model.TokenAccount, decimals int32) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Address:\t%s\n", ui.RenderAccent(a.Address.String()))
	fmt.Fprintf(tw, "Mint:\t%s\n", a.Mint)
	fmt.Fprintf(tw, "Owner:\t%s\n", a.Owner)
	fmt.Fprintf(tw, "Balance:\t%s\n", formatAmount(a.Amount, decimals))
	tw.Flush()
}

func printEvents(w io.Writer, evts []*model.Event) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tTOPIC\tACTOR")
	for _, e := range evts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.CreatedAt.UTC().Format(time.RFC3339), e.Topic, e.Actor)
	}
	tw.Flush()
}
