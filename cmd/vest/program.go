package main

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/vesting/internal/api"
	"github.com/alfredjeanlab/vesting/internal/ui"
)

// parseKey decodes a base58 address, naming what in the error.
func parseKey(what, s string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return pk, nil
}

// optionalKey is parseKey for flags where empty means the zero address.
func optionalKey(what, s string) (solana.PublicKey, error) {
	if s == "" {
		return solana.PublicKey{}, nil
	}
	return parseKey(what, s)
}

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Initialize the program config with the signer as admin",
	GroupID: "program",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSigner(); err != nil {
			return err
		}
		hubFlag, _ := cmd.Flags().GetString("hub")
		hub, err := optionalKey("hub", hubFlag)
		if err != nil {
			return err
		}

		cfg, err := vestingClient.InitializeConfig(context.Background(), &api.InitializeConfigRequest{
			Admin:           signer.PublicKey(),
			DistributionHub: hub,
		})
		if err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), cfg)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s program config %s\n", ui.RenderOK("initialized"), cfg.Address)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Show the program config",
	GroupID: "program",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := vestingClient.GetConfig(context.Background())
		if err != nil {
			return fmt.Errorf("getting config: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), cfg)
		}
		printConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

var hubCmd = &cobra.Command{
	Use:     "hub",
	Short:   "Manage the distribution hub",
	GroupID: "program",
}

var hubSetCmd = &cobra.Command{
	Use:   "set <address>",
	Short: "Propose a new hub, or confirm the pending one once its timelock expires",
	Long: `Propose a new distribution hub, or confirm the pending one.

Running "vest hub set" with the pending address after the timelock expires
makes it the active hub. Running it with any other address replaces the
pending proposal and restarts the timelock.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSigner(); err != nil {
			return err
		}
		target, err := parseKey("hub", args[0])
		if err != nil {
			return err
		}
		res, err := vestingClient.ProposeOrConfirmHub(context.Background(), target)
		if err != nil {
			return fmt.Errorf("updating hub: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printHubResult(cmd.OutOrStdout(), res)
		return nil
	},
}

var hubStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active and pending hub",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := vestingClient.GetConfig(context.Background())
		if err != nil {
			return fmt.Errorf("getting config: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"distribution_hub": cfg.DistributionHub,
				"pending_hub":      cfg.PendingHub,
			})
		}
		w := cmd.OutOrStdout()
		if cfg.HubSet() {
			fmt.Fprintf(w, "active:  %s\n", cfg.DistributionHub)
		} else {
			fmt.Fprintf(w, "active:  %s\n", ui.RenderWarn("not set"))
		}
		if p := cfg.PendingHub; p != nil {
			fmt.Fprintf(w, "pending: %s (effective %s)\n", p.Target, formatTime(p.Deadline))
		} else {
			fmt.Fprintf(w, "pending: %s\n", ui.RenderMuted("none"))
		}
		return nil
	},
}

var accountCmd = &cobra.Command{
	Use:     "account",
	Short:   "Manage token accounts",
	GroupID: "program",
}

var accountOpenCmd = &cobra.Command{
	Use:   "open <address>",
	Short: "Register a token account, optionally with an initial deposit (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSigner(); err != nil {
			return err
		}
		addr, err := parseKey("account", args[0])
		if err != nil {
			return err
		}
		mintFlag, _ := cmd.Flags().GetString("mint")
		mint, err := parseKey("mint", mintFlag)
		if err != nil {
			return err
		}
		ownerFlag, _ := cmd.Flags().GetString("owner")
		owner := signer.PublicKey()
		if ownerFlag != "" {
			if owner, err = parseKey("owner", ownerFlag); err != nil {
				return err
			}
		}
		var deposit uint64
		if s, _ := cmd.Flags().GetString("deposit"); s != "" {
			if deposit, err = parseAmount(s, decimals); err != nil {
				return err
			}
		}

		acct, err := vestingClient.OpenAccount(context.Background(), &api.OpenAccountRequest{
			Address: addr,
			Mint:    mint,
			Owner:   owner,
			Deposit: deposit,
		})
		if err != nil {
			return fmt.Errorf("opening account: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), acct)
		}
		printAccount(cmd.OutOrStdout(), acct, decimals)
		return nil
	},
}

var accountShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show a token account balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseKey("account", args[0])
		if err != nil {
			return err
		}
		acct, err := vestingClient.GetAccount(context.Background(), addr)
		if err != nil {
			return fmt.Errorf("getting account: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), acct)
		}
		printAccount(cmd.OutOrStdout(), acct, decimals)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the vesting service",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := vestingClient.Health(context.Background())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", status)
		}
		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

func init() {
	initCmd.Flags().String("hub", "", "initial distribution hub address (optional)")

	hubCmd.AddCommand(hubSetCmd)
	hubCmd.AddCommand(hubStatusCmd)

	accountOpenCmd.Flags().String("mint", "", "mint of the account (required)")
	accountOpenCmd.Flags().String("owner", "", "account authority (default: the signer)")
	accountOpenCmd.Flags().String("deposit", "", "initial balance, in display units")
	_ = accountOpenCmd.MarkFlagRequired("mint")

	accountCmd.AddCommand(accountOpenCmd)
	accountCmd.AddCommand(accountShowCmd)
}
