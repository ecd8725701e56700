package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage named server remotes",
	GroupID: "system",
	// Remote subcommands only touch the local profile file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

// updateRemotes loads the profile file, applies fn and saves the result.
func updateRemotes(fn func(*RemotesConfig) error) error {
	cfg, err := loadRemotesConfig()
	if err != nil {
		return err
	}
	if err := fn(&cfg); err != nil {
		return err
	}
	return saveRemotesConfig(cfg)
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or update a named remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		r := Remote{URL: args[1]}
		r.GRPCAddr, _ = flags.GetString("grpc")
		r.Token, _ = flags.GetString("token")
		r.Keypair, _ = flags.GetString("keypair")
		r.NATSURL, _ = flags.GetString("nats")
		r.Description, _ = flags.GetString("description")

		err := updateRemotes(func(cfg *RemotesConfig) error {
			cfg.Remotes[args[0]] = r
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q added (%s)\n", args[0], r.URL)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := updateRemotes(func(cfg *RemotesConfig) error { return cfg.Remove(args[0]) })
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", args[0])
		return nil
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Set the active remote (no args clears it)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		if err := updateRemotes(func(cfg *RemotesConfig) error { return cfg.Use(name) }); err != nil {
			return err
		}
		if name == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "active remote cleared")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "active remote set to %q\n", name)
		}
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		names := cfg.Names()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no remotes configured")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tURL\tTOKEN\tKEYPAIR\tDESCRIPTION")
		for _, name := range names {
			r := cfg.Remotes[name]
			marker := "  "
			if name == cfg.Active {
				marker = "* "
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\n", marker, name, r.URL, maskToken(r.Token, "..."), r.Keypair, r.Description)
		}
		return w.Flush()
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show details for a remote (defaults to active)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		var want string
		if len(args) == 1 {
			want = args[0]
		}
		name, r, err := cfg.Lookup(want)
		if err != nil {
			return err
		}
		if name == cfg.Active {
			name += " (active)"
		}
		return printRemote(cmd.OutOrStdout(), name, r)
	},
}

// printRemote writes one "key: value" row per set field.
func printRemote(out io.Writer, name string, r Remote) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, row := range [][2]string{
		{"name", name},
		{"description", r.Description},
		{"url", r.URL},
		{"grpc_addr", r.GRPCAddr},
		{"token", maskToken(r.Token, "")},
		{"keypair", r.Keypair},
		{"nats_url", r.NATSURL},
	} {
		if row[1] != "" {
			fmt.Fprintf(w, "%s:\t%s\n", row[0], row[1])
		}
	}
	return w.Flush()
}

// maskToken keeps the first eight characters of token. With an empty
// suffix the rest is replaced by asterisks.
func maskToken(token, suffix string) string {
	const visible = 8
	if len(token) <= visible {
		return token
	}
	if suffix == "" {
		suffix = strings.Repeat("*", len(token)-visible)
	}
	return token[:visible] + suffix
}

func init() {
	f := remoteAddCmd.Flags()
	f.String("grpc", "", "gRPC address of the remote")
	f.String("token", "", "bearer token for authentication")
	f.String("keypair", "", "keypair file used to sign requests")
	f.String("nats", "", "NATS URL for event streaming")
	f.String("description", "", "human-readable description of the remote")

	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteListCmd, remoteUseCmd, remoteShowCmd)
}
