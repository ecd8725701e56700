package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/vesting/internal/client"
	"github.com/alfredjeanlab/vesting/internal/ui"
)

var (
	serverAddr  string
	httpURL     string
	transport   string
	authToken   string
	keypairPath string
	jsonOutput  bool
	decimals    int32

	vestingClient client.VestingClient
	signer        *client.Signer
)

func defaultHTTPURL() string {
	if s := os.Getenv("VESTING_HTTP_URL"); s != "" {
		return s
	}
	if u := activeRemote().URL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("VESTING_SERVER"); s != "" {
		return s
	}
	if a := activeRemote().GRPCAddr; a != "" {
		return a
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("VESTING_TOKEN"); s != "" {
		return s
	}
	return activeRemote().Token
}

func defaultKeypair() string {
	if s := os.Getenv("VESTING_KEYPAIR"); s != "" {
		return s
	}
	return activeRemote().Keypair
}

var rootCmd = &cobra.Command{
	Use:           "vest <command>",
	Short:         "CLI client for the vesting service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor(os.Stdout) {
			ui.ForceNoColor()
		}
		if keypairPath != "" {
			s, err := client.LoadSigner(keypairPath)
			if err != nil {
				return err
			}
			signer = s
		}
		switch transport {
		case "http":
			vestingClient = client.NewHTTPClient(httpURL, authToken, signer)
		case "grpc":
			c, err := client.NewGRPCClient(serverAddr, authToken, signer)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			vestingClient = c
		default:
			return fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if vestingClient != nil {
			vestingClient.Close()
		}
	},
}

// requireSigner fails commands that mutate state when no keypair is loaded.
func requireSigner() error {
	if signer == nil {
		return fmt.Errorf("this command must be signed: pass --keypair or set VESTING_KEYPAIR")
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token for the server")
	rootCmd.PersistentFlags().StringVar(&keypairPath, "keypair", defaultKeypair(), "solana-keygen keypair file used to sign requests")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().Int32Var(&decimals, "decimals", 0, "mint decimals for displaying and parsing amounts")

	rootCmd.AddGroup(
		&cobra.Group{ID: "schedules", Title: "Schedules:"},
		&cobra.Group{ID: "program", Title: "Program:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Schedules
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(crankCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(watchCmd)

	// Program
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(hubCmd)
	rootCmd.AddCommand(accountCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
