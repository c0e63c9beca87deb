package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "haggle",
	Short: "haggle: buyer-side negotiation engine for marketplace listings",
	Long: `haggle negotiates with marketplace sellers on a buyer's behalf.
It resolves a listing, runs a concession strategy backed by LLM tiers and
deterministic rules, and relays the conversation to both parties over WebSocket.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.json, .yaml or .toml; default ~/.haggle/config.json or $HAGGLE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}
