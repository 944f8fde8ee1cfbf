package main

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reconcileCmd)

	rootCmd.PersistentFlags().String("data-dir", "./data", "Directory of the listing store")
	rootCmd.PersistentFlags().String("redis-addr", "localhost:6379", "Redis address used for live broadcasts")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, error)")
	rootCmd.PersistentFlags().String("log-format", "plain", "Log format (plain, json)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "api-gateway",
	Short: "Marketplace API: listings, bids, carts and orders",
	Long: `The API gateway owns the listing store. It accepts bids and orders over
HTTP, broadcasts price changes through Redis and relays every committed
event to the archival pipeline.`,
	SilenceUsage: true,
}
