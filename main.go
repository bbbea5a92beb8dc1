package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "grocerycrawler",
	Short:        "Grocery product listing crawler",
	Long:         "grocerycrawler extracts product listings from grocery category pages with a headless browser and stores them in PostgreSQL.",
	SilenceUsage: true,
}

var profilesFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&profilesFile, "profiles", "", "Site profiles file (overrides SITE_PROFILES_FILE; default: built-in sites)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
