package main

import (
	"fmt"

	"sjsage522/grocerycrawler/logger"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [site]",
	Short: "Scrape every category once",
	Long:  "Scrapes every configured category of every site, or only of the given site, and hands the products to the configured sinks.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOnce,
}

var watchCmd = &cobra.Command{
	Use:   "watch [site]",
	Short: "Scrape periodically",
	Long:  "Repeats the run every CRAWL_INTERVAL_SECONDS until interrupted.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

var (
	siteFilter string
	dryRun     bool
)

func init() {
	for _, cmd := range []*cobra.Command{runCmd, watchCmd} {
		cmd.Flags().StringVarP(&siteFilter, "site", "s", "", "Only scrape this site (key or name)")
		cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log products instead of saving them")
		rootCmd.AddCommand(cmd)
	}
}

func filterFrom(args []string) (string, error) {
	if len(args) == 0 {
		return siteFilter, nil
	}
	if siteFilter != "" && siteFilter != args[0] {
		return "", fmt.Errorf("site given twice: %q and --site %q", args[0], siteFilter)
	}
	return args[0], nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	filter, err := filterFrom(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	cfg, sites, err := loadApp()
	if err != nil {
		return err
	}

	services, err := initializeServices(ctx, cfg, dryRun)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer services.Cleanup()

	log := logger.Default
	log.Info().
		Str("environment", cfg.Environment).
		Str("site", filter).
		Str("sink", services.Sink.Name()).
		Msg("Starting crawl")

	summary, err := newWorker(cfg, sites, services).RunOnce(ctx, filter)
	if err != nil {
		if ctx.Err() != nil {
			log.Info().Msg("Interrupted; shutting down")
			return nil
		}
		return err
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("saved", summary.Saved).
		Msg("Crawl finished")
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	filter, err := filterFrom(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	cfg, sites, err := loadApp()
	if err != nil {
		return err
	}

	services, err := initializeServices(ctx, cfg, dryRun)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer services.Cleanup()

	log := logger.Default
	log.Info().
		Str("environment", cfg.Environment).
		Dur("crawl_interval", cfg.CrawlInterval).
		Msg("Starting grocery crawler")

	if err := newWorker(cfg, sites, services).Start(ctx, filter); err != nil {
		return err
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	return nil
}
