package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"sjsage522/grocerycrawler/config"

	"github.com/spf13/cobra"
)

var sitesCmd = &cobra.Command{
	Use:   "sites [site]",
	Short: "List configured sites and category URLs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  listSites,
}

func init() {
	rootCmd.AddCommand(sitesCmd)
}

func listSites(cmd *cobra.Command, args []string) error {
	path := profilesFile
	if path == "" {
		path = os.Getenv("SITE_PROFILES_FILE")
	}
	sites, err := config.LoadSites(path)
	if err != nil {
		return err
	}

	filter := ""
	if len(args) == 1 {
		filter = args[0]
	}
	sites, err = config.SelectSites(sites, filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, site := range sites {
		fmt.Fprintf(w, "%s (%s)\tdriver=%s\t%d categories\n", site.Name, site.Key, site.Driver, len(site.Categories))
		for _, job := range site.Jobs() {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", job.CategoryKey, job.DisplayName, job.URL)
		}
	}
	return w.Flush()
}
