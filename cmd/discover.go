package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var discoverLimit int

var discoverCmd = &cobra.Command{
	Use:   "discover <listing-url>",
	Short: "List the product URLs found on a listing page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("scrape"); err != nil {
			return err
		}
		_, discoverer, err := initScrapers()
		if err != nil {
			return err
		}

		limit := discoverLimit
		if limit == 0 {
			limit = cfg.Discover.MaxURLs
		}
		urls, err := discoverer.Discover(cmd.Context(), args[0], limit)
		if err != nil {
			return eris.Wrap(err, "discover")
		}

		for _, u := range urls {
			_, _ = fmt.Fprintln(os.Stdout, u)
		}
		zap.L().Info("discovery complete", zap.String("listing", args[0]), zap.Int("urls", len(urls)))
		return nil
	},
}

func init() {
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 0, "max URLs to return (default discover.max_urls)")
	rootCmd.AddCommand(discoverCmd)
}
