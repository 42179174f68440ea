package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Extract one product page and print the result",
	Long:  "Fetches a detail page through Firecrawl and prints the extracted fields as JSON, including which strategy produced each field. Nothing is written to the catalog.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("scrape"); err != nil {
			return err
		}
		extractor, _, err := initScrapers()
		if err != nil {
			return err
		}

		res, err := extractor.Extract(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "extract")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
