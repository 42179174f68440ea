package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-sync/internal/export"
)

var (
	exportOut     string
	exportSeries  string
	exportHistory bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog to an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := export.WriteXLSX(ctx, st, exportOut, export.Options{
			Series:  exportSeries,
			History: exportHistory,
		})
		if err != nil {
			return eris.Wrap(err, "export")
		}

		zap.L().Info("catalog exported", zap.String("path", exportOut), zap.Int("items", n))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "catalog.xlsx", "output file")
	exportCmd.Flags().StringVar(&exportSeries, "series", "", "only export this series")
	exportCmd.Flags().BoolVar(&exportHistory, "history", false, "include a price history sheet")
	rootCmd.AddCommand(exportCmd)
}
