package cli

import (
	"github.com/spf13/cobra"

	"perp-basis-alerts/internal/app"
)

var (
	exportPNGPath string
	exportCSVPath string
	exportMaxRows int
	exportUpload  bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export current basis candidates as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			PNGPath: exportPNGPath,
			CSVPath: exportCSVPath,
			MaxRows: exportMaxRows,
			Upload:  exportUpload,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxRows, "max-rows", 0, "Maximum candidates to export (defaults to config)")
	exportCmd.Flags().BoolVar(&exportUpload, "upload", false, "Upload written files to the configured S3 bucket")
}
