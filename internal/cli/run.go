package cli

import (
	"time"

	"github.com/spf13/cobra"

	"perp-basis-alerts/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var (
	scanNoNotify bool
	scanTimeout  time.Duration
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single polling cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().Scan(cmd.Context(), app.ScanOptions{
			NoNotify: scanNoNotify,
			Timeout:  scanTimeout,
		})
		return err
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanNoNotify, "no-notify", false, "Record and print new alerts without delivering them")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 30*time.Second, "Upper bound for the whole cycle")
}
