package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect or reset the alert record store",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tokens that already triggered an alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListRecords(cmd.Context())
	},
}

var recordsClearYes bool

var recordsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every alert record so all tokens alert again",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !recordsClearYes {
			return fmt.Errorf("refusing to clear records without --yes")
		}
		cleared, err := getApp().ClearRecords(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d records\n", cleared)
		return nil
	},
}

func init() {
	recordsClearCmd.Flags().BoolVar(&recordsClearYes, "yes", false, "Confirm clearing the store")
	recordsCmd.AddCommand(recordsListCmd, recordsClearCmd)
}
