package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"perp-basis-alerts/internal/app"
)

var simulateOpts = app.SimulateOptions{}

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一条行情偏差并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, v := range []string{simulateOpts.MarkPrice, simulateOpts.IndexPrice} {
			d, err := decimal.NewFromString(v)
			if err != nil || !d.IsPositive() {
				return errors.New("--mark 与 --index 必须大于 0")
			}
		}
		_, err := getApp().SimulateAlert(cmd.Context(), simulateOpts)
		return err
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.Symbol, "symbol", "SIMUSDT", "合约代码")
	simulateCmd.Flags().StringVar(&simulateOpts.MarkPrice, "mark", "100", "标记价格")
	simulateCmd.Flags().StringVar(&simulateOpts.IndexPrice, "index", "105", "指数价格")
	simulateCmd.Flags().StringVar(&simulateOpts.FundingRate, "funding", "0.0001", "资金费率")
	simulateCmd.Flags().StringVar(&simulateOpts.Platform, "platform", "simulated", "平台名称")
	simulateCmd.Flags().StringVar(&simulateOpts.VenueType, "type", "contract", "平台类型 contract|lending")
}
