package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var simulateCoverage float64

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a synthetic low-coverage alert through the configured channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateCoverage < 0 || simulateCoverage > 100 {
			return errors.New("--coverage must be between 0 and 100")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateCoverage)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateCoverage, "coverage", 42.5, "Coverage percentage to report")
}
