package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"itn-reports/internal/app"
)

var (
	reportStart string
	reportEnd   string
	reportCSV   string
	reportPNG   string
	reportQuiet bool

	holdersMinStake string
	holdersLicense  string
	holdersSort     string
	holdersCSV      string
	holdersJSON     bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compute the coverage report for a date window",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ReportOptions{
			Start:   reportStart,
			End:     reportEnd,
			CSVPath: reportCSV,
			PNGPath: reportPNG,
			Quiet:   reportQuiet,
		}
		return getApp().Report(cmd.Context(), opts)
	},
}

var holdersCmd = &cobra.Command{
	Use:   "holders",
	Short: "List license holders with stake and alias",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.HoldersOptions{
			LicenseNo: holdersLicense,
			Sort:      holdersSort,
			CSVPath:   holdersCSV,
			JSON:      holdersJSON,
		}

		if raw := strings.TrimSpace(holdersMinStake); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid --min-stake value: %w", err)
			}
			opts.MinStake = &v
		}

		return getApp().Holders(cmd.Context(), opts)
	},
}

var dateRangeCmd = &cobra.Command{
	Use:   "date-range",
	Short: "Print the earliest and latest stored observation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().DateRange(cmd.Context())
	},
}

var collectorsCmd = &cobra.Command{
	Use:   "collectors",
	Short: "Display recent collection activity per participant",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Collectors(cmd.Context())
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportStart, "start", "", "Window start date YYYY-MM-DD (defaults to config)")
	reportCmd.Flags().StringVar(&reportEnd, "end", "", "Window end date YYYY-MM-DD (defaults to config)")
	reportCmd.Flags().StringVar(&reportCSV, "csv", "", "Path to write CSV report")
	reportCmd.Flags().StringVar(&reportPNG, "png", "", "Path to write PNG coverage chart")
	reportCmd.Flags().BoolVar(&reportQuiet, "quiet", false, "Do not print the JSON report")

	holdersCmd.Flags().StringVar(&holdersMinStake, "min-stake", "", "Minimum whole-token stake (defaults to config)")
	holdersCmd.Flags().StringVar(&holdersLicense, "license", "", "Only holders of this license suffix, e.g. #001")
	holdersCmd.Flags().StringVar(&holdersSort, "sort", "stake", "Sort key: stake, license, alias or staking")
	holdersCmd.Flags().StringVar(&holdersCSV, "csv", "", "Path to write CSV output")
	holdersCmd.Flags().BoolVar(&holdersJSON, "json", false, "Print JSON instead of a table")
}
