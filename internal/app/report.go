package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"itn-reports/internal/alerting"
	"itn-reports/internal/render"
)

// Report builds a coverage report and prints and/or exports it.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	start, end := a.Config.ResolveDates(opts.Start, opts.End)

	svc, closer, err := a.newService(ctx, a.Config, nil, nil)
	if err != nil {
		return err
	}
	defer closer()

	rep, err := svc.CoverageReport(ctx, start, end)
	if err != nil {
		return err
	}

	if opts.CSVPath != "" {
		if err := writeTo(opts.CSVPath, func(w io.Writer) error { return render.ReportCSV(w, rep) }); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.CSVPath).Msg("report csv written")
	}

	if opts.PNGPath != "" {
		chartOpts := render.ChartOptions{Width: a.Config.Export.ChartWidth, Height: a.Config.Export.ChartHeight}
		err := writeTo(opts.PNGPath, func(w io.Writer) error { return render.ReportPNG(w, rep, chartOpts) })
		if errors.Is(err, render.ErrNothingToChart) {
			a.Logger.Warn().Msg("no participants in window; chart skipped")
		} else if err != nil {
			return err
		} else {
			a.Logger.Info().Str("path", opts.PNGPath).Msg("report chart written")
		}
	}

	if opts.Quiet {
		return nil
	}
	return a.printJSON(rep)
}

// Holders prints the entitlement list as a table, JSON or CSV.
func (a *App) Holders(ctx context.Context, opts HoldersOptions) error {
	minStake := a.Config.Indexer.MinStake
	if opts.MinStake != nil {
		minStake = *opts.MinStake
	}

	svc, closer, err := a.newService(ctx, a.Config, nil, nil)
	if err != nil {
		return err
	}
	defer closer()

	holders, err := svc.LicenseHolders(ctx, minStake, opts.LicenseNo)
	if err != nil {
		return err
	}
	sorted, err := render.SortHolders(holders, opts.Sort)
	if err != nil {
		return err
	}

	if opts.CSVPath != "" {
		return writeTo(opts.CSVPath, func(w io.Writer) error { return render.HoldersCSV(w, sorted, opts.Sort) })
	}
	if opts.JSON {
		return a.printJSON(sorted)
	}
	if len(sorted) == 0 {
		fmt.Fprintln(a.Out, "no license holders found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Staking\tStaked\tLicenses\tAlias")
	for _, h := range sorted {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", h.Staking, humanize.Comma(h.Staked), h.LicenseSummary(), sanitizeInline(h.Alias))
	}
	return writer.Flush()
}

// DateRange prints the span of stored observations.
func (a *App) DateRange(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	dr, err := store.DateRange(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(dr)
}

// Collectors prints each address's recent collection activity.
func (a *App) Collectors(ctx context.Context) error {
	svc, closer, err := a.newService(ctx, a.Config, nil, nil)
	if err != nil {
		return err
	}
	defer closer()

	rows, err := svc.OnlineCollectors(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.Out, render.NoCollectorsHTML)
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Stake Key\tTotal\tLast 24h\tPer Feed (24h)\tPer Feed (1h)\tPer Feed (1m)")
	for _, row := range rows {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Address,
			humanize.Comma(row.Total),
			humanize.Comma(row.Last24h),
			humanize.Comma(row.PerDay),
			humanize.Comma(row.PerHour),
			humanize.FtoaWithDigits(row.PerMinute, 4),
		)
	}
	return writer.Flush()
}

// SimulateAlert pushes a synthetic low-coverage alert through the configured channel.
func (a *App) SimulateAlert(ctx context.Context, coveragePct float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	now := time.Now().UTC()
	note := alerting.Notification{
		Bucket:       now,
		Start:        now.AddDate(0, 0, -1).Format("2006-01-02"),
		End:          now.Format("2006-01-02"),
		ThresholdPct: a.Config.Alerting.ThresholdPct,
		Shortfalls: []alerting.Shortfall{{
			Address:     "stake_simulated",
			License:     "Validator License #000",
			CoveragePct: coveragePct,
		}},
		Channels:      a.Config.Alerting.Channels,
		AdditionalMsg: "simulated alert",
	}
	return notifier.Notify(ctx, note)
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTo(path string, write func(io.Writer) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
