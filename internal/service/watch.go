package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"itn-reports/internal/alerting"
	"itn-reports/internal/render"
	"itn-reports/internal/report"
)

// ProcessBucket builds the report for the day ending at bucket, exports it
// and raises low-coverage alerts.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	day := bucket.UTC().Truncate(24 * time.Hour)
	start := day.AddDate(0, 0, -1).Format(report.DateLayout)
	end := day.Format(report.DateLayout)

	rep, snap, err := s.coverage(ctx, start, end)
	if err != nil {
		return fmt.Errorf("build coverage report %s: %w", start, err)
	}

	if s.exportDir != "" {
		if err := s.export(rep); err != nil {
			s.logger.Error().Err(err).Str("start", start).Msg("failed to export report")
		}
	}

	if s.alertsOn && s.notifier != nil && s.threshold > 0 {
		holders := report.CollateHolders(snap, 0)
		shortfalls := Shortfalls(rep, holders, s.threshold)
		if len(shortfalls) == 0 {
			s.logger.Info().Str("start", start).Msg("all entitled participants above threshold")
			return nil
		}
		note := alerting.Notification{
			Bucket:       bucket,
			Start:        start,
			End:          end,
			MaxPossible:  rep.MaxPossibleDataPoints,
			ThresholdPct: s.threshold,
			Shortfalls:   shortfalls,
			Channels:     s.channels,
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to dispatch alert")
		} else {
			s.metrics.AlertSent()
		}
	}

	return nil
}

// Shortfalls lists entitled holders whose coverage falls below thresholdPct,
// lowest first. Holders absent from the report count as zero coverage.
func Shortfalls(rep *report.Report, holders []report.LicenseHolder, thresholdPct float64) []alerting.Shortfall {
	out := make([]alerting.Shortfall, 0)
	for _, h := range holders {
		pct := rep.CoveragePct(h.Staking)
		if pct >= thresholdPct {
			continue
		}
		out = append(out, alerting.Shortfall{
			Address:     h.Staking,
			License:     h.LicenseSummary(),
			DataPoints:  rep.Data[h.Staking].TotalDataPoints,
			CoveragePct: pct,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CoveragePct != out[j].CoveragePct {
			return out[i].CoveragePct < out[j].CoveragePct
		}
		return out[i].Address < out[j].Address
	})
	return out
}

func (s *Service) export(rep *report.Report) error {
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return err
	}

	csvPath := filepath.Join(s.exportDir, fmt.Sprintf("coverage_%s.csv", rep.Start))
	if err := writeFile(csvPath, func(f *os.File) error { return render.ReportCSV(f, rep) }); err != nil {
		return err
	}
	s.logger.Info().Str("path", csvPath).Msg("report exported")

	if !s.exportPNG || len(rep.Data) == 0 {
		return nil
	}
	pngPath := filepath.Join(s.exportDir, fmt.Sprintf("coverage_%s.png", rep.Start))
	if err := writeFile(pngPath, func(f *os.File) error { return render.ReportPNG(f, rep, s.chart) }); err != nil {
		return err
	}
	s.logger.Info().Str("path", pngPath).Msg("chart exported")
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}
