package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"itn-reports/internal/report"
)

// Backfill reruns the daily report job for every day in [From, To).
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	days, err := backfillDays(opts.From, opts.To)
	if err != nil {
		return err
	}

	cfg := *a.Config
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: no exports or alerts")
		cfg.Export.Dir = ""
		cfg.Alerting.Enabled = false
	}

	notifier := a.newNotifier()
	svc, closer, err := a.newService(ctx, &cfg, nil, notifier)
	if err != nil {
		return err
	}
	defer closer()

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	var processed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, day := range days {
		day := day
		bucket := day.AddDate(0, 0, 1)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := svc.ProcessBucket(gctx, bucket); err != nil {
				failed.Add(1)
				a.Logger.Error().Err(err).Str("day", day.Format(report.DateLayout)).Msg("backfill failed")
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	a.Logger.Info().Int64("processed", processed.Load()).Int64("failed", failed.Load()).Msg("backfill complete")
	if failed.Load() > 0 {
		return errors.New("some days failed to backfill; check the logs")
	}
	return nil
}

func backfillDays(from, to string) ([]time.Time, error) {
	start, err := report.ParseDate("from", from)
	if err != nil {
		return nil, err
	}
	end, err := report.ParseDate("to", to)
	if err != nil {
		return nil, err
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("backfill range is empty: --from %s must be before --to %s", from, to)
	}

	var days []time.Time
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days, nil
}
