package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"itn-reports/internal/alerting"
	"itn-reports/internal/config"
	"itn-reports/internal/indexer"
	"itn-reports/internal/logging"
	"itn-reports/internal/metrics"
	"itn-reports/internal/render"
	"itn-reports/internal/report"
	"itn-reports/internal/scheduler"
	"itn-reports/internal/storage"
)

const (
	collectorWindow = 24 * time.Hour
	feedWindow      = 48 * time.Hour
)

// Service orchestrates the observation store, the entitlement source and
// the report core.
type Service struct {
	scheduler *scheduler.Scheduler
	store     storage.ObservationStore
	source    indexer.Source
	notifier  alerting.Notifier
	metrics   *metrics.Registry
	logger    zerolog.Logger
	now       func() time.Time

	minStake      int64
	licensePolicy string
	licensePrefix string

	threshold float64
	channels  []string
	alertsOn  bool

	exportDir string
	exportPNG bool
	chart     render.ChartOptions
}

// New constructs the report service. sched and notifier may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, store storage.ObservationStore, source indexer.Source, notifier alerting.Notifier, reg *metrics.Registry, logger zerolog.Logger) *Service {
	return &Service{
		scheduler:     sched,
		store:         store,
		source:        source,
		notifier:      notifier,
		metrics:       reg,
		logger:        logger.With().Str("component", "service").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
		minStake:      cfg.Indexer.MinStake,
		licensePolicy: cfg.Indexer.LicensePolicy,
		licensePrefix: cfg.Report.LicensePrefix,
		threshold:     cfg.Alerting.ThresholdPct,
		channels:      cfg.Alerting.Channels,
		alertsOn:      cfg.Alerting.Enabled,
		exportDir:     cfg.Export.Dir,
		exportPNG:     cfg.Export.PNG,
		chart: render.ChartOptions{
			Width:  cfg.Export.ChartWidth,
			Height: cfg.Export.ChartHeight,
		},
	}
}

// Run begins the scheduled reporting loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// CoverageReport builds the coverage report for the calendar-date window
// [start, end). Dates are validated before any I/O.
func (s *Service) CoverageReport(ctx context.Context, start, end string) (*report.Report, error) {
	rep, _, err := s.coverage(ctx, start, end)
	return rep, err
}

func (s *Service) coverage(ctx context.Context, start, end string) (*report.Report, report.EntitlementSnapshot, error) {
	if _, err := report.MinutesBetween(start, end); err != nil {
		return nil, report.EntitlementSnapshot{}, err
	}
	if s.store == nil {
		return nil, report.EntitlementSnapshot{}, storage.ErrNotConfigured
	}

	span := logging.StartSpan(s.logger, "coverage_report")

	var (
		observations []report.Observation
		snap         report.EntitlementSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		observations, err = s.store.ListObservationsBetween(gctx, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		snap, err = s.snapshot(gctx, s.minStake)
		return err
	})

	err := g.Wait()
	var rep *report.Report
	if err == nil {
		s.metrics.AddObservations(len(observations))
		rep, err = report.ComputeCoverageReport(start, end, observations, snap)
	}

	elapsed := span.End(err)
	s.metrics.ObserveReport("coverage", elapsed, err)
	if err != nil {
		return nil, report.EntitlementSnapshot{}, err
	}

	s.logger.Info().
		Str("start", start).
		Str("end", end).
		Int("observations", len(observations)).
		Int("feeds", rep.ExpectedFeedCount).
		Int("addresses", len(rep.Data)).
		Msg("coverage report built")
	return rep, snap, nil
}

func (s *Service) snapshot(ctx context.Context, minStake int64) (report.EntitlementSnapshot, error) {
	if s.source == nil {
		return report.EntitlementSnapshot{}, fmt.Errorf("%w: source not configured", indexer.ErrSourceUnavailable)
	}
	return indexer.FetchSnapshot(ctx, s.source, indexer.SnapshotOptions{
		MinStake:      minStake,
		LicensePolicy: s.licensePolicy,
	}, s.logger)
}

// LicenseHolders lists entitled addresses with stake above minStake,
// optionally narrowed to one license number such as "#001".
func (s *Service) LicenseHolders(ctx context.Context, minStake int64, licenseNo string) ([]report.LicenseHolder, error) {
	span := logging.StartSpan(s.logger, "license_holders")
	snap, err := s.snapshot(ctx, minStake)
	var holders []report.LicenseHolder
	if err == nil {
		holders = report.ComputeEntitlementList(snap, report.HolderQuery{
			MinStake:      minStake,
			LicenseNo:     licenseNo,
			LicensePrefix: s.licensePrefix,
		})
	}
	s.metrics.ObserveReport("holders", span.End(err), err)
	return holders, err
}

// DateRange returns the earliest and latest stored observations.
func (s *Service) DateRange(ctx context.Context) (storage.DateRange, error) {
	if s.store == nil {
		return storage.DateRange{}, storage.ErrNotConfigured
	}
	return s.store.DateRange(ctx)
}

// ActiveParticipants lists every address that has reported.
func (s *Service) ActiveParticipants(ctx context.Context) ([]string, error) {
	if s.store == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.store.ListActiveParticipants(ctx)
}

// ParticipantCounts returns all-time row counts per address.
func (s *Service) ParticipantCounts(ctx context.Context) ([]storage.ParticipantCount, error) {
	if s.store == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.store.CountByParticipant(ctx)
}

// OnlineCollectors summarises each address's activity over the last day.
func (s *Service) OnlineCollectors(ctx context.Context) ([]render.CollectorRow, error) {
	if s.store == nil {
		return nil, storage.ErrNotConfigured
	}
	now := s.now()

	counts, err := s.store.CollectorCounts(ctx, now.Add(-collectorWindow))
	if err != nil {
		return nil, err
	}
	feeds, err := s.store.CountFeedsSince(ctx, now.Add(-feedWindow))
	if err != nil {
		return nil, err
	}

	rows := make([]render.CollectorRow, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, collectorRow(c, feeds))
	}
	return rows, nil
}

func collectorRow(c storage.CollectorCount, feeds int) render.CollectorRow {
	row := render.CollectorRow{Address: c.Address, Total: c.Total, Last24h: c.Recent}
	if feeds <= 0 {
		return row
	}
	perFeed := float64(c.Recent) / float64(feeds)
	row.PerDay = int64(perFeed) + 1
	row.PerHour = int64(perFeed/24) + 1
	row.PerMinute = math.Round(perFeed/24/60*1e4) / 1e4
	return row
}
