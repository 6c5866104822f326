package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itn-reports/internal/alerting"
	"itn-reports/internal/config"
	"itn-reports/internal/indexer"
	"itn-reports/internal/metrics"
	"itn-reports/internal/report"
	"itn-reports/internal/storage"
)

const (
	testPolicy = "0c6f22bfabcb055927ca3235eac387945b6017f15223d9365e6e4e43"
	license001 = "56616c696461746f72204c6963656e73652023303031"
	license002 = "56616c696461746f72204c6963656e73652023303032"
)

type fakeStore struct {
	mu           sync.Mutex
	observations []report.Observation
	window       [2]string
	counts       []storage.CollectorCount
	feeds        int
	since        []time.Time
	err          error
}

func (f *fakeStore) ListObservationsBetween(_ context.Context, start, end string) ([]report.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.window = [2]string{start, end}
	return f.observations, f.err
}

func (f *fakeStore) DateRange(context.Context) (storage.DateRange, error) {
	return storage.DateRange{Earliest: "2024-10-01T00:00:00", Latest: "2024-11-02T00:00:00"}, f.err
}

func (f *fakeStore) ListActiveParticipants(context.Context) ([]string, error) {
	return []string{"stake_a", "stake_b"}, f.err
}

func (f *fakeStore) CountByParticipant(context.Context) ([]storage.ParticipantCount, error) {
	return []storage.ParticipantCount{{Address: "stake_a", Count: 3}}, f.err
}

func (f *fakeStore) CollectorCounts(_ context.Context, since time.Time) ([]storage.CollectorCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = append(f.since, since)
	return f.counts, f.err
}

func (f *fakeStore) CountFeedsSince(_ context.Context, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = append(f.since, since)
	return f.feeds, f.err
}

func (f *fakeStore) Close() {}

type fakeSource struct {
	err error
}

func (f *fakeSource) StakeHolders(context.Context) ([]indexer.StakeEntry, error) {
	return []indexer.StakeEntry{
		{Staking: "stake_a", Amount: "600000000000"},
		{Staking: "stake_c", Amount: "800000000000"},
		{Staking: "stake_d", Amount: "100000000"},
	}, f.err
}

func (f *fakeSource) LicenseHolders(context.Context) ([]indexer.LicenseAsset, error) {
	return []indexer.LicenseAsset{
		{Asset: testPolicy + ".000de140" + license001, Staking: "stake_a"},
		{Asset: testPolicy + ".000de140" + license002, Staking: "stake_c"},
	}, nil
}

func (f *fakeSource) Aliases(context.Context) ([]report.Alias, error) {
	return []report.Alias{{Staking: "stake_a", Alias: "alpha"}}, nil
}

type recordingNotifier struct {
	notes []alerting.Notification
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.notes = append(n.notes, note)
	return n.err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Indexer.MinStake = 500000
	cfg.Indexer.LicensePolicy = testPolicy
	cfg.Report.LicensePrefix = report.DefaultLicensePrefix
	cfg.Alerting.Enabled = true
	cfg.Alerting.ThresholdPct = 50
	cfg.Alerting.Channels = []string{"telegram"}
	return cfg
}

func testObservations() []report.Observation {
	return []report.Observation{
		{Address: "stake_a", Timestamp: "2024-11-01T10:00:05Z", FeedID: "ADA-USD"},
		{Address: "stake_a", Timestamp: "2024-11-01T10:00:40Z", FeedID: "ADA-USD"},
		{Address: "stake_a", Timestamp: "2024-11-01T10:01:00Z", FeedID: "FACT-ADA"},
		{Address: "stake_b", Timestamp: "2024-11-01T11:00:00Z", FeedID: "ADA-USD"},
	}
}

func TestCoverageReportJoinsEntitlements(t *testing.T) {
	store := &fakeStore{observations: testObservations()}
	reg := metrics.New()
	svc := New(testConfig(), nil, store, &fakeSource{}, nil, reg, zerolog.Nop())

	rep, err := svc.CoverageReport(context.Background(), "2024-11-01", "2024-11-02")
	require.NoError(t, err)

	assert.Equal(t, [2]string{"2024-11-01", "2024-11-02"}, store.window)
	assert.Equal(t, 2, rep.ExpectedFeedCount)
	assert.Equal(t, int64(2880), rep.MaxPossibleDataPoints)
	assert.Equal(t, int64(1), rep.TotalDaysInRange)

	a := rep.Data["stake_a"]
	require.NotNil(t, a.License)
	assert.Equal(t, "Validator License #001", *a.License)
	assert.Equal(t, int64(600000), *a.Stake)
	assert.Equal(t, 2, a.TotalDataPoints)
	assert.Equal(t, 1, a.AverageMinutesPerFeed)

	b := rep.Data["stake_b"]
	assert.Nil(t, b.License)
	assert.Nil(t, b.Stake)
}

func TestCoverageReportRejectsBadDatesBeforeIO(t *testing.T) {
	store := &fakeStore{}
	svc := New(testConfig(), nil, store, &fakeSource{}, nil, nil, zerolog.Nop())

	_, err := svc.CoverageReport(context.Background(), "2024/11/01", "2024-11-02")
	require.Error(t, err)
	assert.ErrorIs(t, err, report.ErrInvalidDateFormat)

	var dateErr *report.DateError
	require.True(t, errors.As(err, &dateErr))
	assert.Equal(t, "date_start", dateErr.Field)
	assert.Equal(t, [2]string{}, store.window)
}

func TestCoverageReportSourceUnavailable(t *testing.T) {
	svc := New(testConfig(), nil, &fakeStore{}, &fakeSource{err: errors.New("dial tcp: refused")}, nil, nil, zerolog.Nop())

	_, err := svc.CoverageReport(context.Background(), "2024-11-01", "2024-11-02")
	assert.ErrorIs(t, err, indexer.ErrSourceUnavailable)
}

func TestCoverageReportWithoutStore(t *testing.T) {
	svc := New(testConfig(), nil, nil, &fakeSource{}, nil, nil, zerolog.Nop())

	_, err := svc.CoverageReport(context.Background(), "2024-11-01", "2024-11-02")
	assert.ErrorIs(t, err, storage.ErrNotConfigured)
}

func TestLicenseHolders(t *testing.T) {
	svc := New(testConfig(), nil, &fakeStore{}, &fakeSource{}, nil, nil, zerolog.Nop())

	holders, err := svc.LicenseHolders(context.Background(), 0, "")
	require.NoError(t, err)
	require.Len(t, holders, 2)
	assert.Equal(t, "stake_a", holders[0].Staking)
	assert.Equal(t, "alpha", holders[0].Alias)
	assert.Equal(t, "stake_c", holders[1].Staking)

	holders, err = svc.LicenseHolders(context.Background(), 700000, "")
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, "stake_c", holders[0].Staking)

	holders, err = svc.LicenseHolders(context.Background(), 0, "#001")
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, "stake_a", holders[0].Staking)
}

func TestOnlineCollectorsAverages(t *testing.T) {
	now := time.Date(2024, 11, 2, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{
		counts: []storage.CollectorCount{
			{Address: "stake_a", Total: 10000, Recent: 2880},
			{Address: "stake_b", Total: 50, Recent: 0},
		},
		feeds: 2,
	}
	svc := New(testConfig(), nil, store, &fakeSource{}, nil, nil, zerolog.Nop())
	svc.now = func() time.Time { return now }

	rows, err := svc.OnlineCollectors(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(1441), rows[0].PerDay)
	assert.Equal(t, int64(61), rows[0].PerHour)
	assert.Equal(t, 1.0, rows[0].PerMinute)
	assert.Equal(t, int64(1), rows[1].PerDay)
	assert.Equal(t, int64(1), rows[1].PerHour)
	assert.Equal(t, 0.0, rows[1].PerMinute)

	assert.Equal(t, []time.Time{now.Add(-24 * time.Hour), now.Add(-48 * time.Hour)}, store.since)
}

func TestOnlineCollectorsZeroFeeds(t *testing.T) {
	row := collectorRow(storage.CollectorCount{Address: "stake_a", Total: 5, Recent: 5}, 0)
	assert.Equal(t, int64(0), row.PerDay)
	assert.Equal(t, int64(0), row.PerHour)
	assert.Equal(t, 0.0, row.PerMinute)
	assert.Equal(t, int64(5), row.Last24h)
}

func TestCollectorRowRounding(t *testing.T) {
	row := collectorRow(storage.CollectorCount{Address: "stake_a", Recent: 1000}, 3)
	assert.Equal(t, int64(334), row.PerDay)
	assert.Equal(t, int64(14), row.PerHour)
	assert.Equal(t, 0.2315, row.PerMinute)
}

func TestShortfalls(t *testing.T) {
	rep := &report.Report{
		MaxPossibleDataPoints: 100,
		Data: map[string]report.ParticipantStats{
			"stake_a": {TotalDataPoints: 80},
			"stake_b": {TotalDataPoints: 10},
		},
	}
	holders := []report.LicenseHolder{
		{Staking: "stake_a", Licenses: []string{"Validator License #001"}},
		{Staking: "stake_b", Licenses: []string{"Validator License #002"}},
		{Staking: "stake_c", Licenses: []string{"Validator License #003"}},
	}

	got := Shortfalls(rep, holders, 50)
	require.Len(t, got, 2)
	assert.Equal(t, "stake_c", got[0].Address)
	assert.Equal(t, 0.0, got[0].CoveragePct)
	assert.Equal(t, "stake_b", got[1].Address)
	assert.Equal(t, 10.0, got[1].CoveragePct)
	assert.Equal(t, 10, got[1].DataPoints)
	assert.Equal(t, "Validator License #002", got[1].License)
}

func TestProcessBucketExportsAndAlerts(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Export.Dir = filepath.Join(dir, "reports")

	store := &fakeStore{observations: testObservations()}
	notifier := &recordingNotifier{}
	svc := New(cfg, nil, store, &fakeSource{}, notifier, metrics.New(), zerolog.Nop())

	bucket := time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.ProcessBucket(context.Background(), bucket))

	assert.Equal(t, [2]string{"2024-11-01", "2024-11-02"}, store.window)

	data, err := os.ReadFile(filepath.Join(cfg.Export.Dir, "coverage_2024-11-01.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "stake_a,Validator License #001,600000,2,1,1440,2,0.07")

	require.Len(t, notifier.notes, 1)
	note := notifier.notes[0]
	assert.Equal(t, "2024-11-01", note.Start)
	assert.Equal(t, int64(2880), note.MaxPossible)
	require.Len(t, note.Shortfalls, 2)
	assert.Equal(t, "stake_c", note.Shortfalls[0].Address)
	assert.Equal(t, "stake_a", note.Shortfalls[1].Address)
}

func TestProcessBucketNoAlertWhenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Alerting.Enabled = false
	notifier := &recordingNotifier{}
	svc := New(cfg, nil, &fakeStore{observations: testObservations()}, &fakeSource{}, notifier, nil, zerolog.Nop())

	require.NoError(t, svc.ProcessBucket(context.Background(), time.Date(2024, 11, 2, 6, 0, 0, 0, time.UTC)))
	assert.Empty(t, notifier.notes)
}

func TestProcessBucketPropagatesReportFailure(t *testing.T) {
	svc := New(testConfig(), nil, &fakeStore{err: errors.New("disk I/O error")}, &fakeSource{}, nil, nil, zerolog.Nop())

	err := svc.ProcessBucket(context.Background(), time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestRunWithoutScheduler(t *testing.T) {
	svc := New(testConfig(), nil, &fakeStore{}, &fakeSource{}, nil, nil, zerolog.Nop())
	assert.Error(t, svc.Run(context.Background()))
}
