package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"itn-reports/internal/config"
	"itn-reports/internal/metrics"
)

const (
	testPolicy  = "policy1"
	license1Hex = "56616c696461746f72204c6963656e73652023303031"
)

func newIndexer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/stake_holders", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"staking":"stake_a","amount":"600000000000"},{"staking":"stake_b","amount":"100000000"}]`))
	})
	mux.HandleFunc("/license_holders", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"asset":"` + testPolicy + `.000de140` + license1Hex + `","staking":"stake_a"}]`))
	})
	mux.HandleFunc("/aliases", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"staking":"stake_a","alias":"alpha\tone","address":"addr1","tx":"abc"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "validator.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE data_points (address TEXT NOT NULL, date_time TEXT NOT NULL, feed_id TEXT NOT NULL)`)
	require.NoError(t, err)
	rows := [][3]string{
		{"stake_a", "2024-11-01T10:00:05", "ADA-USD"},
		{"stake_a", "2024-11-01T10:00:45", "ADA-USD"},
		{"stake_a", "2024-11-01T10:01:00", "ADA-USD"},
		{"stake_b", "2024-11-02T08:00:00", "ADA-USD"},
	}
	for _, r := range rows {
		_, err = db.Exec(`INSERT INTO data_points (address, date_time, feed_id) VALUES (?, ?, ?)`, r[0], r[1], r[2])
		require.NoError(t, err)
	}
	return path
}

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	indexer := newIndexer(t)
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", Path: newDatabase(t), QueryTimeout: 5 * time.Second},
		Indexer: config.IndexerConfig{
			Transport:      "http",
			BaseURL:        indexer.URL,
			LicensePolicy:  testPolicy,
			MinStake:       500000,
			RequestTimeout: time.Second,
		},
		Report: config.ReportConfig{DefaultStart: "2024-11-01", DefaultEnd: "2024-11-02", LicensePrefix: "Validator License"},
		Export: config.ExportConfig{ChartWidth: 800, ChartHeight: 400},
	}

	var out bytes.Buffer
	return &App{Config: cfg, Logger: zerolog.Nop(), Metrics: metrics.New(), Out: &out}, &out
}

func TestReportPrintsAndExports(t *testing.T) {
	a, out := newTestApp(t)
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "nested", "report.csv")
	pngPath := filepath.Join(dir, "report.png")

	err := a.Report(context.Background(), ReportOptions{CSVPath: csvPath, PNGPath: pngPath})
	require.NoError(t, err)

	var rep map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, "2024-11-01", rep["start"])
	assert.Equal(t, float64(1440), rep["max_possible_data_points"])

	body, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "stake_a,Validator License #001,600000,2,2,1440,1,0.14")

	png, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestReportQuietSkipsOutput(t *testing.T) {
	a, out := newTestApp(t)

	require.NoError(t, a.Report(context.Background(), ReportOptions{Quiet: true}))
	assert.Zero(t, out.Len())
}

func TestReportRejectsBadDate(t *testing.T) {
	a, _ := newTestApp(t)

	err := a.Report(context.Background(), ReportOptions{Start: "2024/11/01"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "date_start")
}

func TestHoldersTable(t *testing.T) {
	a, out := newTestApp(t)

	require.NoError(t, a.Holders(context.Background(), HoldersOptions{}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Staking"))
	assert.Contains(t, lines[1], "600,000")
	assert.Contains(t, lines[1], "alpha one")
}

func TestHoldersMinStakeOverrideAndJSON(t *testing.T) {
	a, out := newTestApp(t)
	zero := int64(0)

	require.NoError(t, a.Holders(context.Background(), HoldersOptions{MinStake: &zero, JSON: true, Sort: "staking"}))
	var holders []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &holders))
	require.Len(t, holders, 1)
	assert.Equal(t, "stake_a", holders[0]["staking"])
}

func TestHoldersUnknownSort(t *testing.T) {
	a, _ := newTestApp(t)

	err := a.Holders(context.Background(), HoldersOptions{Sort: "height"})
	require.Error(t, err)
}

func TestDateRangeAndCollectors(t *testing.T) {
	a, out := newTestApp(t)

	require.NoError(t, a.DateRange(context.Background()))
	assert.Contains(t, out.String(), `"earliest_date": "2024-11-01T10:00:05"`)

	out.Reset()
	require.NoError(t, a.Collectors(context.Background()))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Stake Key"))
	assert.True(t, strings.HasPrefix(lines[1], "stake_a"))
}

func TestBackfillDryRun(t *testing.T) {
	a, _ := newTestApp(t)
	a.Config.Export.Dir = t.TempDir()

	err := a.Backfill(context.Background(), BackfillOptions{From: "2024-11-01", To: "2024-11-03", DryRun: true, Workers: 2})
	require.NoError(t, err)

	entries, err := os.ReadDir(a.Config.Export.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBackfillExports(t *testing.T) {
	a, _ := newTestApp(t)
	a.Config.Export.Dir = t.TempDir()

	err := a.Backfill(context.Background(), BackfillOptions{From: "2024-11-01", To: "2024-11-03", Workers: 2})
	require.NoError(t, err)

	for _, name := range []string{"coverage_2024-11-01.csv", "coverage_2024-11-02.csv"} {
		_, err := os.Stat(filepath.Join(a.Config.Export.Dir, name))
		assert.NoError(t, err, name)
	}
}

func TestBackfillDays(t *testing.T) {
	days, err := backfillDays("2024-02-28", "2024-03-02")
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, "2024-02-29", days[1].Format("2006-01-02"))

	_, err = backfillDays("2024-03-02", "2024-03-02")
	assert.Error(t, err)

	_, err = backfillDays("yesterday", "2024-03-02")
	assert.Error(t, err)
}

func TestSimulateAlert(t *testing.T) {
	var body string
	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer tg.Close()

	a, _ := newTestApp(t)
	require.Error(t, a.SimulateAlert(context.Background(), 10))

	a.Config.Alerting = config.AlertingConfig{
		Enabled:      true,
		ThresholdPct: 80,
		Telegram:     config.TelegramConfig{Enabled: true, BotToken: "token", ChatID: "1", APIBase: tg.URL},
	}
	require.NoError(t, a.SimulateAlert(context.Background(), 12.5))
	assert.Contains(t, body, "12.50%")
}
