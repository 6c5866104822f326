package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"itn-reports/internal/report"
)

// Holder sort keys accepted by HoldersCSV.
const (
	SortStake   = "stake"
	SortLicense = "license"
	SortAlias   = "alias"
	SortStaking = "staking"
)

// UnknownSortError is returned for an unsupported holder sort key.
type UnknownSortError struct {
	Key string
}

func (e *UnknownSortError) Error() string {
	return fmt.Sprintf("unknown sort key %q (want stake, license, alias or staking)", e.Key)
}

var reportHeader = []string{
	"address",
	"license",
	"stake",
	"total_data_points",
	"average_mins_collecting_per_feed",
	"total_mins_in_date_range",
	"number_of_feeds_collected",
	"coverage_pct",
}

// ReportCSV writes one row per participant, ordered by address.
func ReportCSV(w io.Writer, r *report.Report) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(reportHeader); err != nil {
		return err
	}

	for _, addr := range r.Addresses() {
		row := r.Data[addr]
		license, stake := "", ""
		if row.License != nil {
			license = *row.License
		}
		if row.Stake != nil {
			stake = strconv.FormatInt(*row.Stake, 10)
		}
		record := []string{
			addr,
			license,
			stake,
			strconv.Itoa(row.TotalDataPoints),
			strconv.Itoa(row.AverageMinutesPerFeed),
			strconv.FormatInt(row.TotalMinutesInRange, 10),
			strconv.Itoa(row.FeedsCollected),
			strconv.FormatFloat(r.CoveragePct(addr), 'f', 2, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// HoldersCSV writes the entitlement list sorted by key. An empty key sorts by stake.
func HoldersCSV(w io.Writer, holders []report.LicenseHolder, key string) error {
	sorted, err := SortHolders(holders, key)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"staking", "staked", "licenses", "alias"}); err != nil {
		return err
	}
	for _, h := range sorted {
		record := []string{
			h.Staking,
			strconv.FormatInt(h.Staked, 10),
			h.LicenseSummary(),
			h.Alias,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// SortHolders returns a sorted copy of holders. Stake sorts largest first;
// the other keys sort ascending. Ties fall back to the staking address.
func SortHolders(holders []report.LicenseHolder, key string) ([]report.LicenseHolder, error) {
	var less func(a, b report.LicenseHolder) bool
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", SortStake:
		less = func(a, b report.LicenseHolder) bool { return a.Staked > b.Staked }
	case SortLicense:
		less = func(a, b report.LicenseHolder) bool { return firstLicense(a) < firstLicense(b) }
	case SortAlias:
		less = func(a, b report.LicenseHolder) bool { return a.Alias < b.Alias }
	case SortStaking:
		less = func(a, b report.LicenseHolder) bool { return false }
	default:
		return nil, &UnknownSortError{Key: key}
	}

	out := make([]report.LicenseHolder, len(holders))
	copy(out, holders)
	sort.SliceStable(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].Staking < out[j].Staking
	})
	return out, nil
}

func firstLicense(h report.LicenseHolder) string {
	if len(h.Licenses) == 0 {
		return ""
	}
	return h.Licenses[0]
}
