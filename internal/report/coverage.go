package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// coverageKey is one deduplicated (feed, minute) unit.
type coverageKey struct {
	feed   string
	minute string
}

// AddressCoverage accumulates what a single address reported.
type AddressCoverage struct {
	units map[coverageKey]struct{}
	feeds map[string]struct{}
	// raw holds non-deduplicated counts per feed, in first-seen order.
	raw      map[string]int
	rawOrder []string
}

func newAddressCoverage() *AddressCoverage {
	return &AddressCoverage{
		units: make(map[coverageKey]struct{}),
		feeds: make(map[string]struct{}),
		raw:   make(map[string]int),
	}
}

// Units is the number of unique (feed, minute) pairs.
func (c *AddressCoverage) Units() int { return len(c.units) }

// Feeds is the number of distinct feeds reported.
func (c *AddressCoverage) Feeds() int { return len(c.feeds) }

// FeedCounts renders raw observation counts per feed as "feed: count".
func (c *AddressCoverage) FeedCounts() []string {
	out := make([]string, 0, len(c.rawOrder))
	for _, feed := range c.rawOrder {
		out = append(out, fmt.Sprintf("%s: %d", feed, c.raw[feed]))
	}
	return out
}

// CoverageIndex maps an address to its accumulated coverage. Insertion is
// idempotent per (address, feed, minute).
type CoverageIndex map[string]*AddressCoverage

// Add records one observation.
func (idx CoverageIndex) Add(obs Observation) {
	addr := strings.TrimSpace(obs.Address)
	feed := strings.TrimSpace(obs.FeedID)

	cov, ok := idx[addr]
	if !ok {
		cov = newAddressCoverage()
		idx[addr] = cov
	}

	cov.units[coverageKey{feed: feed, minute: truncateToMinute(obs.Timestamp)}] = struct{}{}
	cov.feeds[feed] = struct{}{}
	if _, seen := cov.raw[feed]; !seen {
		cov.rawOrder = append(cov.rawOrder, feed)
	}
	cov.raw[feed]++
}

// Deduplicate builds a CoverageIndex from a raw batch.
func Deduplicate(observations []Observation) CoverageIndex {
	idx := make(CoverageIndex)
	for _, obs := range observations {
		idx.Add(obs)
	}
	return idx
}

// truncateToMinute drops sub-minute precision. Unparseable timestamps fall
// back to cutting the last ":"-separated component.
func truncateToMinute(ts string) string {
	ts = strings.TrimSpace(ts)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC().Truncate(time.Minute).Format("2006-01-02T15:04")
		}
	}
	if i := strings.LastIndex(ts, ":"); i >= 0 {
		return strings.TrimSpace(ts[:i])
	}
	return ts
}

// ExtractFeedsAndAddresses returns the distinct feeds and distinct addresses in
// a batch, both sorted ascending.
func ExtractFeedsAndAddresses(observations []Observation) (feeds []string, addresses []string) {
	feedSet := make(map[string]struct{})
	addrSet := make(map[string]struct{})
	for _, obs := range observations {
		feed := strings.TrimSpace(obs.FeedID)
		if _, ok := feedSet[feed]; !ok {
			feedSet[feed] = struct{}{}
			feeds = append(feeds, feed)
		}
		addr := strings.TrimSpace(obs.Address)
		if _, ok := addrSet[addr]; !ok {
			addrSet[addr] = struct{}{}
			addresses = append(addresses, addr)
		}
	}
	sortStrings(feeds)
	sortStrings(addresses)
	return feeds, addresses
}

// AddressStats is the coverage portion of a participant's report row.
type AddressStats struct {
	TotalDataPoints       int
	AverageMinutesPerFeed int
	FeedsCollected        int
	FeedsCount            []string
}

// Aggregate computes per-address coverage statistics. The per-feed average
// divides by the number of feeds observed in the window and is zero when no
// feeds were observed.
func Aggregate(idx CoverageIndex, addresses, feeds []string) map[string]AddressStats {
	stats := make(map[string]AddressStats, len(addresses))
	for _, addr := range addresses {
		cov, ok := idx[addr]
		if !ok {
			continue
		}
		total := cov.Units()
		avg := 0
		if len(feeds) > 0 {
			avg = total / len(feeds)
		}
		stats[addr] = AddressStats{
			TotalDataPoints:       total,
			AverageMinutesPerFeed: avg,
			FeedsCollected:        cov.Feeds(),
			FeedsCount:            cov.FeedCounts(),
		}
	}
	return stats
}

func sortStrings(s []string) {
	sort.Strings(s)
}
