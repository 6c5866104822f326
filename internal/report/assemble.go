package report

// Assemble joins coverage statistics with the entitlement list. Addresses
// without an entitlement record keep nil license and stake.
func Assemble(start, end string, minutesInRange int64, stats map[string]AddressStats, holders []LicenseHolder, feeds []string) *Report {
	byAddress := make(map[string]LicenseHolder, len(holders))
	for _, h := range holders {
		byAddress[h.Staking] = h
	}

	data := make(map[string]ParticipantStats, len(stats))
	for addr, s := range stats {
		row := ParticipantStats{
			TotalDataPoints:       s.TotalDataPoints,
			AverageMinutesPerFeed: s.AverageMinutesPerFeed,
			TotalMinutesInRange:   minutesInRange,
			FeedsCollected:        s.FeedsCollected,
			FeedsCount:            s.FeedsCount,
		}
		if h, ok := byAddress[addr]; ok {
			license := h.LicenseSummary()
			stake := h.Staked
			row.License = &license
			row.Stake = &stake
		}
		data[addr] = row
	}

	expected := make([]string, len(feeds))
	copy(expected, feeds)

	return &Report{
		Start:                 start,
		End:                   end,
		ExpectedFeedCount:     len(feeds),
		MaxPossibleDataPoints: minutesInRange * int64(len(feeds)),
		TotalDaysInRange:      floorDiv(minutesInRange, MinutesPerDay),
		Data:                  data,
		ExpectedFeeds:         expected,
	}
}

// ComputeCoverageReport builds the coverage report for [start, end) from a
// fetched observation batch and entitlement snapshot.
func ComputeCoverageReport(start, end string, observations []Observation, snap EntitlementSnapshot) (*Report, error) {
	minutes, err := MinutesBetween(start, end)
	if err != nil {
		return nil, err
	}

	feeds, addresses := ExtractFeedsAndAddresses(observations)
	idx := Deduplicate(observations)
	stats := Aggregate(idx, addresses, feeds)
	holders := CollateHolders(snap, 0)

	return Assemble(start, end, minutes, stats, holders, feeds), nil
}

// CoveragePct is an address's share of the maximum possible data points, in
// percent. It is zero when the maximum is not positive.
func (r *Report) CoveragePct(addr string) float64 {
	row, ok := r.Data[addr]
	if !ok || r.MaxPossibleDataPoints <= 0 {
		return 0
	}
	return float64(row.TotalDataPoints) / float64(r.MaxPossibleDataPoints) * 100
}
