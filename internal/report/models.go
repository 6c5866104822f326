package report

// Observation is a single recorded sighting of a participant reporting a feed.
type Observation struct {
	Address   string
	Timestamp string
	FeedID    string
}

// Alias ties a human-readable label to a staking address.
type Alias struct {
	Staking string `json:"staking"`
	Alias   string `json:"alias"`
	Address string `json:"address,omitempty"`
	Tx      string `json:"tx,omitempty"`
}

// EntitlementSnapshot is the decoded output of the entitlement source for one request.
type EntitlementSnapshot struct {
	// Stakes maps staking address to whole-token stake, already filtered to a minimum.
	Stakes map[string]int64
	// Licenses maps license name to the staking address holding it.
	Licenses map[string]string
	Aliases  []Alias
}

// LicenseHolder is an address that holds both stake and at least one license.
type LicenseHolder struct {
	Staking  string   `json:"staking"`
	Staked   int64    `json:"staked"`
	Licenses []string `json:"licenses"`
	Alias    string   `json:"alias"`
}

// ParticipantStats is the per-address row of a coverage report.
type ParticipantStats struct {
	License               *string  `json:"license"`
	Stake                 *int64   `json:"stake"`
	TotalDataPoints       int      `json:"total_data_points"`
	AverageMinutesPerFeed int      `json:"average_mins_collecting_per_feed"`
	TotalMinutesInRange   int64    `json:"total_mins_in_date_range"`
	FeedsCollected        int      `json:"number_of_feeds_collected"`
	FeedsCount            []string `json:"feeds_count"`
}

// Report is the coverage report for a date range.
type Report struct {
	Start                 string                      `json:"start"`
	End                   string                      `json:"end"`
	ExpectedFeedCount     int                         `json:"expected_number_of_feeds"`
	MaxPossibleDataPoints int64                       `json:"max_possible_data_points"`
	TotalDaysInRange      int64                       `json:"total_days_in_range"`
	Data                  map[string]ParticipantStats `json:"data"`
	ExpectedFeeds         []string                    `json:"expected_feeds"`
}

// Addresses returns the report's addresses in ascending order.
func (r *Report) Addresses() []string {
	addrs := make([]string, 0, len(r.Data))
	for addr := range r.Data {
		addrs = append(addrs, addr)
	}
	sortStrings(addrs)
	return addrs
}
