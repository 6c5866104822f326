package storage

import (
	"context"
	"errors"
	"time"

	"itn-reports/internal/report"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
)

// DateRange is the span of observations held by the store.
type DateRange struct {
	Earliest string `json:"earliest_date"`
	Latest   string `json:"latest_date"`
}

// ParticipantCount is the raw row count for one address.
type ParticipantCount struct {
	Address string `json:"address"`
	Count   int64  `json:"count"`
}

// CollectorCount splits an address's rows into all-time and recent counts.
type CollectorCount struct {
	Address string
	Total   int64
	Recent  int64
}

// ObservationStore is the read-only query surface over raw observations.
type ObservationStore interface {
	// ListObservationsBetween returns rows strictly between the two calendar
	// dates, ordered by address.
	ListObservationsBetween(ctx context.Context, start, end string) ([]report.Observation, error)
	DateRange(ctx context.Context) (DateRange, error)
	ListActiveParticipants(ctx context.Context) ([]string, error)
	CountByParticipant(ctx context.Context) ([]ParticipantCount, error)
	// CollectorCounts counts rows per address, overall and at or after since.
	CollectorCounts(ctx context.Context, since time.Time) ([]CollectorCount, error)
	CountFeedsSince(ctx context.Context, since time.Time) (int, error)
	Close()
}

const observationTimeLayout = "2006-01-02T15:04:05"
