package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInterval(t *testing.T) {
	_, err := New(Options{}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestNextTickAligned(t *testing.T) {
	s, err := New(Options{Interval: 24 * time.Hour, AlignToBucket: true}, zerolog.Nop())
	require.NoError(t, err)

	now := time.Date(2024, 11, 1, 13, 45, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC), s.nextTick(now))

	midnight := time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 11, 3, 0, 0, 0, 0, time.UTC), s.nextTick(midnight))
	assert.Equal(t, midnight, s.bucketStart(midnight.Add(5*time.Hour)))
}

func TestNextTickUnaligned(t *testing.T) {
	s, err := New(Options{Interval: time.Hour}, zerolog.Nop())
	require.NoError(t, err)

	now := time.Date(2024, 11, 1, 13, 45, 0, 0, time.UTC)
	assert.Equal(t, now.Add(time.Hour), s.nextTick(now))
	assert.Equal(t, now, s.bucketStart(now))
}

func TestRunFiresAndStops(t *testing.T) {
	s, err := New(Options{Interval: 20 * time.Millisecond, RunImmediately: true}, zerolog.Nop())
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		buckets []time.Time
	)
	ctx, cancel := context.WithCancel(context.Background())
	tick := func(ctx context.Context, bucket time.Time) error {
		mu.Lock()
		defer mu.Unlock()
		buckets = append(buckets, bucket)
		if len(buckets) == 3 {
			cancel()
		}
		return errors.New("tick errors are logged, not fatal")
	}

	err = s.Run(ctx, tick)
	assert.ErrorIs(t, err, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, buckets, 3)
}

func TestRunHonoursStartupCancel(t *testing.T) {
	s, err := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx, func(context.Context, time.Time) error { return nil }), context.Canceled)
}
