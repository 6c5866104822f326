package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGateway(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(stakeHoldersPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]StakeEntry{{Staking: "stake_a", Amount: "600000000000"}})
	})
	mux.HandleFunc(licenseHoldersPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]LicenseAsset{{Asset: testPolicy + "." + cip68Prefix + license1Hex, Staking: "stake_a"}})
	})
	mux.HandleFunc(aliasesPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"staking":"stake_a","alias":"alpha","address":"addr1","tx":"abc"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPSourceSnapshot(t *testing.T) {
	srv := newGateway(t)

	var (
		mu    sync.Mutex
		calls = map[string]int{}
	)
	src := NewHTTPSource(HTTPOptions{
		BaseURL:   srv.URL + "/",
		Timeout:   time.Second,
		UserAgent: "test-agent",
		Observer: func(call string, err error) {
			mu.Lock()
			defer mu.Unlock()
			assert.NoError(t, err)
			calls[call]++
		},
	}, zerolog.Nop())

	snap, err := FetchSnapshot(context.Background(), src, SnapshotOptions{MinStake: 500000, LicensePolicy: testPolicy}, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"stake_a": 600000}, snap.Stakes)
	assert.Equal(t, map[string]string{"Validator License 1": "stake_a"}, snap.Licenses)
	require.Len(t, snap.Aliases, 1)
	assert.Equal(t, "alpha", snap.Aliases[0].Alias)
	assert.Equal(t, map[string]int{"stake_holders": 1, "license_holders": 1, "aliases": 1}, calls)
}

func TestHTTPSourceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "indexer syncing"})
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPOptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	_, err := src.StakeHolders(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "indexer syncing")
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPSourceBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPOptions{
		BaseURL:     srv.URL,
		Timeout:     time.Second,
		MaxFailures: 2,
		OpenTimeout: time.Minute,
	}, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := src.Aliases(context.Background())
		require.Error(t, err)
	}
	_, err := src.Aliases(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPSourceMissingBaseURL(t *testing.T) {
	src := NewHTTPSource(HTTPOptions{}, zerolog.Nop())
	_, err := src.LicenseHolders(context.Background())
	assert.Error(t, err)
}

func TestHTTPSourceBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPOptions{BaseURL: srv.URL}, zerolog.Nop())
	_, err := src.StakeHolders(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
