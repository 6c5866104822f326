package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"itn-reports/internal/report"
	"itn-reports/internal/version"
)

const (
	stakeHoldersPath   = "/stake_holders"
	licenseHoldersPath = "/license_holders"
	aliasesPath        = "/aliases"
)

// CallObserver is notified after every upstream call.
type CallObserver func(call string, err error)

// HTTPOptions parameterise the REST gateway source.
type HTTPOptions struct {
	BaseURL     string
	Timeout     time.Duration
	RateLimit   time.Duration
	UserAgent   string
	MaxFailures uint32
	OpenTimeout time.Duration
	Observer    CallObserver
}

// HTTPSource reads entitlement data from the indexer's REST gateway.
type HTTPSource struct {
	opts    HTTPOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPSource constructs a REST gateway source.
func NewHTTPSource(opts HTTPOptions, logger zerolog.Logger) *HTTPSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Every(opts.RateLimit)
	}

	maxFailures := opts.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	log := logger.With().Str("component", "indexer_http").Logger()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "indexer",
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &HTTPSource{
		opts:    opts,
		logger:  log,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
	}
}

// StakeHolders lists staking addresses and their raw stake.
func (s *HTTPSource) StakeHolders(ctx context.Context) ([]StakeEntry, error) {
	var out []StakeEntry
	err := s.get(ctx, "stake_holders", stakeHoldersPath, &out)
	return out, err
}

// LicenseHolders lists license assets and their holders.
func (s *HTTPSource) LicenseHolders(ctx context.Context) ([]LicenseAsset, error) {
	var out []LicenseAsset
	err := s.get(ctx, "license_holders", licenseHoldersPath, &out)
	return out, err
}

// Aliases lists registered aliases.
func (s *HTTPSource) Aliases(ctx context.Context) ([]report.Alias, error) {
	var out []report.Alias
	err := s.get(ctx, "aliases", aliasesPath, &out)
	return out, err
}

func (s *HTTPSource) get(ctx context.Context, call, path string, dst any) error {
	if s.baseURL == "" {
		return errors.New("indexer base url not configured")
	}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.doGet(ctx, path, dst)
	})
	if s.opts.Observer != nil {
		s.opts.Observer(call, err)
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		return err
	}
	return nil
}

func (s *HTTPSource) doGet(ctx context.Context, path string, dst any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrSourceUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	s.logger.Debug().Str("path", path).Int("bytes", len(payload)).Msg("indexer response")
	return nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Hint    string `json:"hint"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		switch {
		case apiErr.Message != "":
			return fmt.Errorf("%w: indexer error (%d): %s", ErrSourceUnavailable, status, apiErr.Message)
		case apiErr.Hint != "":
			return fmt.Errorf("%w: indexer error (%d): %s", ErrSourceUnavailable, status, apiErr.Hint)
		case apiErr.Error != "":
			return fmt.Errorf("%w: indexer error (%d): %s", ErrSourceUnavailable, status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%w: indexer error (%d): %s", ErrSourceUnavailable, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%w: indexer error (%d)", ErrSourceUnavailable, status)
}

var _ Source = (*HTTPSource)(nil)
