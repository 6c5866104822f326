package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"itn-reports/internal/report"
)

// RPCOptions parameterise the JSON-RPC source.
type RPCOptions struct {
	URL      string
	Timeout  time.Duration
	Observer CallObserver
}

// RPCSource reads entitlement data over JSON-RPC 2.0 ("itn_*" methods).
type RPCSource struct {
	opts      RPCOptions
	logger    zerolog.Logger
	client    *rpc.Client
	clientMux sync.Mutex
}

// NewRPCSource builds a JSON-RPC source. The connection is dialled lazily.
func NewRPCSource(opts RPCOptions, logger zerolog.Logger) *RPCSource {
	return &RPCSource{opts: opts, logger: logger.With().Str("component", "indexer_rpc").Logger()}
}

// StakeHolders calls itn_stakeHolders.
func (s *RPCSource) StakeHolders(ctx context.Context) ([]StakeEntry, error) {
	var out []StakeEntry
	err := s.call(ctx, "stake_holders", &out, "itn_stakeHolders")
	return out, err
}

// LicenseHolders calls itn_licenseHolders.
func (s *RPCSource) LicenseHolders(ctx context.Context) ([]LicenseAsset, error) {
	var out []LicenseAsset
	err := s.call(ctx, "license_holders", &out, "itn_licenseHolders")
	return out, err
}

// Aliases calls itn_aliases.
func (s *RPCSource) Aliases(ctx context.Context) ([]report.Alias, error) {
	var out []report.Alias
	err := s.call(ctx, "aliases", &out, "itn_aliases")
	return out, err
}

// Close shuts the underlying connection, if one was opened.
func (s *RPCSource) Close() {
	s.clientMux.Lock()
	defer s.clientMux.Unlock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}

func (s *RPCSource) call(ctx context.Context, name string, result any, method string) error {
	err := s.doCall(ctx, result, method)
	if s.opts.Observer != nil {
		s.opts.Observer(name, err)
	}
	return err
}

func (s *RPCSource) doCall(ctx context.Context, result any, method string) error {
	if s.opts.URL == "" {
		return errors.New("indexer rpc url not configured")
	}

	timeout := s.opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := s.getClient(ctx)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrSourceUnavailable, s.opts.URL, err)
	}

	if err := client.CallContext(ctx, result, method); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return fmt.Errorf("%w: %s: rpc error %d: %s", ErrSourceUnavailable, method, rpcErr.ErrorCode(), rpcErr.Error())
		}
		return fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, method, err)
	}
	return nil
}

func (s *RPCSource) getClient(ctx context.Context) (*rpc.Client, error) {
	s.clientMux.Lock()
	defer s.clientMux.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	client, err := rpc.DialContext(ctx, s.opts.URL)
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

var _ Source = (*RPCSource)(nil)
