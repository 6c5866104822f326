package indexer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"itn-reports/internal/report"
)

// cip68Prefix is the CIP-68 (222) user-token label carried by license asset names.
const cip68Prefix = "000de140"

// ErrSourceUnavailable wraps any failure to reach the entitlement source.
var ErrSourceUnavailable = errors.New("entitlement source unavailable")

// StakeEntry is a staking address and its stake in the token's smallest unit.
type StakeEntry struct {
	Staking string `json:"staking"`
	Amount  string `json:"amount"`
}

// LicenseAsset is a license NFT and the staking address holding it.
type LicenseAsset struct {
	Asset   string `json:"asset"`
	Staking string `json:"staking"`
}

// Source retrieves stake, license and alias data from the chain indexer.
type Source interface {
	StakeHolders(ctx context.Context) ([]StakeEntry, error)
	LicenseHolders(ctx context.Context) ([]LicenseAsset, error)
	Aliases(ctx context.Context) ([]report.Alias, error)
}

// SnapshotOptions tune FetchSnapshot.
type SnapshotOptions struct {
	MinStake      int64
	LicensePolicy string
}

var tokenScale = decimal.New(1, 6)

// ToWholeTokens converts a smallest-unit amount to whole tokens, truncating.
func ToWholeTokens(amount string) (int64, error) {
	d, err := parseAmount(amount)
	if err != nil {
		return 0, err
	}
	return wholeTokens(d), nil
}

func parseAmount(amount string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse stake amount %q: %w", amount, err)
	}
	return d, nil
}

func wholeTokens(d decimal.Decimal) int64 {
	return d.Div(tokenScale).Truncate(0).IntPart()
}

// DecodeLicenseName turns "<policy>.<hex name>" into a readable license name.
func DecodeLicenseName(asset, policy string) (string, error) {
	name := strings.TrimPrefix(asset, policy)
	name = strings.ReplaceAll(name, ".", "")
	name = strings.TrimPrefix(name, cip68Prefix)

	raw, err := hex.DecodeString(name)
	if err != nil {
		return "", fmt.Errorf("decode license asset %q: %w", asset, err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("decode license asset %q: not utf-8", asset)
	}
	return string(raw), nil
}

// FetchSnapshot pulls stake, license and alias data concurrently and decodes it.
// Stakes not strictly above MinStake are dropped. Alias failures are logged
// and tolerated.
func FetchSnapshot(ctx context.Context, src Source, opts SnapshotOptions, logger zerolog.Logger) (report.EntitlementSnapshot, error) {
	var (
		stakes   []StakeEntry
		licenses []LicenseAsset
		aliases  []report.Alias
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stakes, err = src.StakeHolders(gctx)
		if err != nil {
			return unavailable("stake holders", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		licenses, err = src.LicenseHolders(gctx)
		if err != nil {
			return unavailable("license holders", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		aliases, err = src.Aliases(gctx)
		if err != nil {
			logger.Warn().Err(err).Msg("alias lookup failed; continuing without aliases")
			aliases = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return report.EntitlementSnapshot{}, err
	}

	snap := report.EntitlementSnapshot{
		Stakes:   make(map[string]int64, len(stakes)),
		Licenses: make(map[string]string, len(licenses)),
		Aliases:  aliases,
	}

	totals := make(map[string]decimal.Decimal, len(stakes))
	for _, entry := range stakes {
		amount, err := parseAmount(entry.Amount)
		if err != nil {
			logger.Warn().Err(err).Str("staking", entry.Staking).Msg("skipping stake entry")
			continue
		}
		totals[entry.Staking] = totals[entry.Staking].Add(amount)
	}
	for staking, amount := range totals {
		if whole := wholeTokens(amount); whole > opts.MinStake {
			snap.Stakes[staking] = whole
		}
	}

	for _, asset := range licenses {
		name, err := DecodeLicenseName(asset.Asset, opts.LicensePolicy)
		if err != nil {
			logger.Warn().Err(err).Msg("skipping license asset")
			continue
		}
		snap.Licenses[name] = asset.Staking
	}

	return snap, nil
}

func unavailable(call string, err error) error {
	if errors.Is(err, ErrSourceUnavailable) {
		return fmt.Errorf("fetch %s: %w", call, err)
	}
	return fmt.Errorf("fetch %s: %w: %w", call, ErrSourceUnavailable, err)
}
