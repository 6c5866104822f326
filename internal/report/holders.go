package report

import (
	"sort"
	"strings"
)

// DefaultLicensePrefix names validator licenses, e.g. "Validator License #001".
const DefaultLicensePrefix = "Validator License"

// HolderQuery narrows an entitlement list.
type HolderQuery struct {
	// MinStake drops holders whose stake is not strictly greater. Zero disables the check.
	MinStake int64
	// LicenseNo selects a single license, e.g. "#001".
	LicenseNo string
	// LicensePrefix defaults to DefaultLicensePrefix.
	LicensePrefix string
}

// ComputeEntitlementList intersects stake holders with license holders and
// returns one record per eligible address, sorted by license name.
func ComputeEntitlementList(snap EntitlementSnapshot, q HolderQuery) []LicenseHolder {
	holders := CollateHolders(snap, q.MinStake)
	if q.LicenseNo == "" {
		return holders
	}

	prefix := q.LicensePrefix
	if prefix == "" {
		prefix = DefaultLicensePrefix
	}
	want := prefix + " " + strings.TrimSpace(q.LicenseNo)

	filtered := make([]LicenseHolder, 0, 1)
	for _, h := range holders {
		for _, name := range h.Licenses {
			if name == want {
				filtered = append(filtered, h)
				break
			}
		}
	}
	return filtered
}

// CollateHolders builds the sorted entitlement list from a snapshot.
func CollateHolders(snap EntitlementSnapshot, minStake int64) []LicenseHolder {
	byAddress := make(map[string][]string)
	for name, addr := range snap.Licenses {
		stake, ok := snap.Stakes[addr]
		if !ok {
			continue
		}
		if minStake > 0 && stake <= minStake {
			continue
		}
		byAddress[addr] = append(byAddress[addr], name)
	}

	eligible := make([]string, 0, len(byAddress))
	for addr := range byAddress {
		eligible = append(eligible, addr)
	}
	sort.Strings(eligible)

	aliases := indexAliases(snap.Aliases)

	holders := make([]LicenseHolder, 0, len(eligible))
	for _, addr := range eligible {
		licenses := byAddress[addr]
		sort.Strings(licenses)
		holders = append(holders, LicenseHolder{
			Staking:  addr,
			Staked:   snap.Stakes[addr],
			Licenses: licenses,
			Alias:    aliases[addr],
		})
	}

	sort.SliceStable(holders, func(i, j int) bool {
		return holders[i].Licenses[0] < holders[j].Licenses[0]
	})
	return holders
}

// indexAliases keeps the first alias registered for each staking address.
func indexAliases(aliases []Alias) map[string]string {
	idx := make(map[string]string, len(aliases))
	for _, a := range aliases {
		if _, ok := idx[a.Staking]; ok {
			continue
		}
		idx[a.Staking] = a.Alias
	}
	return idx
}

// LicenseSummary joins a holder's license names the way reports display them.
func (h LicenseHolder) LicenseSummary() string {
	return strings.Join(h.Licenses, ", ")
}
