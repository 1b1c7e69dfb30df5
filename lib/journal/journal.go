// Package journal builds the canonical index of titles discovered across
// a run's search tiles.
package journal

import (
	"slices"
	"time"
)

const (
	TypeCurrentTitle = "Current Title"
	RightsMineral    = "Mineral"
)

// Entry is one row of a spatial-search result. ID is the registry's own
// record id and is the identity used for deduplication.
type Entry struct {
	ID               string    `json:"id" parquet:"id"`
	RegistrationDate time.Time `json:"registration_date" parquet:"registration_date"`
	ChangeCancelDate time.Time `json:"change_cancel_date" parquet:"change_cancel_date"`
	Type             string    `json:"type" parquet:"type"`
	Rights           string    `json:"rights" parquet:"rights"`
}

// Table is one tile's result set, in the order the registry returned it.
type Table []Entry

// Build merges per-tile tables (in tile generation order) into the
// canonical journal: keep current titles, drop mineral rights, dedupe by
// id keeping the first occurrence, sort by registration date descending.
// The merge is pure and order-stable, so building twice from the same
// tables yields the same journal.
func Build(tables []Table) []Entry {
	var merged []Entry
	seen := map[string]bool{}

	for _, table := range tables {
		for _, entry := range table {
			if entry.Type != TypeCurrentTitle {
				continue
			}
			if entry.Rights == RightsMineral {
				continue
			}
			if seen[entry.ID] {
				continue
			}
			seen[entry.ID] = true
			merged = append(merged, entry)
		}
	}

	slices.SortStableFunc(merged, func(a, b Entry) int {
		au, bu := a.RegistrationDate.Unix(), b.RegistrationDate.Unix()
		if au > bu {
			return -1
		}
		if au < bu {
			return 1
		}
		return 0
	})
	return merged
}

// Since filters entries registered on or after the period threshold.
func Since(entries []Entry, period time.Time) []Entry {
	var out []Entry
	for _, entry := range entries {
		if !entry.RegistrationDate.Before(period) {
			out = append(out, entry)
		}
	}
	return out
}
