// Package selector persists per-selector attempt statistics and ranks
// candidate selectors by their observed success rate.
package selector

import (
	"log"
	"sort"
)

// Stat counts attempts and successes for one selector under one logical
// field. Successes never exceed attempts.
type Stat struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
}

// Stats maps logical field -> selector -> counts.
type Stats map[string]map[string]Stat

// Clone returns a deep copy so callers can hold a snapshot while other runs
// keep recording.
func (s Stats) Clone() Stats {
	out := make(Stats, len(s))
	for field, sels := range s {
		m := make(map[string]Stat, len(sels))
		for sel, st := range sels {
			m[sel] = st
		}
		out[field] = m
	}
	return out
}

// Store is the persisted statistics backend. Record must be an atomic
// read-modify-write so concurrent runs cannot corrupt counts.
type Store interface {
	Record(field, selector string, success bool) error
	Snapshot() (Stats, error)
	Close() error
}

// failingAttempts is the attempt count after which a selector with zero
// successes ranks below never-tried candidates.
const failingAttempts = 3

// Scorer ranks selector candidates against a Store. Store errors are logged
// and treated as empty state; ranking never fails.
type Scorer struct {
	store Store
}

func NewScorer(store Store) *Scorer {
	return &Scorer{store: store}
}

// Record registers one attempt outcome. Errors are logged, not surfaced:
// losing a stat update must never fail a run.
func (s *Scorer) Record(field, selector string, success bool) {
	if err := s.store.Record(field, selector, success); err != nil {
		log.Printf("⚠️ selector stats record failed (%s / %s): %v", field, selector, err)
	}
}

// rank classes, best first.
const (
	classProven  = 0 // at least one recorded success
	classUnknown = 1 // never tried, or too few failures to condemn
	classFailing = 2 // 0% success over >= failingAttempts attempts
)

func classify(st Stat, seen bool) int {
	switch {
	case seen && st.Successes >= 1:
		return classProven
	case seen && st.Attempts >= failingAttempts && st.Successes == 0:
		return classFailing
	default:
		return classUnknown
	}
}

// Rank returns candidates ordered best-first: proven selectors by descending
// success rate, then unknown ones, then proven failures. Ties keep the
// original config order (stable sort), so repeated calls without intervening
// Record calls yield identical orderings.
func (s *Scorer) Rank(field string, candidates []string) []string {
	stats, err := s.store.Snapshot()
	if err != nil {
		log.Printf("⚠️ selector stats snapshot failed: %v", err)
		stats = Stats{}
	}
	fieldStats := stats[field]

	type entry struct {
		selector string
		class    int
		rate     float64
		index    int
	}
	entries := make([]entry, len(candidates))
	for i, sel := range candidates {
		st, seen := fieldStats[sel]
		e := entry{selector: sel, class: classify(st, seen), index: i}
		if st.Attempts > 0 {
			e.rate = float64(st.Successes) / float64(st.Attempts)
		}
		entries[i] = e
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].class != entries[j].class {
			return entries[i].class < entries[j].class
		}
		if entries[i].class == classProven && entries[i].rate != entries[j].rate {
			return entries[i].rate > entries[j].rate
		}
		return false // stable: keep config order
	})

	ranked := make([]string, len(entries))
	for i, e := range entries {
		ranked[i] = e.selector
	}
	return ranked
}
