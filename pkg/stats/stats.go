// Package stats accumulates the counters emitted by rule evaluation, globally
// and per tier.
package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lpabon/godbc"
)

// Counter names.
const (
	Assigned       = "assignedCount"
	AssignedSize   = "assignedSize"
	Dropped        = "droppedCount"
	Unassigned     = "unassignedCount"
	UnassignedSize = "unassignedSize"

	// Global only.
	NoMatchingRule = "noMatchingRuleCount"
	RuleError      = "ruleErrorCount"
)

// Stats is a set of named counters: one set for the whole cluster, and one per
// tier. Counters never decrease. Merging is pointwise addition, so the order
// in which Stats are merged doesn't matter.
//
// Stats is not safe for concurrent use.
type Stats struct {
	global map[string]int64
	tiers  map[string]map[string]int64
}

func New() *Stats {
	return &Stats{
		global: map[string]int64{},
		tiers:  map[string]map[string]int64{},
	}
}

// AddGlobal adds n to the global counter with the given name.
func (s *Stats) AddGlobal(name string, n int64) {
	godbc.Require(n >= 0, name, n)
	s.global[name] += n
}

// AddTier adds n to the counter with the given name, in the given tier.
func (s *Stats) AddTier(tier, name string, n int64) {
	godbc.Require(n >= 0, tier, name, n)

	t, ok := s.tiers[tier]
	if !ok {
		t = map[string]int64{}
		s.tiers[tier] = t
	}

	t[name] += n
}

// Global returns the value of the named global counter, or zero.
func (s *Stats) Global(name string) int64 {
	return s.global[name]
}

// Tier returns the value of the named counter in the given tier, or zero.
func (s *Stats) Tier(tier, name string) int64 {
	return s.tiers[tier][name]
}

// GlobalStats returns a copy of the global counters.
func (s *Stats) GlobalStats() map[string]int64 {
	out := make(map[string]int64, len(s.global))
	for k, v := range s.global {
		out[k] = v
	}
	return out
}

// PerTier returns a copy of the per-tier counters, keyed by tier name.
func (s *Stats) PerTier() map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(s.tiers))
	for tier, t := range s.tiers {
		c := make(map[string]int64, len(t))
		for k, v := range t {
			c[k] = v
		}
		out[tier] = c
	}
	return out
}

// Merge adds every counter in other to s, and returns s.
func (s *Stats) Merge(other *Stats) *Stats {
	if other == nil {
		return s
	}

	for k, v := range other.global {
		s.AddGlobal(k, v)
	}

	for tier, t := range other.tiers {
		for k, v := range t {
			s.AddTier(tier, k, v)
		}
	}

	return s
}

// IsEmpty returns true if no counter has ever been added to.
func (s *Stats) IsEmpty() bool {
	return len(s.global) == 0 && len(s.tiers) == 0
}

func (s *Stats) String() string {
	parts := []string{}

	for _, k := range sortedKeys(s.global) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, s.global[k]))
	}

	tiers := make([]string, 0, len(s.tiers))
	for tier := range s.tiers {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)

	for _, tier := range tiers {
		for _, k := range sortedKeys(s.tiers[tier]) {
			parts = append(parts, fmt.Sprintf("%s/%s=%d", tier, k, s.tiers[tier][k]))
		}
	}

	return fmt.Sprintf("{%s}", strings.Join(parts, " "))
}

func sortedKeys(m map[string]int64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
