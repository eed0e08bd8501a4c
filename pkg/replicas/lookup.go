// Package replicas answers "how many copies of this segment are there in this
// tier?" for the duration of one evaluation pass.
package replicas

import (
	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/roster"
)

// Lookup counts the replicas of each segment in each tier: a node counts as a
// replica if it serves the segment or has it queued to load. It's built once
// from a Cluster at the start of a pass, and doesn't see anything queued after
// that. Rule invocations within a pass make their decisions independently.
type Lookup struct {
	byTier  map[api.SegmentID]map[string]int
	serving map[api.SegmentID]map[string]int
}

// Make builds a Lookup from the current state of the given cluster.
func Make(c *roster.Cluster) *Lookup {
	l := &Lookup{
		byTier:  map[api.SegmentID]map[string]int{},
		serving: map[api.SegmentID]map[string]int{},
	}

	for _, tier := range c.Tiers() {
		for _, n := range c.NodesInTier(tier) {
			q := n.Queue()
			snap := n.Snapshot()

			for _, seg := range snap.Segments() {
				sID := seg.ID()
				incr(l.byTier, sID, tier)
				incr(l.serving, sID, tier)
			}

			for _, sID := range q.LoadSet() {
				// Loading something already served doesn't make two replicas.
				if snap.Serves(sID) {
					continue
				}
				incr(l.byTier, sID, tier)
			}
		}
	}

	return l
}

func incr(m map[api.SegmentID]map[string]int, sID api.SegmentID, tier string) {
	t, ok := m[sID]
	if !ok {
		t = map[string]int{}
		m[sID] = t
	}
	t[tier] += 1
}

// Count returns the number of replicas (served or loading) of the segment in
// the given tier. Unknown segments and tiers have zero.
func (l *Lookup) Count(sID api.SegmentID, tier string) int {
	return l.byTier[sID][tier]
}

// Serving returns the number of nodes in the given tier which are serving the
// segment, not counting those which are still loading it.
func (l *Lookup) Serving(sID api.SegmentID, tier string) int {
	return l.serving[sID][tier]
}

// Total returns the number of replicas of the segment across every tier.
func (l *Lookup) Total(sID api.SegmentID) int {
	n := 0
	for _, c := range l.byTier[sID] {
		n += c
	}
	return n
}

// Tiers returns the replica count of the segment in each tier which has any.
func (l *Lookup) Tiers(sID api.SegmentID) map[string]int {
	out := map[string]int{}
	for tier, c := range l.byTier[sID] {
		out[tier] = c
	}
	return out
}
