package stats

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestStatsMerge(t *testing.T) {
	a := New()
	a.AddGlobal(Assigned, 2)
	a.AddTier("hot", Assigned, 2)

	b := New()
	b.AddGlobal(Assigned, 3)
	b.AddGlobal(Dropped, 1)
	b.AddTier("hot", Assigned, 1)
	b.AddTier("cold", Assigned, 2)

	a.Merge(b)

	if diff := cmp.Diff(map[string]int64{Assigned: 5, Dropped: 1}, a.GlobalStats()); diff != "" {
		t.Errorf("global stats (-want +got):\n%s", diff)
	}

	want := map[string]map[string]int64{
		"hot":  {Assigned: 3},
		"cold": {Assigned: 2},
	}
	if diff := cmp.Diff(want, a.PerTier()); diff != "" {
		t.Errorf("per-tier stats (-want +got):\n%s", diff)
	}

	// b is untouched.
	assert.Equal(t, int64(3), b.Global(Assigned))
	assert.Equal(t, "{assignedCount=5 droppedCount=1 cold/assignedCount=2 hot/assignedCount=3}", a.String())
}

func TestStatsMergeIsCommutative(t *testing.T) {
	mk := func(g, h int64) *Stats {
		s := New()
		s.AddGlobal(Assigned, g)
		s.AddTier("hot", Dropped, h)
		return s
	}

	x := New().Merge(mk(1, 2)).Merge(mk(3, 4))
	y := New().Merge(mk(3, 4)).Merge(mk(1, 2))
	assert.Equal(t, x.GlobalStats(), y.GlobalStats())
	assert.Equal(t, x.PerTier(), y.PerTier())
}

func TestStatsEmpty(t *testing.T) {
	s := New()
	assert.True(t, s.IsEmpty())
	assert.Equal(t, int64(0), s.Global(Assigned))
	assert.Equal(t, int64(0), s.Tier("hot", Assigned))
	assert.Empty(t, s.PerTier())
	assert.True(t, s.Merge(nil).IsEmpty())

	s.AddGlobal(Assigned, 0)
	assert.False(t, s.IsEmpty())
}

func TestStatsNegative(t *testing.T) {
	s := New()
	assert.Panics(t, func() { s.AddGlobal(Assigned, -1) })
	assert.Panics(t, func() { s.AddTier("hot", Assigned, -1) })
}

func TestStatsMergeNegative(t *testing.T) {
	bad := New()
	bad.global[Assigned] = -1
	assert.Panics(t, func() { New().Merge(bad) })

	bad = New()
	bad.tiers["hot"] = map[string]int64{Assigned: -1}
	assert.Panics(t, func() { New().Merge(bad) })
}
