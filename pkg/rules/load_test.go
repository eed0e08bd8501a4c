package rules

import (
	"errors"
	"testing"

	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/replicas"
	"github.com/adammck/placer/pkg/stats"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadRule(targets map[string]int) Rule {
	return Rule{Kind: KindLoad, TieredReplicants: targets}
}

func TestLoadAssignsLeastUtilizedFirst(t *testing.T) {
	six := newSixNodes(t)
	seg := day("large_source", 9, 100)

	r := loadRule(map[string]int{"hot": 2, api.DefaultTier: 1})
	s, err := r.Run(params(t, six.c), seg)
	require.NoError(t, err)

	// serverHot2 is empty, then serverHot1 beats serverHot3 on ID. Both of the
	// small default nodes are full.
	assert.Equal(t, []api.NodeID{"serverHot1", "serverHot2", "serverNorm1"}, loadingOn(six.c, seg))

	want := map[string]int64{
		stats.Assigned:     3,
		stats.AssignedSize: 300,
	}
	if diff := cmp.Diff(want, s.GlobalStats()); diff != "" {
		t.Errorf("global stats (-want +got):\n%s", diff)
	}

	wantTiers := map[string]map[string]int64{
		"hot":           {stats.Assigned: 2, stats.AssignedSize: 200},
		api.DefaultTier: {stats.Assigned: 1, stats.AssignedSize: 100},
	}
	if diff := cmp.Diff(wantTiers, s.PerTier()); diff != "" {
		t.Errorf("per-tier stats (-want +got):\n%s", diff)
	}

	// Exactly the target, counting the queued loads.
	l := replicas.Make(six.c)
	assert.Equal(t, 2, l.Count(seg.ID(), "hot"))
	assert.Equal(t, 1, l.Count(seg.ID(), api.DefaultTier))

	// Nothing more to do next time.
	s, err = r.Run(params(t, six.c), seg)
	require.NoError(t, err)
	assert.True(t, s.IsEmpty(), "stats: %s", s)
	assert.Equal(t, 3, totalQueued(six.c))
}

func TestLoadCountsExistingReplicas(t *testing.T) {
	six := newSixNodes(t)

	// large0 is already on serverHot1.
	s, err := loadRule(map[string]int{"hot": 2}).Run(params(t, six.c), large0)
	require.NoError(t, err)

	assert.Equal(t, []api.NodeID{"serverHot2"}, loadingOn(six.c, large0))
	assert.Equal(t, int64(1), s.Tier("hot", stats.Assigned))
	assert.Equal(t, int64(1), s.Global(stats.Assigned))
	assert.False(t, six.hot1.IsLoading(large0.ID()))
}

func TestLoadShortfall(t *testing.T) {
	six := newSixNodes(t)
	seg := day("large_source", 9, 100)

	s, err := loadRule(map[string]int{api.DefaultTier: 3}).Run(params(t, six.c), seg)
	require.NoError(t, err)

	assert.Equal(t, []api.NodeID{"serverNorm1"}, loadingOn(six.c, seg))

	want := map[string]map[string]int64{
		api.DefaultTier: {
			stats.Assigned:       1,
			stats.AssignedSize:   100,
			stats.Unassigned:     2,
			stats.UnassignedSize: 200,
		},
	}
	if diff := cmp.Diff(want, s.PerTier()); diff != "" {
		t.Errorf("per-tier stats (-want +got):\n%s", diff)
	}
}

func TestLoadMissingTier(t *testing.T) {
	six := newSixNodes(t)
	seg := day("large_source", 9, 100)

	s, err := loadRule(map[string]int{"cold": 2}).Run(params(t, six.c), seg)
	require.NoError(t, err)

	assert.Equal(t, 0, totalQueued(six.c))
	assert.Equal(t, int64(2), s.Tier("cold", stats.Unassigned))
	assert.Equal(t, int64(200), s.Global(stats.UnassignedSize))
	assert.Equal(t, int64(0), s.Global(stats.Assigned))
}

func TestLoadDropsOverReplicated(t *testing.T) {
	hot1 := node("hot1", "hot", 1000, large0)
	hot2 := node("hot2", "hot", 1000, large0, large1)
	hot3 := node("hot3", "hot", 1000, large0, large1, large2)
	c := cluster(t, hot1, hot2, hot3)

	r := loadRule(map[string]int{"hot": 1})
	s, err := r.Run(params(t, c), large0)
	require.NoError(t, err)

	// Most utilized first.
	assert.Equal(t, []api.NodeID{"hot2", "hot3"}, droppingOn(c, large0))
	assert.Equal(t, int64(2), s.Tier("hot", stats.Dropped))
	assert.Equal(t, int64(2), s.Global(stats.Dropped))

	// The pending drops are counted next time.
	s, err = r.Run(params(t, c), large0)
	require.NoError(t, err)
	assert.True(t, s.IsEmpty(), "stats: %s", s)
	assert.Equal(t, []api.NodeID{"hot2", "hot3"}, droppingOn(c, large0))
}

func TestLoadNeverDropsBelowServedTarget(t *testing.T) {
	hot1 := node("hot1", "hot", 1000, large0)
	hot2 := node("hot2", "hot", 1000)
	hot3 := node("hot3", "hot", 1000)
	c := cluster(t, hot1, hot2, hot3)

	hot2.Queue().QueueLoad(large0)
	hot3.Queue().QueueLoad(large0)

	// Three replicas, but only one of them is being served.
	s, err := loadRule(map[string]int{"hot": 2}).Run(params(t, c), large0)
	require.NoError(t, err)

	assert.True(t, s.IsEmpty(), "stats: %s", s)
	assert.Empty(t, droppingOn(c, large0))
}

func TestLoadDrainsUnlistedTiers(t *testing.T) {
	t.Run("satisfied", func(t *testing.T) {
		hot := node("hot1", "hot", 1000, large0)
		norm := node("norm1", api.DefaultTier, 1000, large0)
		c := cluster(t, hot, norm)

		s, err := loadRule(map[string]int{"hot": 1}).Run(params(t, c), large0)
		require.NoError(t, err)

		assert.Equal(t, []api.NodeID{"norm1"}, droppingOn(c, large0))
		assert.Equal(t, int64(1), s.Tier(api.DefaultTier, stats.Dropped))
		assert.Equal(t, int64(1), s.Global(stats.Dropped))
	})

	t.Run("not yet satisfied", func(t *testing.T) {
		hot1 := node("hot1", "hot", 1000, large0)
		hot2 := node("hot2", "hot", 1000)
		norm := node("norm1", api.DefaultTier, 1000, large0)
		c := cluster(t, hot1, hot2, norm)

		s, err := loadRule(map[string]int{"hot": 2}).Run(params(t, c), large0)
		require.NoError(t, err)

		// The new hot replica is only queued, so the default one stays.
		assert.Equal(t, []api.NodeID{"hot2"}, loadingOn(c, large0))
		assert.Empty(t, droppingOn(c, large0))
		assert.Equal(t, int64(0), s.Global(stats.Dropped))
	})
}

func TestLoadNegativeTarget(t *testing.T) {
	six := newSixNodes(t)

	s, err := loadRule(map[string]int{"hot": -1}).Run(params(t, six.c), small)
	assert.Nil(t, s)

	var cerr *api.ConfigurationError
	require.True(t, errors.As(err, &cerr), "got: %v", err)
	assert.Equal(t, 0, totalQueued(six.c))
}

func TestLoadNoTargets(t *testing.T) {
	for _, targets := range []map[string]int{nil, {}} {
		six := newSixNodes(t)

		// large0 is served by serverHot1, and must stay there.
		s, err := loadRule(targets).Run(params(t, six.c), large0)
		assert.Nil(t, s)

		var cerr *api.ConfigurationError
		require.True(t, errors.As(err, &cerr), "got: %v", err)
		assert.Empty(t, droppingOn(six.c, large0))
		assert.Equal(t, 0, totalQueued(six.c))
	}
}

func TestTierOrder(t *testing.T) {
	targets := map[string]int{"hot": 1, "cold": 1, api.DefaultTier: 1}

	assert.Equal(t, []string{api.DefaultTier, "cold", "hot"}, tierOrder(targets, nil))
	assert.Equal(t, []string{"hot", api.DefaultTier, "cold"}, tierOrder(targets, []string{"hot", api.DefaultTier}))
	assert.Equal(t, []string{"cold", api.DefaultTier, "hot"}, tierOrder(targets, []string{"cold", "missing", "cold"}))
}
