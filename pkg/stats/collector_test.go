package stats

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := NewCollector()

	s := New()
	s.AddGlobal(Assigned, 3)
	s.AddTier("hot", Assigned, 2)
	c.Publish(s)

	assert.Same(t, s, c.Last())

	expected := `
# HELP placer_cycle_stat Counters from the most recent placement cycle, across all tiers.
# TYPE placer_cycle_stat gauge
placer_cycle_stat{counter="assignedCount"} 3
# HELP placer_cycle_tier_stat Counters from the most recent placement cycle, per tier.
# TYPE placer_cycle_tier_stat gauge
placer_cycle_tier_stat{counter="assignedCount",tier="hot"} 2
# HELP placer_cycles_total Number of placement cycles published.
# TYPE placer_cycles_total counter
placer_cycles_total 1
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected))
	assert.NoError(t, err)
}
