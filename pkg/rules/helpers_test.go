package rules

import (
	"testing"
	"time"

	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/replicas"
	"github.com/adammck/placer/pkg/roster"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// day returns a segment of the given datasource covering the i'th day of 2012.
func day(ds string, i int, size int64) api.Segment {
	start := time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
	return api.Segment{
		DataSource: ds,
		Interval:   api.Interval{Start: start, End: start.AddDate(0, 0, 1)},
		Version:    "v1",
		Size:       size,
	}
}

func node(id, tier string, maxSize int64, segs ...api.Segment) *roster.Node {
	return roster.NewNode(roster.NewSnapshot(api.NodeID(id), id+":8083", tier, maxSize, segs))
}

func cluster(t *testing.T, nodes ...*roster.Node) *roster.Cluster {
	tiers := map[string][]*roster.Node{}
	for _, n := range nodes {
		tiers[n.Tier()] = append(tiers[n.Tier()], n)
	}

	c, err := roster.NewCluster(tiers)
	require.NoError(t, err)
	return c
}

// params builds fresh params for the cluster, as the start of a pass would.
func params(t *testing.T, c *roster.Cluster) Params {
	return Params{
		Cluster:  c,
		Replicas: replicas.Make(c),
		Logger:   zaptest.NewLogger(t),
	}
}

// loadingOn returns the IDs of the nodes which have the segment queued to
// load, in ID order.
func loadingOn(c *roster.Cluster, seg api.Segment) []api.NodeID {
	out := []api.NodeID{}
	for _, n := range c.AllNodes() {
		if n.IsLoading(seg.ID()) {
			out = append(out, n.Ident())
		}
	}
	return out
}

func droppingOn(c *roster.Cluster, seg api.Segment) []api.NodeID {
	out := []api.NodeID{}
	for _, n := range c.AllNodes() {
		if n.IsDropping(seg.ID()) {
			out = append(out, n.Ident())
		}
	}
	return out
}

func totalQueued(c *roster.Cluster) int {
	n := 0
	for _, node := range c.AllNodes() {
		n += node.Queue().Len()
	}
	return n
}

var (
	large0  = day("large_source", 0, 100)
	large1  = day("large_source", 1, 100)
	large2  = day("large_source", 2, 100)
	large20 = day("large_source2", 0, 100)
	large21 = day("large_source2", 1, 100)
	small   = day("small_source", 0, 0)
)

// sixNodes is two tiers of three nodes. The two small nodes in the default
// tier are full.
type sixNodes struct {
	hot1, hot2, hot3    *roster.Node
	norm1, norm2, norm3 *roster.Node
	c                   *roster.Cluster
}

func newSixNodes(t *testing.T) *sixNodes {
	s := &sixNodes{
		hot1:  node("serverHot1", "hot", 1000, large0),
		hot2:  node("serverHot2", "hot", 1000, small),
		hot3:  node("serverHot3", "hot", 1000, large20),
		norm1: node("serverNorm1", api.DefaultTier, 1000, large1),
		norm2: node("serverNorm2", api.DefaultTier, 100, large2),
		norm3: node("serverNorm3", api.DefaultTier, 100, large21),
	}

	s.c = cluster(t, s.hot1, s.hot2, s.hot3, s.norm1, s.norm2, s.norm3)
	return s
}
