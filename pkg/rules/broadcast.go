package rules

import (
	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/roster"
	"github.com/adammck/placer/pkg/stats"
	"go.uber.org/zap"
)

// runBroadcast queues the segment on every node in the cluster, regardless of
// tier or capacity, if its datasource is allowed. Only the global assigned
// counter is recorded.
func (r Rule) runBroadcast(p Params, seg api.Segment, log *zap.Logger) *stats.Stats {
	s := stats.New()

	if len(r.DataSources) > 0 && !contains(r.DataSources, seg.DataSource) {
		return s
	}

	loadAll(p.Cluster.AllNodes(), s, seg, log)
	return s
}

// runColocate queues the segment on every node which is serving or loading
// any segment of the listed datasources.
func (r Rule) runColocate(p Params, seg api.Segment, log *zap.Logger) *stats.Stats {
	s := stats.New()

	nodes := []*roster.Node{}
	for _, n := range p.Cluster.AllNodes() {
		if hasAnyOf(n, r.DataSources) {
			nodes = append(nodes, n)
		}
	}

	loadAll(nodes, s, seg, log)
	return s
}

func loadAll(nodes []*roster.Node, s *stats.Stats, seg api.Segment, log *zap.Logger) {
	sID := seg.ID()
	assigned := 0

	for _, n := range nodes {
		if n.HasSegment(sID) {
			continue
		}

		if n.Queue().QueueLoad(seg) {
			log.Debug("queued load", zap.Stringer("node", n.Ident()))
			assigned += 1
		}
	}

	if assigned > 0 {
		s.AddGlobal(stats.Assigned, int64(assigned))
	}
}

// hasAnyOf returns true if the node is serving or loading any segment of any
// of the given datasources.
func hasAnyOf(n *roster.Node, dataSources []string) bool {
	for _, seg := range n.Snapshot().Segments() {
		if contains(dataSources, seg.DataSource) {
			return true
		}
	}

	q := n.Queue()
	for _, sID := range q.LoadSet() {
		if seg, ok := q.Segment(sID); ok && contains(dataSources, seg.DataSource) {
			return true
		}
	}

	return false
}

func contains(l []string, s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}
