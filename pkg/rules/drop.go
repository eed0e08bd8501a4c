package rules

import (
	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/stats"
	"go.uber.org/zap"
)

// runDrop queues the segment to drop from every node serving it.
func (r Rule) runDrop(p Params, seg api.Segment, log *zap.Logger) *stats.Stats {
	s := stats.New()
	sID := seg.ID()
	dropped := 0

	for _, n := range p.Cluster.AllNodes() {
		if !n.Serves(sID) {
			continue
		}

		if n.Queue().QueueDrop(seg) {
			log.Debug("queued drop", zap.Stringer("node", n.Ident()))
			dropped += 1
		}
	}

	if dropped > 0 {
		s.AddGlobal(stats.Dropped, int64(dropped))
	}

	return s
}
