package rules

import (
	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/roster"
	"github.com/adammck/placer/pkg/stats"
	"go.uber.org/zap"
)

func (r Rule) runLoad(p Params, seg api.Segment, log *zap.Logger) *stats.Stats {
	s := stats.New()
	sID := seg.ID()

	// Whether every listed tier is serving (not just loading) its target. Only
	// then is it safe to drain the tiers which aren't listed.
	satisfied := true

	for _, tier := range tierOrder(r.TieredReplicants, p.TierPriority) {
		target := r.TieredReplicants[tier]

		if !p.Cluster.HasTier(tier) {
			if target > 0 {
				log.Warn("no nodes in tier",
					zap.String("tier", tier),
					zap.Int("target", target))
				unassigned(s, tier, seg, target)
				satisfied = false
			}
			continue
		}

		deficit := target - p.Replicas.Count(sID, tier)
		if deficit > 0 {
			assign(p, s, tier, seg, deficit, log)
		} else if deficit < 0 {
			drop(p, s, tier, seg, target, log)
		}

		if p.Replicas.Serving(sID, tier) < target {
			satisfied = false
		}
	}

	if !satisfied {
		return s
	}

	for _, tier := range p.Cluster.Tiers() {
		if _, ok := r.TieredReplicants[tier]; ok {
			continue
		}
		if p.Replicas.Serving(sID, tier) > 0 {
			drop(p, s, tier, seg, 0, log)
		}
	}

	return s
}

// assign queues the segment to load on up to n nodes in the tier, least
// utilized first, skipping any which already have it or don't have room.
func assign(p Params, s *stats.Stats, tier string, seg api.Segment, n int, log *zap.Logger) {
	assigned := 0

	for _, node := range p.Cluster.NodesInTier(tier) {
		if assigned == n {
			break
		}

		if node.TryLoad(seg) {
			log.Debug("queued load", zap.Stringer("node", node.Ident()), zap.String("tier", tier))
			assigned += 1
		}
	}

	if assigned > 0 {
		count(s, tier, stats.Assigned, stats.AssignedSize, assigned, seg.Size)
	}

	if short := n - assigned; short > 0 {
		log.Warn("not enough capacity in tier",
			zap.String("tier", tier),
			zap.Int("wanted", n),
			zap.Int("assigned", assigned))
		unassigned(s, tier, seg, short)
	}
}

// drop queues the segment to drop from nodes in the tier which are serving it,
// most utilized first, until the tier has target replicas. It never takes the
// number of nodes serving the segment below the target, so replicas which are
// still loading don't count towards it.
func drop(p Params, s *stats.Stats, tier string, seg api.Segment, target int, log *zap.Logger) {
	sID := seg.ID()

	live := []*roster.Node{}
	dropping := 0

	for _, node := range p.Cluster.NodesInTier(tier) {
		if !node.Serves(sID) {
			continue
		}
		if node.IsDropping(sID) {
			dropping += 1
			continue
		}
		live = append(live, node)
	}

	excess := p.Replicas.Count(sID, tier) - dropping - target
	if max := len(live) - target; excess > max {
		excess = max
	}
	if excess <= 0 {
		return
	}

	dropped := 0
	for i := len(live) - 1; i >= 0 && dropped < excess; i-- {
		if live[i].Queue().QueueDrop(seg) {
			log.Debug("queued drop", zap.Stringer("node", live[i].Ident()), zap.String("tier", tier))
			dropped += 1
		}
	}

	if dropped > 0 {
		s.AddTier(tier, stats.Dropped, int64(dropped))
		s.AddGlobal(stats.Dropped, int64(dropped))
	}
}

func unassigned(s *stats.Stats, tier string, seg api.Segment, n int) {
	count(s, tier, stats.Unassigned, stats.UnassignedSize, n, seg.Size)
}

// count adds n to the named counter and n*size to the named size counter, in
// the tier and globally. Zero sizes aren't recorded.
func count(s *stats.Stats, tier, name, sizeName string, n int, size int64) {
	s.AddTier(tier, name, int64(n))
	s.AddGlobal(name, int64(n))

	if sz := int64(n) * size; sz > 0 {
		s.AddTier(tier, sizeName, sz)
		s.AddGlobal(sizeName, sz)
	}
}
