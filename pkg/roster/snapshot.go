package roster

import (
	"fmt"
	"sort"

	"github.com/adammck/placer/pkg/api"
)

// Snapshot is an immutable view of one storage node at a point in time: who it
// is, which tier it's in, how big it is, and which segments it's serving. When
// the node changes, a new Snapshot is built to replace this one.
type Snapshot struct {
	id      api.NodeID
	host    string
	tier    string
	maxSize int64

	segments map[api.SegmentID]api.Segment
	currSize int64
}

// NewSnapshot returns a snapshot of a node serving the given segments. An empty
// tier means the default tier.
func NewSnapshot(id api.NodeID, host, tier string, maxSize int64, segments []api.Segment) *Snapshot {
	if tier == "" {
		tier = api.DefaultTier
	}

	s := &Snapshot{
		id:       id,
		host:     host,
		tier:     tier,
		maxSize:  maxSize,
		segments: make(map[api.SegmentID]api.Segment, len(segments)),
	}

	for _, seg := range segments {
		sID := seg.ID()
		if _, ok := s.segments[sID]; ok {
			continue
		}

		s.segments[sID] = seg
		s.currSize += seg.Size
	}

	return s
}

func (s *Snapshot) Ident() api.NodeID {
	return s.id
}

func (s *Snapshot) Host() string {
	return s.host
}

func (s *Snapshot) Tier() string {
	return s.tier
}

// MaxSize is the total capacity of the node, in bytes.
func (s *Snapshot) MaxSize() int64 {
	return s.maxSize
}

// CurrSize is the sum of the sizes of the segments which the node is serving.
func (s *Snapshot) CurrSize() int64 {
	return s.currSize
}

// Serves returns true if the node is serving the given segment.
func (s *Snapshot) Serves(sID api.SegmentID) bool {
	_, ok := s.segments[sID]
	return ok
}

// Segments returns the served segments, ordered by ID.
func (s *Snapshot) Segments() []api.Segment {
	out := make([]api.Segment, 0, len(s.segments))
	for _, seg := range s.segments {
		out = append(out, seg)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID() < out[j].ID()
	})

	return out
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("S{%s tier=%s size=%d/%d segs=%d}", s.id, s.tier, s.currSize, s.maxSize, len(s.segments))
}
