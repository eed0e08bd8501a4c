package roster

import (
	"sort"
	"sync"

	"github.com/adammck/placer/pkg/api"
)

// Queue is the set of operations which have been decided for a single node,
// but not yet carried out by the transfer layer. A segment is never queued to
// load and to drop at the same time; queueing one cancels the other.
//
// The placer only ever adds to a queue. Entries are removed by the transfer
// layer (via Done) when the operation completes or is abandoned.
type Queue struct {
	mu   sync.RWMutex
	load map[api.SegmentID]api.Segment
	drop map[api.SegmentID]api.Segment

	// Sum of the sizes of segments in load and drop.
	loadSize int64
	dropSize int64
}

func NewQueue() *Queue {
	return &Queue{
		load: map[api.SegmentID]api.Segment{},
		drop: map[api.SegmentID]api.Segment{},
	}
}

// QueueLoad adds the segment to the load set, and removes it from the drop set
// if it was there. Returns false if the segment was already queued to load, in
// which case nothing changes.
func (q *Queue) QueueLoad(seg api.Segment) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	sID := seg.ID()
	if _, ok := q.load[sID]; ok {
		return false
	}

	if d, ok := q.drop[sID]; ok {
		delete(q.drop, sID)
		q.dropSize -= d.Size
	}

	q.load[sID] = seg
	q.loadSize += seg.Size
	return true
}

// QueueDrop is the opposite of QueueLoad.
func (q *Queue) QueueDrop(seg api.Segment) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	sID := seg.ID()
	if _, ok := q.drop[sID]; ok {
		return false
	}

	if l, ok := q.load[sID]; ok {
		delete(q.load, sID)
		q.loadSize -= l.Size
	}

	q.drop[sID] = seg
	q.dropSize += seg.Size
	return true
}

// Done removes the given operation from the queue. It's called by the transfer
// layer once the operation has completed (or failed for good). Returns false if
// no such operation was queued.
func (q *Queue) Done(sID api.SegmentID, action api.Action) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch action {
	case api.Load:
		seg, ok := q.load[sID]
		if !ok {
			return false
		}
		delete(q.load, sID)
		q.loadSize -= seg.Size

	case api.Drop:
		seg, ok := q.drop[sID]
		if !ok {
			return false
		}
		delete(q.drop, sID)
		q.dropSize -= seg.Size

	default:
		return false
	}

	return true
}

func (q *Queue) IsQueuedToLoad(sID api.SegmentID) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.load[sID]
	return ok
}

func (q *Queue) IsQueuedToDrop(sID api.SegmentID) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.drop[sID]
	return ok
}

// LoadSet returns the IDs of the segments queued to load, in order.
func (q *Queue) LoadSet() []api.SegmentID {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return sortedIDs(q.load)
}

// DropSet returns the IDs of the segments queued to drop, in order.
func (q *Queue) DropSet() []api.SegmentID {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return sortedIDs(q.drop)
}

// Commands returns every queued operation as a Command for the given node,
// ordered by segment ID, loads first.
func (q *Queue) Commands(nID api.NodeID) []api.Command {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]api.Command, 0, len(q.load)+len(q.drop))
	for _, sID := range sortedIDs(q.load) {
		out = append(out, api.Command{Segment: sID, Node: nID, Action: api.Load})
	}
	for _, sID := range sortedIDs(q.drop) {
		out = append(out, api.Command{Segment: sID, Node: nID, Action: api.Drop})
	}

	return out
}

// Segment returns the queued segment with the given ID, if it's queued for
// either operation.
func (q *Queue) Segment(sID api.SegmentID) (api.Segment, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if seg, ok := q.load[sID]; ok {
		return seg, true
	}

	seg, ok := q.drop[sID]
	return seg, ok
}

// SizeToLoad is the sum of the sizes of the segments queued to load.
func (q *Queue) SizeToLoad() int64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.loadSize
}

// SizeToDrop is the sum of the sizes of the segments queued to drop.
func (q *Queue) SizeToDrop() int64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.dropSize
}

// Len returns the total number of queued operations.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.load) + len(q.drop)
}

func sortedIDs(m map[api.SegmentID]api.Segment) []api.SegmentID {
	out := make([]api.SegmentID, 0, len(m))
	for sID := range m {
		out = append(out, sID)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i] < out[j]
	})

	return out
}
