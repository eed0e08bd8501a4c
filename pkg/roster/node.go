package roster

import (
	"fmt"
	"sync"

	"github.com/adammck/placer/pkg/api"
	"github.com/lpabon/godbc"
)

// Node pairs the latest Snapshot of a storage node with the Queue of operations
// pending for it. The snapshot is replaced whenever the node changes, but the
// queue stays the same for the lifetime of the Node.
type Node struct {
	snap   *Snapshot
	muSnap sync.RWMutex

	queue *Queue

	// Held across the capacity check and enqueue in TryLoad.
	muLoad sync.Mutex
}

func NewNode(s *Snapshot) *Node {
	godbc.Require(s != nil)

	return &Node{
		snap:  s,
		queue: NewQueue(),
	}
}

// Snapshot returns the current snapshot of the node.
func (n *Node) Snapshot() *Snapshot {
	n.muSnap.RLock()
	defer n.muSnap.RUnlock()
	return n.snap
}

// Swap replaces the node's snapshot with a newer one. The new snapshot must be
// of the same node.
func (n *Node) Swap(s *Snapshot) {
	godbc.Require(s != nil)

	n.muSnap.Lock()
	defer n.muSnap.Unlock()

	godbc.Require(s.Ident() == n.snap.Ident(), s.Ident(), n.snap.Ident())
	n.snap = s
}

func (n *Node) Queue() *Queue {
	return n.queue
}

func (n *Node) Ident() api.NodeID {
	return n.Snapshot().Ident()
}

func (n *Node) Tier() string {
	return n.Snapshot().Tier()
}

func (n *Node) String() string {
	return fmt.Sprintf("N{%s}", n.Ident())
}

// Serves returns true if the node is currently serving the given segment.
func (n *Node) Serves(sID api.SegmentID) bool {
	return n.Snapshot().Serves(sID)
}

// IsLoading returns true if the given segment is queued to load on this node.
func (n *Node) IsLoading(sID api.SegmentID) bool {
	return n.queue.IsQueuedToLoad(sID)
}

// IsDropping returns true if the given segment is queued to drop on this node.
func (n *Node) IsDropping(sID api.SegmentID) bool {
	return n.queue.IsQueuedToDrop(sID)
}

// HasSegment returns true if the node is either serving the segment or has
// it queued to load. Either way, it counts as a replica.
func (n *Node) HasSegment(sID api.SegmentID) bool {
	return n.Serves(sID) || n.IsLoading(sID)
}

// SizeUsed is the number of bytes which the node has committed to: those of
// the segments it's serving, plus those it's been asked to load. Queued drops
// don't give anything back until the transfer layer completes them.
func (n *Node) SizeUsed() int64 {
	return n.Snapshot().CurrSize() + n.queue.SizeToLoad()
}

// AvailableSize is the number of bytes left for new segments. It's negative if
// the node is overcommitted.
func (n *Node) AvailableSize() int64 {
	return n.Snapshot().MaxSize() - n.SizeUsed()
}

// Utilization returns the fraction of the node's capacity which is used,
// usually in [0, 1]. Nodes with no capacity are considered full.
func (n *Node) Utilization() float64 {
	max := n.Snapshot().MaxSize()
	if max <= 0 {
		return 1
	}

	return float64(n.SizeUsed()) / float64(max)
}

// CanLoad returns true if the given segment could be queued to load on this
// node: it doesn't already have the segment, and has room for it.
func (n *Node) CanLoad(seg api.Segment) bool {
	sID := seg.ID()
	if n.HasSegment(sID) {
		return false
	}

	return n.AvailableSize() >= seg.Size
}

// TryLoad queues the segment to load if CanLoad allows it. The check and the
// enqueue are atomic with respect to other TryLoad calls on the same node, so
// concurrent rule invocations can't overcommit it.
func (n *Node) TryLoad(seg api.Segment) bool {
	n.muLoad.Lock()
	defer n.muLoad.Unlock()

	if !n.CanLoad(seg) {
		return false
	}

	return n.queue.QueueLoad(seg)
}
