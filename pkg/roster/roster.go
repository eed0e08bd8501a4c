package roster

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adammck/placer/pkg/api"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Roster keeps track of every node which the membership Source has told us
// about, so that each node keeps the same Queue across cycles even though its
// Snapshot is replaced every time.
type Roster struct {
	src   Source
	clock clockwork.Clock
	log   *zap.Logger

	// How long a node can be missing from the source before it (and its
	// queue) is forgotten. Missing nodes are never included in a Cluster.
	expireAfter time.Duration

	nodes map[api.NodeID]*rosterEntry
	mu    sync.Mutex
}

type rosterEntry struct {
	node *Node

	// When this node was last returned by the source.
	whenLastSeen time.Time

	// Whether the node was returned by the most recent refresh.
	present bool
}

func New(src Source, clock clockwork.Clock, expireAfter time.Duration, logger *zap.Logger) *Roster {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Roster{
		src:         src,
		clock:       clock,
		log:         logger,
		expireAfter: expireAfter,
		nodes:       map[api.NodeID]*rosterEntry{},
	}
}

// Refresh fetches the latest snapshots from the source, swaps them into the
// known nodes, adds any new nodes, and expires any which have been missing for
// too long.
func (r *Roster) Refresh(ctx context.Context) error {
	snaps, err := r.src.Snapshots(ctx)
	if err != nil {
		return fmt.Errorf("fetching snapshots: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()

	for _, e := range r.nodes {
		e.present = false
	}

	for _, s := range snaps {
		e, ok := r.nodes[s.Ident()]

		// New Node?
		if !ok {
			e = &rosterEntry{node: NewNode(s)}
			r.nodes[s.Ident()] = e
			r.log.Info("new node",
				zap.String("node", s.Ident().String()),
				zap.String("tier", s.Tier()),
				zap.Int64("max_size", s.MaxSize()))
		} else {
			e.node.Swap(s)
		}

		e.whenLastSeen = now
		e.present = true
	}

	r.expire(now)

	return nil
}

// Caller must hold r.mu.
func (r *Roster) expire(now time.Time) {
	staleTime := now.Add(-r.expireAfter)

	for nID, e := range r.nodes {
		if e.present {
			continue
		}

		if e.whenLastSeen.Before(staleTime) {
			r.log.Info("expiring node",
				zap.String("node", nID.String()),
				zap.Int("queued", e.node.Queue().Len()))
			delete(r.nodes, nID)
		}
	}
}

// Cluster returns a view of the nodes which were present at the last refresh,
// grouped by the tier which each announced.
func (r *Roster) Cluster() (*Cluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tiers := map[string][]*Node{}
	for _, e := range r.nodes {
		if !e.present {
			continue
		}

		tier := e.node.Tier()
		tiers[tier] = append(tiers[tier], e.node)
	}

	return NewCluster(tiers)
}

// Tick refreshes the roster and returns the resulting cluster view.
func (r *Roster) Tick(ctx context.Context) (*Cluster, error) {
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}

	return r.Cluster()
}

// NodeByIdent implements NodeGetter. Nodes which are missing from the source
// but not yet expired are still returned, so the transfer layer can finish
// with their queues.
func (r *Roster) NodeByIdent(nID api.NodeID) (*Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.nodes[nID]
	if !ok {
		return nil, ErrNodeNotFound{NodeID: nID}
	}

	return e.node, nil
}

// Nodes returns every known node, including missing ones, ordered by ID.
func (r *Roster) Nodes() []*Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Node, 0, len(r.nodes))
	for _, e := range r.nodes {
		out = append(out, e.node)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Ident() < out[j].Ident()
	})

	return out
}
