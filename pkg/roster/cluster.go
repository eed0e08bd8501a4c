package roster

import (
	"sort"

	"github.com/adammck/placer/pkg/api"
)

// Cluster is a view of every node, grouped by tier, as of the start of a
// coordination cycle. The topology of a Cluster never changes once it's built;
// only the queues inside its nodes do. To see a new topology, build a new one.
type Cluster struct {
	tiers map[string][]*Node
	names []string
	all   []*Node
	byID  map[api.NodeID]*Node
}

// NewCluster builds a cluster view from the given nodes, keyed by tier name.
// Each tier's nodes are ordered least-utilized first, with ties broken by node
// ID. Returns ConfigurationError if any node (or node ID) appears more than
// once.
func NewCluster(tiers map[string][]*Node) (*Cluster, error) {
	c := &Cluster{
		tiers: make(map[string][]*Node, len(tiers)),
		names: make([]string, 0, len(tiers)),
		all:   []*Node{},
		byID:  map[api.NodeID]*Node{},
	}

	seenIn := map[*Node]string{}

	for tier, nodes := range tiers {
		c.names = append(c.names, tier)

		for _, n := range nodes {
			if prev, ok := seenIn[n]; ok {
				return nil, api.ConfigErrorf("node %s listed in tier %q and tier %q", n.Ident(), prev, tier)
			}
			seenIn[n] = tier

			nID := n.Ident()
			if _, ok := c.byID[nID]; ok {
				return nil, api.ConfigErrorf("duplicate node ID %s in tier %q", nID, tier)
			}
			c.byID[nID] = n
		}
	}

	sort.Strings(c.names)

	for _, tier := range c.names {
		sorted := sortByUtilization(tiers[tier])
		c.tiers[tier] = sorted
		c.all = append(c.all, sorted...)
	}

	sort.Slice(c.all, func(i, j int) bool {
		return c.all[i].Ident() < c.all[j].Ident()
	})

	return c, nil
}

// Tiers returns the names of every tier in the cluster, in order.
func (c *Cluster) Tiers() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// HasTier returns true if the cluster has a tier with the given name. The tier
// may still have no nodes in it.
func (c *Cluster) HasTier(tier string) bool {
	_, ok := c.tiers[tier]
	return ok
}

// NodesInTier returns the nodes in the given tier, least utilized first, as of
// when the cluster was built. Returns nil if there is no such tier.
func (c *Cluster) NodesInTier(tier string) []*Node {
	nodes, ok := c.tiers[tier]
	if !ok {
		return nil
	}

	out := make([]*Node, len(nodes))
	copy(out, nodes)
	return out
}

// AllNodes returns every node in the cluster, ordered by ID.
func (c *Cluster) AllNodes() []*Node {
	out := make([]*Node, len(c.all))
	copy(out, c.all)
	return out
}

// NodeByIdent implements NodeGetter.
func (c *Cluster) NodeByIdent(nID api.NodeID) (*Node, error) {
	n, ok := c.byID[nID]
	if !ok {
		return nil, ErrNodeNotFound{NodeID: nID}
	}

	return n, nil
}

// Len returns the total number of nodes in the cluster.
func (c *Cluster) Len() int {
	return len(c.all)
}

func sortByUtilization(nodes []*Node) []*Node {
	type entry struct {
		n    *Node
		util float64
		id   api.NodeID
	}

	// Read utilization once per node, since the queues may be changing.
	entries := make([]entry, len(nodes))
	for i, n := range nodes {
		entries[i] = entry{n: n, util: n.Utilization(), id: n.Ident()}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].util != entries[j].util {
			return entries[i].util < entries[j].util
		}
		return entries[i].id < entries[j].id
	})

	out := make([]*Node, len(entries))
	for i := range entries {
		out[i] = entries[i].n
	}

	return out
}
