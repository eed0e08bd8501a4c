// Package static is a roster.Source whose membership is set by hand, or read
// from a YAML file:
//
//	nodes:
//	  - id: hot1
//	    host: hot1:8083
//	    tier: hot
//	    maxSize: 1000
//	    segments:
//	      - dataSource: wiki
//	        interval: 2012-01-01T00:00:00Z/2012-01-02T00:00:00Z
//	        version: v1
//	        size: 100
package static

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/roster"
	"gopkg.in/yaml.v3"
)

type Node struct {
	ID       api.NodeID    `yaml:"id"`
	Host     string        `yaml:"host"`
	Tier     string        `yaml:"tier,omitempty"`
	MaxSize  int64         `yaml:"maxSize"`
	Segments []api.Segment `yaml:"segments,omitempty"`
}

func (n Node) snapshot() *roster.Snapshot {
	return roster.NewSnapshot(n.ID, n.Host, n.Tier, n.MaxSize, n.Segments)
}

type Source struct {
	nodes map[api.NodeID]Node
	sync.RWMutex
}

func New(nodes ...Node) *Source {
	s := &Source{nodes: map[api.NodeID]Node{}}
	for _, n := range nodes {
		s.nodes[n.ID] = n
	}
	return s
}

// Parse reads the nodes from YAML. Unknown fields and duplicate node IDs are
// rejected.
func Parse(r io.Reader) (*Source, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f struct {
		Nodes []Node `yaml:"nodes"`
	}
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing nodes: %w", err)
	}

	seen := map[api.NodeID]struct{}{}
	for _, n := range f.Nodes {
		if n.ID == api.ZeroNodeID {
			return nil, api.ConfigErrorf("node with no id (host=%q)", n.Host)
		}
		if _, ok := seen[n.ID]; ok {
			return nil, api.ConfigErrorf("duplicate node id: %s", n.ID)
		}
		seen[n.ID] = struct{}{}
	}

	return New(f.Nodes...), nil
}

// Load reads the nodes from the YAML file at the given path.
func Load(path string) (*Source, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading nodes file: %w", err)
	}

	return Parse(bytes.NewReader(b))
}

// Put adds a node, or replaces the node with the same ID.
func (s *Source) Put(n Node) {
	s.Lock()
	defer s.Unlock()
	s.nodes[n.ID] = n
}

// Remove removes the node with the given ID, if it exists.
func (s *Source) Remove(nID api.NodeID) {
	s.Lock()
	defer s.Unlock()
	delete(s.nodes, nID)
}

// Snapshots implements roster.Source. Snapshots are in node ID order.
func (s *Source) Snapshots(ctx context.Context) ([]*roster.Snapshot, error) {
	s.RLock()
	defer s.RUnlock()

	ids := make([]api.NodeID, 0, len(s.nodes))
	for nID := range s.nodes {
		ids = append(ids, nID)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})

	out := make([]*roster.Snapshot, len(ids))
	for i, nID := range ids {
		out[i] = s.nodes[nID].snapshot()
	}

	return out, nil
}
