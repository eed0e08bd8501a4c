package static

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/adammck/placer/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const example = `
nodes:
  - id: norm1
    host: norm1:8083
    maxSize: 100
  - id: hot1
    host: hot1:8083
    tier: hot
    maxSize: 1000
    segments:
      - dataSource: wiki
        interval: 2012-01-01T00:00:00Z/2012-01-02T00:00:00Z
        version: v1
        size: 100
`

func TestParse(t *testing.T) {
	s, err := Parse(strings.NewReader(example))
	require.NoError(t, err)

	snaps, err := s.Snapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	assert.Equal(t, api.NodeID("hot1"), snaps[0].Ident())
	assert.Equal(t, "hot", snaps[0].Tier())
	assert.Equal(t, int64(100), snaps[0].CurrSize())
	assert.Equal(t, "wiki", snaps[0].Segments()[0].DataSource)

	assert.Equal(t, api.NodeID("norm1"), snaps[1].Ident())
	assert.Equal(t, api.DefaultTier, snaps[1].Tier())
	assert.Equal(t, int64(100), snaps[1].MaxSize())
}

func TestParseErrors(t *testing.T) {
	for name, in := range map[string]string{
		"no id":         "nodes: [{host: a}]",
		"duplicate id":  "nodes: [{id: a}, {id: a}]",
		"unknown field": "nodes: [{id: a, capacity: 1}]",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(in))
			assert.Error(t, err)
		})
	}

	_, err := Parse(strings.NewReader("nodes: [{id: a}, {id: a}]"))
	var cerr *api.ConfigurationError
	assert.True(t, errors.As(err, &cerr))
}

func TestPutRemove(t *testing.T) {
	s := New(Node{ID: "a", MaxSize: 10})
	s.Put(Node{ID: "b", MaxSize: 20})
	s.Put(Node{ID: "a", MaxSize: 30})

	snaps, err := s.Snapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(30), snaps[0].MaxSize())

	s.Remove("a")
	snaps, err = s.Snapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, api.NodeID("b"), snaps[0].Ident())
}
