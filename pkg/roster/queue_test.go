package roster

import (
	"testing"

	"github.com/adammck/placer/pkg/api"
	"github.com/stretchr/testify/assert"
)

func testSegment(ds string, size int64) api.Segment {
	return api.Segment{
		DataSource: ds,
		Interval:   api.MustParseInterval("2013-01-01T00:00:00Z/2013-01-02T00:00:00Z"),
		Version:    "v1",
		Size:       size,
	}
}

func TestQueueLoadIdempotent(t *testing.T) {
	q := NewQueue()
	seg := testSegment("wiki", 10)

	assert.True(t, q.QueueLoad(seg))
	assert.False(t, q.QueueLoad(seg), "second load should be a no-op")

	assert.Equal(t, []api.SegmentID{seg.ID()}, q.LoadSet())
	assert.Equal(t, int64(10), q.SizeToLoad())
	assert.True(t, q.IsQueuedToLoad(seg.ID()))
}

func TestQueueLoadSimilarIdentities(t *testing.T) {
	q := NewQueue()

	a := testSegment("wiki", 10)
	a.Version = "v_1"

	b := testSegment("wiki", 10)
	b.Version = "v"
	b.Partition = 1

	assert.True(t, q.QueueLoad(a))
	assert.True(t, q.QueueLoad(b))
	assert.Len(t, q.LoadSet(), 2)
	assert.Equal(t, int64(20), q.SizeToLoad())
}

func TestQueueLoadCancelsDrop(t *testing.T) {
	q := NewQueue()
	seg := testSegment("wiki", 10)

	assert.True(t, q.QueueDrop(seg))
	assert.True(t, q.IsQueuedToDrop(seg.ID()))
	assert.Equal(t, int64(10), q.SizeToDrop())

	assert.True(t, q.QueueLoad(seg))
	assert.False(t, q.IsQueuedToDrop(seg.ID()))
	assert.True(t, q.IsQueuedToLoad(seg.ID()))
	assert.Empty(t, q.DropSet())
	assert.Equal(t, int64(0), q.SizeToDrop())

	// And the other way around.
	assert.True(t, q.QueueDrop(seg))
	assert.False(t, q.IsQueuedToLoad(seg.ID()))
	assert.Equal(t, int64(0), q.SizeToLoad())
	assert.Equal(t, 1, q.Len())
}

func TestQueueDone(t *testing.T) {
	q := NewQueue()
	a := testSegment("a", 10)
	b := testSegment("b", 20)

	q.QueueLoad(a)
	q.QueueDrop(b)

	assert.Equal(t, []api.Command{
		{Segment: a.ID(), Node: "n1", Action: api.Load},
		{Segment: b.ID(), Node: "n1", Action: api.Drop},
	}, q.Commands("n1"))

	assert.False(t, q.Done(a.ID(), api.Drop), "wrong action")
	assert.True(t, q.Done(a.ID(), api.Load))
	assert.False(t, q.Done(a.ID(), api.Load), "already done")
	assert.Equal(t, int64(0), q.SizeToLoad())

	seg, ok := q.Segment(b.ID())
	assert.True(t, ok)
	assert.Equal(t, b, seg)

	assert.True(t, q.Done(b.ID(), api.Drop))
	assert.Equal(t, 0, q.Len())
}
