package roster

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/adammck/placer/pkg/api"
	"github.com/stretchr/testify/assert"
)

func TestNodeCapacity(t *testing.T) {
	served := testSegment("served", 300)
	n := NewNode(NewSnapshot("n1", "host1", "", 1000, []api.Segment{served}))

	assert.Equal(t, api.DefaultTier, n.Tier())
	assert.Equal(t, int64(300), n.SizeUsed())
	assert.Equal(t, int64(700), n.AvailableSize())
	assert.InDelta(t, 0.3, n.Utilization(), 0.0001)

	loading := testSegment("loading", 200)
	n.Queue().QueueLoad(loading)
	assert.Equal(t, int64(500), n.AvailableSize())
	assert.InDelta(t, 0.5, n.Utilization(), 0.0001)

	// Queued drops don't free anything until they're done.
	n.Queue().QueueDrop(served)
	assert.Equal(t, int64(500), n.AvailableSize())

	assert.True(t, n.HasSegment(served.ID()))
	assert.True(t, n.HasSegment(loading.ID()))
	assert.False(t, n.CanLoad(loading), "already loading")
	assert.False(t, n.CanLoad(served), "already serving")
	assert.True(t, n.CanLoad(testSegment("fits", 500)))
	assert.False(t, n.CanLoad(testSegment("too big", 501)))
}

func TestNodeZeroCapacity(t *testing.T) {
	n := NewNode(NewSnapshot("n1", "host1", "hot", 0, nil))
	assert.Equal(t, float64(1), n.Utilization())
	assert.True(t, n.CanLoad(testSegment("empty", 0)))
	assert.False(t, n.CanLoad(testSegment("small", 1)))
}

func TestNodeSwapKeepsQueue(t *testing.T) {
	seg := testSegment("wiki", 10)
	n := NewNode(NewSnapshot("n1", "host1", "hot", 100, nil))
	q := n.Queue()
	q.QueueLoad(seg)

	n.Swap(NewSnapshot("n1", "host1", "hot", 100, []api.Segment{seg}))
	assert.Same(t, q, n.Queue())
	assert.True(t, n.Serves(seg.ID()))
	assert.True(t, n.IsLoading(seg.ID()))

	assert.Panics(t, func() {
		n.Swap(NewSnapshot("n2", "host2", "hot", 100, nil))
	})
}

func TestNodeTryLoadConcurrent(t *testing.T) {
	n := NewNode(NewSnapshot("n1", "host1", "hot", 1000, nil))

	var wg sync.WaitGroup
	var ok atomic.Int32

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if n.TryLoad(testSegment(fmt.Sprintf("ds%d", i), 100)) {
				ok.Add(1)
			}
		}(i)
	}

	wg.Wait()
	assert.Equal(t, int32(10), ok.Load())
	assert.Equal(t, 10, n.Queue().Len())
	assert.Equal(t, int64(0), n.AvailableSize())
}
