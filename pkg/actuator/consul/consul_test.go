package consul

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/roster"
	"github.com/adammck/placer/pkg/test/fakeconsul"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setup(t *testing.T) (*fakeconsul.Server, *Actuator, *roster.Node, api.Segment, api.Command) {
	fc := fakeconsul.New(t)
	a := New(fc.Client(t), "placer/queue", zaptest.NewLogger(t))

	seg := api.Segment{
		DataSource: "wiki",
		Interval:   api.MustParseInterval("2012-01-01T00:00:00Z/2012-01-02T00:00:00Z"),
		Version:    "v1",
		Size:       100,
	}

	n := roster.NewNode(roster.NewSnapshot("n1", "host1:8083", "hot", 1000, nil))
	cmd := api.Command{Segment: seg.ID(), Node: "n1", Action: api.Load}

	return fc, a, n, seg, cmd
}

func run(a *Actuator, ctx context.Context, cmd api.Command, seg api.Segment, n *roster.Node) chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- a.Command(ctx, cmd, seg, n)
	}()
	return ch
}

func waitForKey(t *testing.T, fc *fakeconsul.Server, key string) Message {
	var v []byte
	require.Eventually(t, func() bool {
		var ok bool
		v, ok = fc.Get(key)
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	msg := Message{}
	require.NoError(t, json.Unmarshal(v, &msg))
	return msg
}

func TestCommandSuccess(t *testing.T) {
	fc, a, n, seg, cmd := setup(t)
	key := a.Key(cmd)
	assert.Equal(t, "placer/queue/n1/"+string(seg.ID()), key)

	ch := run(a, context.Background(), cmd, seg, n)

	msg := waitForKey(t, fc, key)
	assert.Equal(t, "Load", msg.Action)
	assert.Equal(t, seg, msg.Segment)

	// Node finishes loading.
	fc.Delete(key)

	select {
	case err := <-ch:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("command didn't return")
	}
}

func TestCommandNodeError(t *testing.T) {
	fc, a, n, seg, cmd := setup(t)
	key := a.Key(cmd)

	ch := run(a, context.Background(), cmd, seg, n)

	msg := waitForKey(t, fc, key)
	msg.Error = "disk full"
	v, err := json.Marshal(msg)
	require.NoError(t, err)
	fc.Put(key, v)

	select {
	case err := <-ch:
		assert.EqualError(t, err, "node n1 failed to load: disk full")
	case <-time.After(5 * time.Second):
		t.Fatal("command didn't return")
	}

	_, ok := fc.Get(key)
	assert.False(t, ok, "failed command should be cleared")
}

func TestCommandTimeout(t *testing.T) {
	fc, a, n, seg, cmd := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := a.Command(ctx, cmd, seg, n)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Left in place; the node may still be working on it.
	_, ok := fc.Get(a.Key(cmd))
	assert.True(t, ok)
}
