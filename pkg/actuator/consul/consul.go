// Package consul is an actuator.Impl which hands commands to nodes via the
// Consul KV store. Each command is written to <prefix>/<node>/<segment>. The
// node deletes the key once it has loaded or dropped the segment, or replaces
// the value with one containing an "error" if it couldn't.
package consul

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/roster"
	capi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Message is the value written to each command key.
type Message struct {
	Action  string      `json:"action"`
	Segment api.Segment `json:"segment"`

	// Set by the node if the command failed.
	Error string `json:"error,omitempty"`
}

type Actuator struct {
	kv     *capi.KV
	prefix string
	log    *zap.Logger

	// How long each blocking query waits before polling again.
	wait time.Duration
}

func New(client *capi.Client, prefix string, logger *zap.Logger) *Actuator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Actuator{
		kv:     client.KV(),
		prefix: strings.Trim(prefix, "/"),
		log:    logger,
		wait:   30 * time.Second,
	}
}

func (a *Actuator) Key(cmd api.Command) string {
	return fmt.Sprintf("%s/%s/%s", a.prefix, cmd.Node, cmd.Segment)
}

// Command writes the command for the node to find, and blocks until the node
// has deleted it (success) or reported an error, or the context is done.
func (a *Actuator) Command(ctx context.Context, cmd api.Command, seg api.Segment, n *roster.Node) error {
	key := a.Key(cmd)

	v, err := json.Marshal(Message{Action: cmd.Action.String(), Segment: seg})
	if err != nil {
		return err
	}

	_, err = a.kv.Put(&capi.KVPair{Key: key, Value: v}, (&capi.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("writing command: %w", err)
	}

	a.log.Debug("sent command", zap.String("key", key), zap.String("host", n.Snapshot().Host()))

	var index uint64
	for {
		q := (&capi.QueryOptions{WaitIndex: index, WaitTime: a.wait}).WithContext(ctx)
		p, meta, err := a.kv.Get(key, q)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("waiting for %s: %w", cmd, ctx.Err())
			}
			return fmt.Errorf("polling command: %w", err)
		}

		// Node is done with it.
		if p == nil {
			return nil
		}

		msg := Message{}
		if err := json.Unmarshal(p.Value, &msg); err != nil {
			return fmt.Errorf("decoding command status: %w", err)
		}

		if msg.Error != "" {
			// Clear it, so the next attempt starts fresh.
			if _, err := a.kv.Delete(key, (&capi.WriteOptions{}).WithContext(ctx)); err != nil {
				a.log.Warn("failed to clear failed command", zap.String("key", key), zap.Error(err))
			}
			return fmt.Errorf("node %s failed to %s: %s", cmd.Node, strings.ToLower(cmd.Action.String()), msg.Error)
		}

		index = meta.LastIndex
	}
}
