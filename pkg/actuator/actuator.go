// Package actuator hands the operations queued by the placement rules to the
// transfer layer, and clears them from the queues once they're done.
package actuator

import (
	"context"
	"sync"
	"time"

	"github.com/adammck/placer/pkg/actuator/util"
	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/roster"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Impl performs a command, by whatever means. It should block until the node
// has finished (or failed) to load or drop the segment.
type Impl interface {
	Command(ctx context.Context, cmd api.Command, seg api.Segment, n *roster.Node) error
}

// ImplFunc adapts a function to the Impl interface.
type ImplFunc func(ctx context.Context, cmd api.Command, seg api.Segment, n *roster.Node) error

func (f ImplFunc) Command(ctx context.Context, cmd api.Command, seg api.Segment, n *roster.Node) error {
	return f(ctx, cmd, seg, n)
}

// How many times a command can fail before it's removed from the queue. The
// rules will queue it again next cycle if it's still needed.
var maxFailures = map[api.Action]int{
	api.Load: 3,
	api.Drop: 30, // Not quite forever
}

type Actuator struct {
	impl  Impl
	clock clockwork.Clock
	log   *zap.Logger

	dedupe *util.Deduper

	failures   map[api.Command][]time.Time
	failuresMu sync.RWMutex

	// Minimum time between attempts at a command which has failed.
	backoff time.Duration

	// Maximum time to wait for a single attempt. Zero means no limit.
	timeout time.Duration

	commands *prometheus.CounterVec
}

func New(impl Impl, clock clockwork.Clock, backoff, timeout time.Duration, logger *zap.Logger) *Actuator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Actuator{
		impl:     impl,
		clock:    clock,
		log:      logger,
		dedupe:   util.NewDeduper(logger),
		failures: map[api.Command][]time.Time{},
		backoff:  backoff,
		timeout:  timeout,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "placer",
			Subsystem: "actuator",
			Name:      "commands_total",
			Help:      "Commands attempted, by action and result.",
		}, []string{"action", "result"}),
	}
}

// Tick dispatches every operation queued on any node in the cluster, except
// those already in flight or backing off after a failure. It doesn't wait for
// them to complete. Returns the number of commands dispatched.
func (a *Actuator) Tick(ctx context.Context, c *roster.Cluster) int {
	n := 0

	for _, node := range c.AllNodes() {
		for _, cmd := range node.Queue().Commands(node.Ident()) {
			if a.consider(ctx, cmd, node) {
				n += 1
			}
		}
	}

	return n
}

// Wait blocks until every dispatched command has completed.
func (a *Actuator) Wait() {
	a.dedupe.Wait()
}

func (a *Actuator) consider(ctx context.Context, cmd api.Command, n *roster.Node) bool {
	log := a.log.With(zap.Stringer("cmd", cmd))

	seg, ok := n.Queue().Segment(cmd.Segment)
	if !ok {
		// Completed since the commands were listed.
		return false
	}

	if f := a.Failures(cmd); f >= maxFailures[cmd.Action] {
		log.Warn("giving up on command", zap.Int("failures", f))
		n.Queue().Done(cmd.Segment, cmd.Action)
		a.clearFailures(cmd)
		a.commands.WithLabelValues(cmd.Action.String(), "abandoned").Inc()
		return false
	}

	if a.backoff > 0 && a.LastFailure(cmd).After(a.clock.Now().Add(-a.backoff)) {
		log.Debug("backing off")
		return false
	}

	return a.dedupe.Exec(cmd, func() {
		a.exec(ctx, cmd, seg, n, log)
	})
}

func (a *Actuator) exec(ctx context.Context, cmd api.Command, seg api.Segment, n *roster.Node, log *zap.Logger) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	err := a.impl.Command(ctx, cmd, seg, n)
	if err != nil {
		log.Warn("command failed", zap.Error(err))
		a.incrementError(cmd)
		a.commands.WithLabelValues(cmd.Action.String(), "error").Inc()
		return
	}

	log.Debug("command succeeded")
	n.Queue().Done(cmd.Segment, cmd.Action)
	a.clearFailures(cmd)
	a.commands.WithLabelValues(cmd.Action.String(), "ok").Inc()
}

func (a *Actuator) incrementError(cmd api.Command) {
	a.failuresMu.Lock()
	defer a.failuresMu.Unlock()
	a.failures[cmd] = append(a.failures[cmd], a.clock.Now())
}

func (a *Actuator) clearFailures(cmd api.Command) {
	a.failuresMu.Lock()
	defer a.failuresMu.Unlock()
	delete(a.failures, cmd)
}

// Failures returns the number of times the command has failed since it last
// succeeded or was abandoned.
func (a *Actuator) Failures(cmd api.Command) int {
	a.failuresMu.RLock()
	defer a.failuresMu.RUnlock()
	return len(a.failures[cmd])
}

func (a *Actuator) LastFailure(cmd api.Command) time.Time {
	a.failuresMu.RLock()
	defer a.failuresMu.RUnlock()

	t, ok := a.failures[cmd]
	if !ok {
		return time.Time{}
	}

	return t[len(t)-1]
}

func (a *Actuator) Describe(ch chan<- *prometheus.Desc) {
	a.commands.Describe(ch)
}

func (a *Actuator) Collect(ch chan<- prometheus.Metric) {
	a.commands.Collect(ch)
}
