// Package orchestrator runs placement cycles: each Tick refreshes the cluster
// view, matches every segment to its rule, runs the rule, and publishes the
// combined stats.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/metadata"
	"github.com/adammck/placer/pkg/replicas"
	"github.com/adammck/placer/pkg/roster"
	"github.com/adammck/placer/pkg/rules"
	"github.com/adammck/placer/pkg/ruleset"
	"github.com/adammck/placer/pkg/stats"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultParallelism = 8

type Orchestrator struct {
	clock clockwork.Clock
	log   *zap.Logger

	ros       *roster.Roster
	segs      metadata.Source
	collector *stats.Collector

	// Can be swapped between cycles, e.g. when the rules file is reloaded.
	rules   *ruleset.Set
	rulesMu sync.RWMutex

	tierPriority []string
	parallelism  int

	// The most recent cycle, for debugging.
	last   *Result
	lastMu sync.RWMutex
}

// Result describes one completed cycle.
type Result struct {
	ID       string
	Started  time.Time
	Duration time.Duration
	Segments int
	Cluster  *roster.Cluster
	Stats    *stats.Stats
}

func New(clock clockwork.Clock, ros *roster.Roster, segs metadata.Source, rs *ruleset.Set, collector *stats.Collector, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}

	if collector == nil {
		collector = stats.NewCollector()
	}

	return &Orchestrator{
		clock:       clock,
		log:         logger,
		ros:         ros,
		segs:        segs,
		collector:   collector,
		rules:       rs,
		parallelism: defaultParallelism,
	}
}

// SetTierPriority sets the order in which load rules visit their tiers.
func (o *Orchestrator) SetTierPriority(tiers []string) {
	o.tierPriority = tiers
}

// SetParallelism sets the number of segments evaluated concurrently. Values
// less than one mean one. Each decision is still made against the state of
// the cluster at the start of the cycle, but when more than one segment is
// competing for the last of a node's capacity, which of them gets it depends
// on scheduling. Use one for reproducible plans.
func (o *Orchestrator) SetParallelism(n int) {
	if n < 1 {
		n = 1
	}
	o.parallelism = n
}

// SetRules replaces the rules used by subsequent cycles.
func (o *Orchestrator) SetRules(rs *ruleset.Set) {
	o.rulesMu.Lock()
	defer o.rulesMu.Unlock()
	o.rules = rs
}

func (o *Orchestrator) ruleSet() *ruleset.Set {
	o.rulesMu.RLock()
	defer o.rulesMu.RUnlock()
	return o.rules
}

// Last returns the result of the most recent completed cycle, or nil.
func (o *Orchestrator) Last() *Result {
	o.lastMu.RLock()
	defer o.lastMu.RUnlock()
	return o.last
}

// Tick runs one placement cycle. Decisions are recorded in the queues of the
// nodes in the returned cluster. If the cycle can't complete (e.g. the
// membership or metadata source is unreachable, or ctx is cancelled) an error
// is returned, and nothing is published. Queue mutations made before the
// failure are kept, and will be counted as replicas by the next cycle.
func (o *Orchestrator) Tick(ctx context.Context) (*Result, error) {
	res := &Result{
		ID:      uuid.NewString(),
		Started: o.clock.Now(),
	}

	log := o.log.With(zap.String("cycle", res.ID))

	cluster, err := o.ros.Tick(ctx)
	if err != nil {
		return nil, fmt.Errorf("refreshing roster: %w", err)
	}

	segs, err := o.segs.Segments(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching segments: %w", err)
	}

	p := rules.Params{
		Cluster:      cluster,
		Replicas:     replicas.Make(cluster),
		TierPriority: o.tierPriority,
		Logger:       log,
	}

	rs := o.ruleSet()
	total := stats.New()
	var totalMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)

	for _, seg := range segs {
		seg := seg
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			s := evaluate(rs, p, seg, res.Started, log)

			totalMu.Lock()
			defer totalMu.Unlock()
			total.Merge(s)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cycle %s abandoned: %w", res.ID, err)
	}

	res.Segments = len(segs)
	res.Cluster = cluster
	res.Stats = total
	res.Duration = o.clock.Since(res.Started)

	o.collector.Publish(total)

	o.lastMu.Lock()
	o.last = res
	o.lastMu.Unlock()

	log.Info("cycle complete",
		zap.Int("nodes", cluster.Len()),
		zap.Int("segments", len(segs)),
		zap.Duration("duration", res.Duration),
		zap.Any("stats", total.GlobalStats()))

	return res, nil
}

// evaluate runs the first matching rule for one segment. A segment with no
// matching rule, or whose rule is malformed, is counted and skipped.
func evaluate(rs *ruleset.Set, p rules.Params, seg api.Segment, now time.Time, log *zap.Logger) *stats.Stats {
	if rs == nil {
		s := stats.New()
		s.AddGlobal(stats.NoMatchingRule, 1)
		return s
	}

	r, ok := rs.Match(seg, now)
	if !ok {
		log.Debug("no matching rule", zap.Stringer("segment", seg.ID()))
		s := stats.New()
		s.AddGlobal(stats.NoMatchingRule, 1)
		return s
	}

	s, err := r.Run(p, seg)
	if err != nil {
		var cerr *api.ConfigurationError
		if errors.As(err, &cerr) {
			log.Warn("rule rejected", zap.Stringer("segment", seg.ID()), zap.Stringer("rule", r), zap.Error(err))
		} else {
			log.Error("rule failed", zap.Stringer("segment", seg.ID()), zap.Stringer("rule", r), zap.Error(err))
		}

		s = stats.New()
		s.AddGlobal(stats.RuleError, 1)
	}

	return s
}
