// Package rules decides where segments should be placed. A Rule is evaluated
// against one segment at a time, and records its decisions by queueing loads
// and drops on the nodes of the cluster.
package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/replicas"
	"github.com/adammck/placer/pkg/roster"
	"github.com/adammck/placer/pkg/stats"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
)

type Kind uint8

const (
	KindUnknown Kind = iota

	// Keep a fixed number of replicas in each tier.
	KindLoad

	// Load onto every node, if the datasource is allowed.
	KindBroadcast

	// Load onto every node which has any segment of the listed datasources.
	KindColocate

	// Drop from every node.
	KindDrop
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindBroadcast:
		return "broadcast"
	case KindColocate:
		return "colocate"
	case KindDrop:
		return "drop"
	}

	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Rule is a placement policy. Which fields are meaningful depends on the Kind.
type Rule struct {
	Kind  Kind
	Scope Scope

	// Only for KindLoad, and required. Target number of replicas in each
	// tier. Tiers which aren't listed have a target of zero.
	TieredReplicants map[string]int

	// For KindBroadcast, the datasources whose segments are broadcast. Empty
	// means all of them. For KindColocate, the datasources to colocate with,
	// which must not be empty.
	DataSources []string
}

// Validate returns a ConfigurationError if the rule is malformed.
func (r Rule) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Kind, validation.Required, validation.In(KindLoad, KindBroadcast, KindColocate, KindDrop)),
		validation.Field(&r.Scope),
		validation.Field(&r.TieredReplicants,
			validation.When(r.Kind == KindLoad, validation.Required),
			validation.When(r.Kind != KindLoad, validation.Empty),
			validation.Each(validation.Min(0)),
			validation.By(noEmptyKeys)),
		validation.Field(&r.DataSources,
			validation.When(r.Kind == KindColocate, validation.Required),
			validation.When(r.Kind == KindLoad || r.Kind == KindDrop, validation.Empty),
			validation.Each(validation.Required),
			validation.By(noDuplicates)),
	)
	if err != nil {
		return &api.ConfigurationError{Reason: fmt.Sprintf("invalid %s rule: %s", r.Kind, err)}
	}

	return nil
}

func noEmptyKeys(value interface{}) error {
	m, _ := value.(map[string]int)
	for k := range m {
		if k == "" {
			return fmt.Errorf("tier name must not be empty")
		}
	}
	return nil
}

func noDuplicates(value interface{}) error {
	l, _ := value.([]string)
	seen := make(map[string]struct{}, len(l))
	for _, s := range l {
		if _, ok := seen[s]; ok {
			return fmt.Errorf("duplicate datasource: %q", s)
		}
		seen[s] = struct{}{}
	}
	return nil
}

// AppliesTo returns true if the rule should be run for the given segment.
func (r Rule) AppliesTo(seg api.Segment, now time.Time) bool {
	return r.Scope.AppliesTo(seg, now)
}

func (r Rule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s", r.Kind, r.Scope)

	switch r.Kind {
	case KindLoad:
		tiers := make([]string, 0, len(r.TieredReplicants))
		for tier := range r.TieredReplicants {
			tiers = append(tiers, tier)
		}
		sort.Strings(tiers)

		parts := make([]string, len(tiers))
		for i, tier := range tiers {
			parts[i] = fmt.Sprintf("%s:%d", tier, r.TieredReplicants[tier])
		}
		fmt.Fprintf(&b, "{%s}", strings.Join(parts, ","))

	case KindBroadcast, KindColocate:
		fmt.Fprintf(&b, "%v", r.DataSources)
	}

	return b.String()
}

// Params is everything a rule needs to make its decisions, other than the
// segment itself. It's built once per pass and shared by every invocation.
type Params struct {
	Cluster  *roster.Cluster
	Replicas *replicas.Lookup

	// Order in which the tiers of a load rule are visited. Tiers not listed
	// here follow, alphabetically.
	TierPriority []string

	// Optional.
	Logger *zap.Logger
}

func (p Params) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Run evaluates the rule for one segment, queueing loads and drops on the
// nodes of p.Cluster, and returns counters describing what it did. Returns a
// ConfigurationError (and changes nothing) if the rule is malformed.
func (r Rule) Run(p Params, seg api.Segment) (*stats.Stats, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	log := p.logger().With(
		zap.Stringer("segment", seg.ID()),
		zap.Stringer("rule", r))

	switch r.Kind {
	case KindLoad:
		return r.runLoad(p, seg, log), nil

	case KindBroadcast:
		return r.runBroadcast(p, seg, log), nil

	case KindColocate:
		return r.runColocate(p, seg, log), nil

	case KindDrop:
		return r.runDrop(p, seg, log), nil
	}

	// Validate would have caught this.
	panic(fmt.Sprintf("unknown rule kind: %s", r.Kind))
}

// tierOrder returns the tier names of the given targets, those named in the
// priority list first (in that order), then the rest alphabetically.
func tierOrder(targets map[string]int, priority []string) []string {
	out := make([]string, 0, len(targets))
	seen := map[string]struct{}{}

	for _, tier := range priority {
		if _, ok := targets[tier]; !ok {
			continue
		}
		if _, ok := seen[tier]; ok {
			continue
		}
		seen[tier] = struct{}{}
		out = append(out, tier)
	}

	rest := []string{}
	for tier := range targets {
		if _, ok := seen[tier]; !ok {
			rest = append(rest, tier)
		}
	}
	sort.Strings(rest)

	return append(out, rest...)
}
