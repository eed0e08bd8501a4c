// Package ruleset loads the placement rules for each datasource from YAML.
//
//	default:
//	  - type: loadForever
//	    tieredReplicants: {hot: 1, _default_tier: 2}
//	datasources:
//	  wikipedia:
//	    - type: loadByPeriod
//	      period: 720h
//	      tieredReplicants: {hot: 2}
//	    - type: dropForever
//	  countries:
//	    - type: broadcastForever
package ruleset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/rules"
	"gopkg.in/yaml.v3"
)

// Set is an ordered list of rules per datasource, plus the default rules which
// apply to every datasource after its own.
type Set struct {
	def  []rules.Rule
	byDS map[string][]rules.Rule
}

// New returns a Set of the given rules, or a ConfigurationError if any of them
// is invalid.
func New(def []rules.Rule, byDS map[string][]rules.Rule) (*Set, error) {
	for i, r := range def {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("default rule %d: %w", i, err)
		}
	}

	for ds, rs := range byDS {
		if ds == "" {
			return nil, api.ConfigErrorf("rules for empty datasource name")
		}
		for i, r := range rs {
			if err := r.Validate(); err != nil {
				return nil, fmt.Errorf("datasource %s rule %d: %w", ds, i, err)
			}
		}
	}

	if byDS == nil {
		byDS = map[string][]rules.Rule{}
	}

	return &Set{def: def, byDS: byDS}, nil
}

// RulesFor returns the rules which apply to segments of the given datasource,
// in the order they should be tried.
func (s *Set) RulesFor(ds string) []rules.Rule {
	own := s.byDS[ds]
	out := make([]rules.Rule, 0, len(own)+len(s.def))
	out = append(out, own...)
	return append(out, s.def...)
}

// Match returns the first rule which applies to the given segment at the given
// time, or false if none does.
func (s *Set) Match(seg api.Segment, now time.Time) (rules.Rule, bool) {
	for _, r := range s.RulesFor(seg.DataSource) {
		if r.AppliesTo(seg, now) {
			return r, true
		}
	}

	return rules.Rule{}, false
}

// DataSources returns the names of the datasources which have their own rules.
func (s *Set) DataSources() []string {
	out := make([]string, 0, len(s.byDS))
	for ds := range s.byDS {
		out = append(out, ds)
	}
	sort.Strings(out)
	return out
}

type fileSpec struct {
	Default     []ruleSpec            `yaml:"default"`
	DataSources map[string][]ruleSpec `yaml:"datasources"`
}

type ruleSpec struct {
	Type             string         `yaml:"type"`
	TieredReplicants map[string]int `yaml:"tieredReplicants,omitempty"`
	DataSources      []string       `yaml:"dataSources,omitempty"`
	Interval         *api.Interval  `yaml:"interval,omitempty"`
	Period           time.Duration  `yaml:"period,omitempty"`
	IncludeFuture    bool           `yaml:"includeFuture,omitempty"`
}

var kinds = map[string]rules.Kind{
	"load":      rules.KindLoad,
	"broadcast": rules.KindBroadcast,
	"colocate":  rules.KindColocate,
	"drop":      rules.KindDrop,
}

var scopes = map[string]rules.ScopeType{
	"Forever":    rules.Forever,
	"ByInterval": rules.ByInterval,
	"ByPeriod":   rules.ByPeriod,
}

// TypeName returns the name of the rule's type as it appears in rule files,
// e.g. "loadByPeriod".
func TypeName(r rules.Rule) string {
	return r.Kind.String() + r.Scope.Type.String()
}

func (rs ruleSpec) rule() (rules.Rule, error) {
	var kind rules.Kind
	var scope rules.ScopeType
	found := false

	for kn, k := range kinds {
		if !strings.HasPrefix(rs.Type, kn) {
			continue
		}
		if st, ok := scopes[strings.TrimPrefix(rs.Type, kn)]; ok {
			kind, scope, found = k, st, true
			break
		}
	}

	if !found {
		return rules.Rule{}, api.ConfigErrorf("unknown rule type: %q", rs.Type)
	}

	r := rules.Rule{
		Kind:             kind,
		Scope:            rules.Scope{Type: scope},
		TieredReplicants: rs.TieredReplicants,
		DataSources:      rs.DataSources,
	}

	switch scope {
	case rules.ByInterval:
		if rs.Interval != nil {
			r.Scope.Interval = *rs.Interval
		}
	case rules.ByPeriod:
		r.Scope.Period = rs.Period
		r.Scope.IncludeFuture = rs.IncludeFuture
	}

	if rs.Interval != nil && scope != rules.ByInterval {
		return rules.Rule{}, api.ConfigErrorf("%s: interval is only valid for ByInterval rules", rs.Type)
	}
	if (rs.Period != 0 || rs.IncludeFuture) && scope != rules.ByPeriod {
		return rules.Rule{}, api.ConfigErrorf("%s: period is only valid for ByPeriod rules", rs.Type)
	}

	return r, nil
}

// Parse reads a Set from YAML. Unknown fields are rejected.
func Parse(r io.Reader) (*Set, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var fs fileSpec
	if err := dec.Decode(&fs); err != nil && !errors.Is(err, io.EOF) {
		return nil, &api.ConfigurationError{Reason: fmt.Sprintf("parsing rules: %s", err)}
	}

	def, err := convert(fs.Default)
	if err != nil {
		return nil, fmt.Errorf("default rules: %w", err)
	}

	byDS := make(map[string][]rules.Rule, len(fs.DataSources))
	for ds, specs := range fs.DataSources {
		rs, err := convert(specs)
		if err != nil {
			return nil, fmt.Errorf("rules for datasource %s: %w", ds, err)
		}
		byDS[ds] = rs
	}

	return New(def, byDS)
}

// Load reads a Set from the YAML file at the given path.
func Load(path string) (*Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	return Parse(bytes.NewReader(b))
}

func convert(specs []ruleSpec) ([]rules.Rule, error) {
	out := make([]rules.Rule, len(specs))
	for i, rs := range specs {
		r, err := rs.rule()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}
