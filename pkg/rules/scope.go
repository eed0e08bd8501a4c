package rules

import (
	"errors"
	"fmt"
	"time"

	"github.com/adammck/placer/pkg/api"
)

type ScopeType uint8

const (
	Forever ScopeType = iota
	ByInterval
	ByPeriod
)

func (t ScopeType) String() string {
	switch t {
	case Forever:
		return "Forever"
	case ByInterval:
		return "ByInterval"
	case ByPeriod:
		return "ByPeriod"
	}

	// Probably a bug.
	return fmt.Sprintf("ScopeType(%d)", uint8(t))
}

// Scope selects the segments which a rule applies to, by their interval.
type Scope struct {
	Type ScopeType

	// Only for ByInterval. The rule applies to segments whose interval lies
	// entirely within this one.
	Interval api.Interval

	// Only for ByPeriod. The rule applies to segments which overlap the period
	// ending now. If IncludeFuture is set, it also applies to segments which
	// start at or after now.
	Period        time.Duration
	IncludeFuture bool
}

// Validate implements validation.Validatable.
func (s Scope) Validate() error {
	switch s.Type {
	case Forever:
		return nil

	case ByInterval:
		if s.Interval.Start.IsZero() || s.Interval.End.IsZero() {
			return errors.New("interval is required")
		}
		if s.Interval.End.Before(s.Interval.Start) {
			return fmt.Errorf("interval ends before it starts: %s", s.Interval)
		}
		return nil

	case ByPeriod:
		if s.Period <= 0 {
			return fmt.Errorf("period must be positive, got %s", s.Period)
		}
		return nil
	}

	return fmt.Errorf("unknown scope type: %s", s.Type)
}

// AppliesTo returns true if the scope covers the given segment at the given
// time.
func (s Scope) AppliesTo(seg api.Segment, now time.Time) bool {
	switch s.Type {
	case Forever:
		return true

	case ByInterval:
		return s.Interval.Contains(seg.Interval)

	case ByPeriod:
		window := api.Interval{Start: now.Add(-s.Period), End: now}
		if window.Overlaps(seg.Interval) {
			return true
		}
		return s.IncludeFuture && !seg.Interval.Start.Before(now)
	}

	return false
}

func (s Scope) String() string {
	switch s.Type {
	case ByInterval:
		return fmt.Sprintf("ByInterval(%s)", s.Interval)
	case ByPeriod:
		if s.IncludeFuture {
			return fmt.Sprintf("ByPeriod(%s+future)", s.Period)
		}
		return fmt.Sprintf("ByPeriod(%s)", s.Period)
	}

	return s.Type.String()
}
