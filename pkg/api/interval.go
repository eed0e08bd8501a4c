package api

import (
	"fmt"
	"strings"
	"time"
)

// Interval is a half-open span of time: [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// ParseInterval parses an interval in the "start/end" form, where both ends
// are RFC3339 timestamps.
func ParseInterval(s string) (Interval, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return Interval{}, fmt.Errorf("invalid interval: %q", s)
	}

	start, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Interval{}, fmt.Errorf("invalid interval start: %w", err)
	}

	end, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return Interval{}, fmt.Errorf("invalid interval end: %w", err)
	}

	if end.Before(start) {
		return Interval{}, fmt.Errorf("invalid interval: end before start: %q", s)
	}

	return Interval{Start: start, End: end}, nil
}

// MustParseInterval is like ParseInterval, but panics on error. It's meant
// for tests and literals.
func MustParseInterval(s string) Interval {
	i, err := ParseInterval(s)
	if err != nil {
		panic(err)
	}
	return i
}

// Contains returns true if other lies entirely within this interval.
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// Overlaps returns true if the two intervals share any instant. Abutting
// intervals don't overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

func (i Interval) String() string {
	return fmt.Sprintf("%s/%s",
		i.Start.UTC().Format(time.RFC3339Nano),
		i.End.UTC().Format(time.RFC3339Nano))
}

func (i Interval) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Interval) UnmarshalText(b []byte) error {
	v, err := ParseInterval(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}
