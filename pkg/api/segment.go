package api

import (
	"fmt"
	"strings"
	"time"
)

// SegmentID is the unique identity of a segment. It's derived from the
// datasource, interval, version, and partition number, so two segments with
// the same ID are the same segment.
type SegmentID string

func (id SegmentID) String() string {
	return string(id)
}

// Segment is an immutable unit of distributable data. Segments are created by
// the metadata layer; nothing in the placer ever modifies one.
type Segment struct {
	DataSource string   `json:"dataSource" yaml:"dataSource"`
	Interval   Interval `json:"interval" yaml:"interval"`
	Version    string   `json:"version" yaml:"version"`
	Partition  int      `json:"partition,omitempty" yaml:"partition,omitempty"`

	// Size is the number of bytes that a node needs to serve the segment.
	Size int64 `json:"size" yaml:"size"`
}

// Escapes the separator (and the escape character) in free-form fields, so
// every part of an ID can be told apart.
var idEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// ID returns the identifier of the segment, in the form:
// datasource_start_end_version[_partition]
// Underscores in the datasource and version are written as %5F.
func (s Segment) ID() SegmentID {
	id := fmt.Sprintf("%s_%s_%s_%s",
		idEscaper.Replace(s.DataSource),
		s.Interval.Start.UTC().Format(time.RFC3339Nano),
		s.Interval.End.UTC().Format(time.RFC3339Nano),
		idEscaper.Replace(s.Version))

	if s.Partition != 0 {
		id = fmt.Sprintf("%s_%d", id, s.Partition)
	}

	return SegmentID(id)
}

func (s Segment) String() string {
	return string(s.ID())
}
