// Package metadata is where the placer finds out which segments exist.
package metadata

import (
	"context"

	"github.com/adammck/placer/pkg/api"
)

// Source supplies the segments which should be placed. It's called once per
// cycle.
type Source interface {
	Segments(ctx context.Context) ([]api.Segment, error)
}

// Store is a Source which can also be written to, e.g. when importing segment
// metadata from elsewhere.
type Store interface {
	Source

	// PutSegments writes all of the given segments to the store, replacing
	// any with the same ID. Implementations should be transactional where the
	// backend allows, so either they all succeed or none do.
	PutSegments(ctx context.Context, segs []api.Segment) error

	// DeleteSegments removes the segments with the given IDs. Unknown IDs are
	// ignored.
	DeleteSegments(ctx context.Context, ids []api.SegmentID) error
}
