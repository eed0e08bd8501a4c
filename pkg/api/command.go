package api

import (
	"fmt"
)

// Command is a single queued operation, as handed to the transfer layer: ask
// one node to load or drop one segment.
type Command struct {
	Segment SegmentID
	Node    NodeID
	Action  Action
}

func (c Command) String() string {
	return fmt.Sprintf("%s(%s, %s)", c.Action, c.Segment, c.Node)
}

func (c Command) Less(other Command) bool {
	if c.Segment != other.Segment {
		return c.Segment < other.Segment
	} else if c.Node != other.Node {
		return c.Node < other.Node
	} else {
		return c.Action < other.Action
	}
}
