package api

// NodeID is the unique identity of a node. It's the server name that the
// node announces itself with, and is stable across restarts.
type NodeID string

const ZeroNodeID NodeID = ""

func (nID NodeID) String() string {
	return string(nID)
}
