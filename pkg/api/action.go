package api

// Action represents each of the operations that the placer can ask a node to
// perform on a segment. See also Command.
type Action uint8

const (
	NoAction Action = iota
	Load
	Drop
)

func (a Action) String() string {
	switch a {
	case NoAction:
		return "NoAction"
	case Load:
		return "Load"
	case Drop:
		return "Drop"
	}

	return "Action(?)"
}
