package roster

import "context"

// Source supplies the current membership of the cluster: one Snapshot per
// node. It's called once per cycle by the Roster.
type Source interface {
	Snapshots(ctx context.Context) ([]*Snapshot, error)
}
