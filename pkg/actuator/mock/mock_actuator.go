// Package mock is an actuator.Impl which records the commands it's given
// instead of sending them anywhere. Errors can be injected per command.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/roster"
)

type Actuator struct {
	commands []api.Command
	errs     map[api.Command]error
	sync.Mutex
}

func New() *Actuator {
	return &Actuator{
		errs: map[api.Command]error{},
	}
}

func (a *Actuator) Command(ctx context.Context, cmd api.Command, seg api.Segment, n *roster.Node) error {
	a.Lock()
	defer a.Unlock()

	a.commands = append(a.commands, cmd)
	return a.errs[cmd]
}

// Inject causes every future attempt at the given command to return err. Pass
// nil to make it succeed again.
func (a *Actuator) Inject(cmd api.Command, err error) {
	a.Lock()
	defer a.Unlock()

	if err == nil {
		delete(a.errs, cmd)
		return
	}

	a.errs[cmd] = err
}

// Commands returns every command attempted so far, sorted, and forgets them.
func (a *Actuator) Commands() []api.Command {
	a.Lock()
	defer a.Unlock()

	out := a.commands
	a.commands = nil

	sort.Slice(out, func(i, j int) bool {
		return out[i].Less(out[j])
	})

	return out
}
