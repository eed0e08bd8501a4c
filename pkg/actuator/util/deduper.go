package util

import (
	"fmt"
	"sync"

	"github.com/adammck/placer/pkg/api"
	"go.uber.org/zap"
)

// Deduper runs each command in its own goroutine, unless the same command is
// already running. Used to avoid sending the same command redundantly every
// single tick while the last attempt is still in flight.
type Deduper struct {
	wg  sync.WaitGroup
	log *zap.Logger

	inFlight   map[api.Command]struct{}
	inFlightMu sync.Mutex
}

func NewDeduper(logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Deduper{
		log:      logger,
		inFlight: map[api.Command]struct{}{},
	}
}

// Wait blocks until every running command has returned.
func (d *Deduper) Wait() {
	d.wg.Wait()
}

// Len returns the number of commands in flight.
func (d *Deduper) Len() int {
	d.inFlightMu.Lock()
	defer d.inFlightMu.Unlock()
	return len(d.inFlight)
}

// Exec calls f in a new goroutine, unless cmd is already in flight, in which
// case it returns false and does nothing.
func (d *Deduper) Exec(cmd api.Command, f func()) bool {
	d.inFlightMu.Lock()
	_, ok := d.inFlight[cmd]
	if !ok {
		d.inFlight[cmd] = struct{}{}
	}
	d.inFlightMu.Unlock()

	if ok {
		d.log.Debug("dropping in-flight command", zap.Stringer("cmd", cmd))
		return false
	}

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		f()

		d.inFlightMu.Lock()
		defer d.inFlightMu.Unlock()

		if _, ok := d.inFlight[cmd]; !ok {
			// Critical this works, because could drop all commands.
			panic(fmt.Sprintf("no record of in-flight command: %s", cmd))
		}

		d.log.Debug("command completed", zap.Stringer("cmd", cmd))
		delete(d.inFlight, cmd)
	}()

	return true
}
