package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rprtr258/procwatch/internal/errors"
	"github.com/rprtr258/procwatch/internal/inotify"
)

// Policy decides what consumer receives for decoded events.
type Policy string

const (
	// PolicyEvents forwards every event on its own.
	PolicyEvents Policy = "events"
	// PolicyWake sends one signal per read, folding all its events into a
	// count. Which directories changed and how is lost.
	PolicyWake Policy = "wake"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyEvents, PolicyWake:
		return p, nil
	case "":
		return PolicyEvents, nil
	default:
		return "", errors.Newf("unknown policy %q, expected %q or %q", s, PolicyEvents, PolicyWake)
	}
}

// Signal is what consumer receives. With PolicyEvents it carries single event
// and directory it happened in, with PolicyWake only Coalesced is set.
type Signal struct {
	// Dir is watched directory of event, empty if watch id is not known,
	// e.g. for queue overflow.
	Dir   string
	Event inotify.Event
	// Coalesced is number of events folded into wake signal.
	Coalesced int
}

func (s Signal) IsWake() bool {
	return s.Coalesced > 0
}

// Path is full path of entry event is about.
func (s Signal) Path() string {
	name, ok := s.Event.Name.Unpack()
	if !ok {
		return s.Dir
	}
	return filepath.Join(s.Dir, name)
}

func (s Signal) String() string {
	if s.IsWake() {
		return fmt.Sprintf("wake events=%d", s.Coalesced)
	}
	return fmt.Sprintf("%s %s", s.Event.Mask, s.Path())
}

// Dispatcher is single channel from loop to consumer. Loop is the only sender
// and closes it when done.
type Dispatcher struct {
	policy Policy
	out    chan Signal
}

// NewDispatcher creates dispatcher with channel buffered for buffer signals.
func NewDispatcher(policy Policy, buffer int) *Dispatcher {
	return &Dispatcher{
		policy: policy,
		out:    make(chan Signal, max(buffer, 0)),
	}
}

func (d *Dispatcher) Policy() Policy {
	return d.policy
}

// Signals is channel consumer reads, it is closed after loop stops.
func (d *Dispatcher) Signals() <-chan Signal {
	return d.out
}

func (d *Dispatcher) send(ctx context.Context, s Signal) bool {
	select {
	case <-ctx.Done():
		return false
	case d.out <- s:
		return true
	}
}

// dispatch hands events of one read to consumer in order. Returns false if ctx
// was cancelled while waiting for consumer.
func (d *Dispatcher) dispatch(ctx context.Context, dirs map[int32]string, events []inotify.Event) bool {
	if len(events) == 0 {
		return true
	}

	if d.policy == PolicyWake {
		return d.send(ctx, Signal{
			Dir:       "",
			Event:     inotify.Event{}, //nolint:exhaustruct // no event in wake signal
			Coalesced: len(events),
		})
	}

	for _, event := range events {
		if !d.send(ctx, Signal{
			Dir:       dirs[event.WatchID],
			Event:     event,
			Coalesced: 0,
		}) {
			return false
		}
	}
	return true
}

func (d *Dispatcher) close() {
	close(d.out)
}
