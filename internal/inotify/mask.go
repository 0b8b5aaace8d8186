package inotify

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"

	"github.com/rprtr258/procwatch/internal/errors"
)

// EventKind is inotify event mask as reported by kernel. Single bit values are
// event kinds, several bits set at once describe one record.
type EventKind uint32

const (
	Access        EventKind = unix.IN_ACCESS
	Modify        EventKind = unix.IN_MODIFY
	Attrib        EventKind = unix.IN_ATTRIB
	CloseWrite    EventKind = unix.IN_CLOSE_WRITE
	CloseNoWrite  EventKind = unix.IN_CLOSE_NOWRITE
	Open          EventKind = unix.IN_OPEN
	MovedFrom     EventKind = unix.IN_MOVED_FROM
	MovedTo       EventKind = unix.IN_MOVED_TO
	Create        EventKind = unix.IN_CREATE
	Delete        EventKind = unix.IN_DELETE
	DeleteSelf    EventKind = unix.IN_DELETE_SELF
	MoveSelf      EventKind = unix.IN_MOVE_SELF
	Unmount       EventKind = unix.IN_UNMOUNT
	QueueOverflow EventKind = unix.IN_Q_OVERFLOW
	Ignored       EventKind = unix.IN_IGNORED
	IsDir         EventKind = unix.IN_ISDIR

	// Close is either of close kinds.
	Close = CloseWrite | CloseNoWrite

	// Move is either side of rename.
	Move = MovedFrom | MovedTo

	// AllEvents is mask used to register watches.
	AllEvents EventKind = unix.IN_ALL_EVENTS

	// OnlyDir makes kernel refuse watch if path is not a directory.
	OnlyDir EventKind = unix.IN_ONLYDIR
)

var _kinds = []struct {
	kind EventKind
	name string
}{
	{Access, "ACCESS"},
	{Modify, "MODIFY"},
	{Attrib, "ATTRIB"},
	{CloseWrite, "CLOSE_WRITE"},
	{CloseNoWrite, "CLOSE_NOWRITE"},
	{Open, "OPEN"},
	{MovedFrom, "MOVED_FROM"},
	{MovedTo, "MOVED_TO"},
	{Create, "CREATE"},
	{Delete, "DELETE"},
	{DeleteSelf, "DELETE_SELF"},
	{MoveSelf, "MOVE_SELF"},
	{Unmount, "UNMOUNT"},
	{QueueOverflow, "Q_OVERFLOW"},
	{Ignored, "IGNORED"},
	{IsDir, "ISDIR"},
}

var _composites = map[string]EventKind{
	"CLOSE": Close,
	"MOVE":  Move,
	"ALL":   AllEvents,
}

// _known is union of all kinds kernel may report in event record.
var _known = func() EventKind {
	var res EventKind
	for _, k := range _kinds {
		res |= k.kind
	}
	return res
}()

// Has reports whether any bit of kinds is set in k. Composites like Close
// match if either part is set.
func (k EventKind) Has(kinds EventKind) bool {
	return k&kinds != 0
}

// Known returns only bits that have names.
func (k EventKind) Known() EventKind {
	return k & _known
}

// Undefined returns bits kernel set that are not known to this package.
// Those are reported, never rejected.
func (k EventKind) Undefined() EventKind {
	return k &^ _known
}

// Kinds splits mask into single known kinds in bit order.
func (k EventKind) Kinds() []EventKind {
	res := []EventKind{}
	for _, kind := range _kinds {
		if k&kind.kind != 0 {
			res = append(res, kind.kind)
		}
	}
	return res
}

func (k EventKind) String() string {
	parts := []string{}
	for _, kind := range _kinds {
		if k&kind.kind != 0 {
			parts = append(parts, kind.name)
		}
	}
	if undefined := k.Undefined(); undefined != 0 {
		parts = append(parts, fmt.Sprintf("UNDEFINED(%#x)", uint32(undefined)))
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Op translates mask into fsnotify vocabulary. Kinds without fsnotify
// counterpart (access, open, close-nowrite, bookkeeping ones) map to no op.
func (k EventKind) Op() fsnotify.Op {
	var op fsnotify.Op
	if k.Has(Create | MovedTo) {
		op |= fsnotify.Create
	}
	if k.Has(Modify | CloseWrite) {
		op |= fsnotify.Write
	}
	if k.Has(Delete | DeleteSelf) {
		op |= fsnotify.Remove
	}
	if k.Has(MovedFrom | MoveSelf) {
		op |= fsnotify.Rename
	}
	if k.Has(Attrib) {
		op |= fsnotify.Chmod
	}
	return op
}

// ParseKind parses kind name, case insensitive, with or without IN_ prefix.
// Composites CLOSE, MOVE and ALL are accepted.
func ParseKind(name string) (EventKind, error) {
	normalized := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "IN_")
	if kind, ok := _composites[normalized]; ok {
		return kind, nil
	}
	for _, kind := range _kinds {
		if kind.name == normalized {
			return kind.kind, nil
		}
	}
	return 0, errors.Newf("unknown event kind %q", name)
}

// ParseKinds parses list of kind names into one mask.
func ParseKinds(names ...string) (EventKind, error) {
	var res EventKind
	for _, name := range names {
		kind, err := ParseKind(name)
		if err != nil {
			return 0, err
		}
		res |= kind
	}
	return res, nil
}

// KindNames lists names ParseKind accepts, lowercase, single kinds first.
func KindNames() []string {
	res := make([]string, 0, len(_kinds)+len(_composites))
	for _, kind := range _kinds {
		res = append(res, strings.ToLower(kind.name))
	}
	for _, name := range slices.Sorted(maps.Keys(_composites)) {
		res = append(res, strings.ToLower(name))
	}
	return res
}
