package inotify

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/rprtr258/procwatch/internal/errors"
)

// ErrorKind classifies failures of kernel facility.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// OpenFailed - inotify instance could not be created.
	OpenFailed
	// RegisterFailed - watch could not be added for path.
	RegisterFailed
	// ReadFailed - read from inotify descriptor failed with something other
	// than "no data yet".
	ReadFailed
	// LimitUnavailable - watch count ceiling could not be read or parsed.
	LimitUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case OpenFailed:
		return "open failed"
	case RegisterFailed:
		return "register failed"
	case ReadFailed:
		return "read failed"
	case LimitUnavailable:
		return "limit unavailable"
	default:
		return "unknown"
	}
}

// ErrWouldBlock is returned by reads when there is nothing to read yet. It is
// not a failure, caller should just try again.
var ErrWouldBlock = errors.New("inotify: no events available")

// Error is failure of kernel facility call.
type Error struct {
	Kind ErrorKind
	// Path is watched path or limit file, if any.
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("inotify %s, path=%q: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("inotify %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errno returns OS error code behind error, if it was a syscall failure.
func (e *Error) Errno() (unix.Errno, bool) {
	var errno unix.Errno
	if errors.As(e.Err, &errno) {
		return errno, true
	}
	return 0, false
}

// KindOf returns kind of inotify error in err chain, KindUnknown otherwise.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
