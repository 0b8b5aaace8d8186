// Package inotify wraps linux inotify facility: descriptor handle, watch
// registration, reading and decoding of event records.
package inotify

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/rprtr258/procwatch/internal/errors"
)

// Kernel is set of raw inotify calls. Errors returned are plain syscall errors,
// Handle turns them into *Error.
type Kernel interface {
	Init(flags int) (int, error)
	AddWatch(fd int, path string, mask uint32) (int, error)
	// Read waits up to timeout for descriptor to become readable and reads
	// into buf. Returns unix.EAGAIN if nothing arrived.
	Read(fd int, buf []byte, timeout time.Duration) (int, error)
	Close(fd int) error
}

// Handle is open inotify instance. It has single owner: whoever holds it reads
// and closes it, no other goroutine may touch it.
type Handle struct {
	kernel Kernel
	fd     int
	closed bool
}

// NewHandle creates inotify instance in close-on-exec, non-blocking mode.
func NewHandle(kernel Kernel) (*Handle, error) {
	fd, err := kernel.Init(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, &Error{Kind: OpenFailed, Path: "", Err: err}
	}
	if fd < 0 {
		return nil, &Error{Kind: OpenFailed, Path: "", Err: errors.Newf("invalid descriptor %d", fd)}
	}

	return &Handle{
		kernel: kernel,
		fd:     fd,
		closed: false,
	}, nil
}

func (h *Handle) FD() int {
	return h.fd
}

// AddWatch registers watch on path and returns watch id.
func (h *Handle) AddWatch(path string, mask EventKind) (int32, error) {
	wd, err := h.kernel.AddWatch(h.fd, path, uint32(mask))
	if err != nil {
		return 0, &Error{Kind: RegisterFailed, Path: path, Err: err}
	}
	if wd < 0 {
		return 0, &Error{Kind: RegisterFailed, Path: path, Err: errors.Newf("invalid watch id %d", wd)}
	}

	return int32(wd), nil //nolint:gosec // kernel wd fits int32
}

// Read reads records into buf waiting at most timeout. When nothing is there
// yet, or the wait was interrupted, ErrWouldBlock is returned.
func (h *Handle) Read(buf []byte, timeout time.Duration) (int, error) {
	n, err := h.kernel.Read(h.fd, buf, timeout)
	switch {
	case err == nil && n > 0:
		return n, nil
	case err == nil, errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return 0, ErrWouldBlock
	default:
		return 0, &Error{Kind: ReadFailed, Path: "", Err: err}
	}
}

// Close closes descriptor, removing all watches. Repeated calls are no-op.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}

	h.closed = true
	if err := h.kernel.Close(h.fd); err != nil {
		return errors.Wrapf(err, "close inotify fd=%d", h.fd)
	}
	return nil
}
