// Package inotifytest provides in-memory inotify.Kernel for tests.
package inotifytest

import (
	"slices"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rprtr258/procwatch/internal/inotify"
)

const _fd = 42

type read struct {
	data []byte
	err  error
}

// Kernel is fake inotify facility. Reads are scripted with Push and PushErr,
// watches are recorded and can be failed per path.
type Kernel struct {
	mu sync.Mutex

	// InitErr is returned by Init if set.
	InitErr error
	// WatchErrs maps path to error AddWatch returns for it.
	WatchErrs map[string]error

	flags   int
	nextWD  int
	watches map[string]int
	order   []string
	reads   []read
	nReads  int
	closed  bool
	wakeup  chan struct{}
}

var _ inotify.Kernel = (*Kernel)(nil)

func New() *Kernel {
	return &Kernel{
		mu:        sync.Mutex{},
		InitErr:   nil,
		WatchErrs: map[string]error{},
		flags:     0,
		nextWD:    1,
		watches:   map[string]int{},
		order:     nil,
		reads:     nil,
		nReads:    0,
		closed:    false,
		wakeup:    make(chan struct{}, 1),
	}
}

func (k *Kernel) Init(flags int) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.InitErr != nil {
		return -1, k.InitErr
	}
	k.flags = flags
	return _fd, nil
}

func (k *Kernel) AddWatch(fd int, path string, _ uint32) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if fd != _fd || k.closed {
		return -1, unix.EBADF
	}
	if err, ok := k.WatchErrs[path]; ok {
		return -1, err
	}
	if wd, ok := k.watches[path]; ok {
		return wd, nil
	}

	wd := k.nextWD
	k.nextWD++
	k.watches[path] = wd
	k.order = append(k.order, path)
	return wd, nil
}

func (k *Kernel) Read(fd int, buf []byte, timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		k.mu.Lock()
		if fd != _fd || k.closed {
			k.mu.Unlock()
			return -1, unix.EBADF
		}
		if len(k.reads) > 0 {
			r := k.reads[0]
			k.reads = k.reads[1:]
			k.nReads++
			k.mu.Unlock()

			if r.err != nil {
				return -1, r.err
			}
			return copy(buf, r.data), nil
		}
		k.mu.Unlock()

		select {
		case <-k.wakeup:
		case <-timer.C:
			return -1, unix.EAGAIN
		}
	}
}

func (k *Kernel) Close(fd int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if fd != _fd || k.closed {
		return unix.EBADF
	}
	k.closed = true
	return nil
}

func (k *Kernel) push(r read) {
	k.mu.Lock()
	k.reads = append(k.reads, r)
	k.mu.Unlock()

	select {
	case k.wakeup <- struct{}{}:
	default:
	}
}

// Push schedules read returning data. Data must fit read buffer.
func (k *Kernel) Push(data ...[]byte) {
	k.push(read{data: slices.Concat(data...), err: nil})
}

// PushErr schedules read failing with err.
func (k *Kernel) PushErr(err error) {
	k.push(read{data: nil, err: err})
}

// Flags returns flags Init was called with.
func (k *Kernel) Flags() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.flags
}

// Watched returns paths with active watches in registration order.
func (k *Kernel) Watched() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return slices.Clone(k.order)
}

// WatchID returns watch id of path, zero if path is not watched.
func (k *Kernel) WatchID(path string) int32 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return int32(k.watches[path]) //nolint:gosec // small ids
}

// Reads returns number of scripted reads consumed.
func (k *Kernel) Reads() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.nReads
}

func (k *Kernel) Closed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}
