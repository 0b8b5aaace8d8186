//go:build linux

package inotify

import (
	"time"

	"golang.org/x/sys/unix"
)

// Sys is Kernel backed by real syscalls.
type Sys struct{}

var _ Kernel = Sys{}

func (Sys) Init(flags int) (int, error) {
	return unix.InotifyInit1(flags)
}

func (Sys) AddWatch(fd int, path string, mask uint32) (int, error) {
	return unix.InotifyAddWatch(fd, path, mask)
}

func (Sys) Read(fd int, buf []byte, timeout time.Duration) (int, error) {
	fds := []unix.PollFd{{
		Fd:      int32(fd), //nolint:gosec // fd fits int32
		Events:  unix.POLLIN,
		Revents: 0,
	}}
	ready, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		return 0, err
	}
	if ready == 0 {
		return 0, unix.EAGAIN
	}

	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (Sys) Close(fd int) error {
	return unix.Close(fd)
}
