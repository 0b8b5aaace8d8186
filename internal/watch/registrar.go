// Package watch registers inotify watches for a watch set and runs the loop
// forwarding kernel events to a consumer.
package watch

import (
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/rprtr258/procwatch/internal/errors"
	"github.com/rprtr258/procwatch/internal/inotify"
	"github.com/rprtr258/procwatch/internal/walker"
)

// Mask every directory is watched with.
const Mask = inotify.AllEvents | inotify.OnlyDir

type FailedPath struct {
	Path string
	Err  error
}

// Registration is result of registering watch set. Handle is owned by whoever
// holds Registration, normally it is moved into Loop right away.
type Registration struct {
	Handle *inotify.Handle
	// Active is number of distinct watches kernel holds for us.
	Active int
	// Paths maps watch id to directory it watches.
	Paths map[int32]string
	// Failed paths could not be watched, others were.
	Failed []FailedPath
	// Truncated paths were not tried since watch limit was reached.
	Truncated []string
}

// Log reports degraded outcome of registration, if any.
func (r Registration) Log() {
	log.Info().
		Int("active", r.Active).
		Msg("watches registered")

	if len(r.Failed) > 0 {
		first := r.Failed[0]
		log.Warn().
			Int("count", len(r.Failed)).
			Str("first", first.Path).
			Err(first.Err).
			Msg("some directories could not be watched")
	}
	if len(r.Truncated) > 0 {
		log.Warn().
			Int("count", len(r.Truncated)).
			Strs("first", r.Truncated[:min(len(r.Truncated), 5)]).
			Msg("watch limit reached, directories left unwatched")
	}
}

// Register opens inotify instance and adds watch for each path of set in
// order, until limit watches are active. Only failure to open instance is
// returned as error, failures of single paths are collected in Registration.
func Register(kernel inotify.Kernel, set walker.WatchSet, limit uint64) (Registration, error) {
	handle, err := inotify.NewHandle(kernel)
	if err != nil {
		return Registration{}, errors.Wrap(err, "open inotify")
	}

	reg := Registration{
		Handle:    handle,
		Active:    0,
		Paths:     make(map[int32]string, len(set)),
		Failed:    nil,
		Truncated: nil,
	}
	for i, dir := range set {
		if uint64(reg.Active) >= limit {
			reg.Truncated = set[i:].Paths()
			break
		}

		wd, errAdd := handle.AddWatch(dir.Path, Mask)
		if errAdd != nil {
			var e *inotify.Error
			if errors.As(errAdd, &e) {
				// watches taken by other processes count against the same per-user limit
				if errno, ok := e.Errno(); ok && errno == unix.ENOSPC {
					reg.Truncated = set[i:].Paths()
					break
				}
			}

			reg.Failed = append(reg.Failed, FailedPath{
				Path: dir.Path,
				Err:  errAdd,
			})
			continue
		}

		if prev, ok := reg.Paths[wd]; ok {
			// same inode reached by other path, e.g. bind mount
			log.Debug().
				Int32("wd", wd).
				Str("path", dir.Path).
				Str("watched_as", prev).
				Msg("directory already watched")
			continue
		}

		reg.Paths[wd] = dir.Path
		reg.Active++
	}

	return reg, nil
}
