package inotify

import (
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/rprtr258/procwatch/internal/errors"
)

// WatchLimitPath is where kernel exposes per-user watch count ceiling.
const WatchLimitPath = "/proc/sys/fs/inotify/max_user_watches"

// ReadWatchLimit reads watch count ceiling from file at path.
func ReadWatchLimit(fsys afero.Fs, path string) (uint64, error) {
	data, errRead := afero.ReadFile(fsys, path)
	if errRead != nil {
		return 0, &Error{Kind: LimitUnavailable, Path: path, Err: errRead}
	}

	limit, errParse := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if errParse != nil {
		return 0, &Error{Kind: LimitUnavailable, Path: path, Err: errors.Wrap(errParse, "parse limit")}
	}

	return limit, nil
}
