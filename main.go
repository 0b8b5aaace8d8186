package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/rprtr258/procwatch/internal/cli"
	"github.com/rprtr258/procwatch/internal/errors"
	"github.com/rprtr258/procwatch/internal/inotify"
)

func main() {
	errRun := cli.Run(os.Args)
	if errRun == nil {
		return
	}

	code := cli.ExitCode(errRun)
	log.Error().
		Func(func(e *zerolog.Event) {
			var errInotify *inotify.Error
			if !errors.As(errRun, &errInotify) {
				return
			}

			e.Stringer("kind", errInotify.Kind)
			if errno, ok := errInotify.Errno(); ok {
				e.Int("errno", int(errno)).Str("errno_name", unix.ErrnoName(errno))
			}
		}).
		Err(errRun).
		Int("exit_code", code).
		Msg("procwatch exited abnormally")
	os.Exit(code)
}
