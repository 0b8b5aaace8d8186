package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shoenig/test"
	"github.com/shoenig/test/must"
	"github.com/shoenig/test/wait"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"github.com/rprtr258/procwatch/internal/core"
	"github.com/rprtr258/procwatch/internal/errors"
	"github.com/rprtr258/procwatch/internal/inotify"
	"github.com/rprtr258/procwatch/internal/inotify/inotifytest"
	"github.com/rprtr258/procwatch/internal/scanner"
)

func useHost(tb testing.TB, limit string) (afero.Fs, core.Config) {
	tb.Helper()

	fs := afero.NewMemMapFs()
	for _, dir := range []string{"/w/a/b", "/w/c", "/proc/1"} {
		must.NoError(tb, fs.MkdirAll(dir, 0o755))
	}
	must.NoError(tb, afero.WriteFile(fs, "/proc/1/status", []byte("PPid:\t0\nUid:\t0\t0\t0\t0\n"), 0o644))
	if limit != "" {
		must.NoError(tb, afero.WriteFile(fs, inotify.WatchLimitPath, []byte(limit), 0o644))
	}

	config := core.DefaultConfig
	config.Roots = []string{"/w", "/missing"}
	config.PollTimeout = 5 * time.Millisecond
	return fs, config
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	test.EqOp(t, 0, ExitCode(nil))
	test.EqOp(t, ExitFailure, ExitCode(errors.New("boom")))
	test.EqOp(t, ExitOpenFailed, ExitCode(&inotify.Error{Kind: inotify.OpenFailed, Path: "", Err: unix.EMFILE}))
	test.EqOp(t, ExitLimitUnavailable, ExitCode(&inotify.Error{Kind: inotify.LimitUnavailable, Path: "/limit", Err: unix.ENOENT}))
	test.EqOp(t, ExitInvalidConfig, ExitCode(core.Config{}.Validate())) //nolint:exhaustruct // invalid on purpose
}

func TestRunWatch(t *testing.T) {
	t.Parallel()

	fs, config := useHost(t, "100\n")
	kernel := inotifytest.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runWatch(ctx, fs, kernel, config)
	}()

	must.Wait(t, wait.InitialSuccess(
		wait.BoolFunc(func() bool {
			return len(kernel.Watched()) == 4
		}),
		wait.Timeout(5*time.Second),
		wait.Gap(time.Millisecond),
	))
	test.Eq(t, []string{"/w", "/w/a", "/w/a/b", "/w/c"}, kernel.Watched())

	cancel()
	must.NoError(t, <-done)
	test.True(t, kernel.Closed())
}

func TestRunWatchFatal(t *testing.T) {
	t.Parallel()

	fs, config := useHost(t, "")
	err := runWatch(context.Background(), fs, inotifytest.New(), config)
	test.EqOp(t, ExitLimitUnavailable, ExitCode(err))

	fs, config = useHost(t, "100")
	kernel := inotifytest.New()
	kernel.InitErr = unix.EMFILE
	err = runWatch(context.Background(), fs, kernel, config)
	test.EqOp(t, ExitOpenFailed, ExitCode(err))
}

func TestPlan(t *testing.T) {
	t.Parallel()

	fs, config := useHost(t, "2")

	p := makePlan(fs, config)
	test.Eq(t, []string{"/w", "/w/a", "/w/a/b", "/w/c"}, p.WatchSet.Paths())
	must.NotNil(t, p.Limit)
	test.EqOp(t, uint64(2), *p.Limit)
	test.Eq(t, []string{"/w/a/b", "/w/c"}, p.Truncated)
	test.Eq(t, []string{"/missing"}, p.MissingRoots)

	var out bytes.Buffer
	must.NoError(t, p.print(&out, _formatList))
	test.EqOp(t, "/w\n/w/a\n/w/a/b\n/w/c\n", out.String())

	out.Reset()
	must.NoError(t, p.print(&out, _formatJSON))
	test.StrContains(t, out.String(), `"truncated": [`)
	test.StrContains(t, out.String(), `"path": "/w/a/b"`)
}

func TestPlanUnknownLimit(t *testing.T) {
	t.Parallel()

	fs, config := useHost(t, "")
	p := makePlan(fs, config)
	test.Nil(t, p.Limit)
	test.SliceEmpty(t, p.Truncated)
}

func TestPrintProcs(t *testing.T) {
	t.Parallel()

	procs := []scanner.Process{{PID: 1, PPID: 0, EUID: 0, User: "root", Cmdline: "init", Started: time.Time{}}}

	var out bytes.Buffer
	must.NoError(t, printProcs(&out, procs, _formatTable))
	test.StrContains(t, out.String(), "init")
	test.EqOp(t, 5, strings.Count(out.String(), "\n"))

	test.ErrorContains(t, checkFormat("yaml"), `unknown format "yaml"`)
}
