package watch

import (
	"testing"

	"github.com/shoenig/test"
	"github.com/shoenig/test/must"
	"golang.org/x/sys/unix"

	"github.com/rprtr258/procwatch/internal/inotify"
	"github.com/rprtr258/procwatch/internal/inotify/inotifytest"
	"github.com/rprtr258/procwatch/internal/walker"
)

func useSet(tb testing.TB, paths ...string) walker.WatchSet {
	tb.Helper()

	set := make(walker.WatchSet, len(paths))
	for i, path := range paths {
		set[i] = walker.Path{Path: path, Depth: 0}
	}
	return set
}

func TestRegisterAll(t *testing.T) {
	t.Parallel()

	kernel := inotifytest.New()
	reg, err := Register(kernel, useSet(t, "/a", "/a/b", "/c"), 100)
	must.NoError(t, err)
	defer reg.Handle.Close()

	test.EqOp(t, 3, reg.Active)
	test.Eq(t, []string{"/a", "/a/b", "/c"}, kernel.Watched())
	test.Eq(t, map[int32]string{
		kernel.WatchID("/a"):   "/a",
		kernel.WatchID("/a/b"): "/a/b",
		kernel.WatchID("/c"):   "/c",
	}, reg.Paths)
	test.SliceEmpty(t, reg.Failed)
	test.SliceEmpty(t, reg.Truncated)
}

func TestRegisterLimit(t *testing.T) {
	t.Parallel()

	kernel := inotifytest.New()
	reg, err := Register(kernel, useSet(t, "/a", "/b", "/c", "/d", "/e"), 3)
	must.NoError(t, err)
	defer reg.Handle.Close()

	test.EqOp(t, 3, reg.Active)
	test.Eq(t, []string{"/a", "/b", "/c"}, kernel.Watched())
	test.MapLen(t, 3, reg.Paths)
	test.Eq(t, []string{"/d", "/e"}, reg.Truncated)
}

func TestRegisterZeroLimit(t *testing.T) {
	t.Parallel()

	kernel := inotifytest.New()
	reg, err := Register(kernel, useSet(t, "/a", "/b"), 0)
	must.NoError(t, err)
	defer reg.Handle.Close()

	test.EqOp(t, 0, reg.Active)
	test.SliceEmpty(t, kernel.Watched())
	test.Eq(t, []string{"/a", "/b"}, reg.Truncated)
}

func TestRegisterFailedPathContinues(t *testing.T) {
	t.Parallel()

	kernel := inotifytest.New()
	kernel.WatchErrs["/b"] = unix.EACCES

	reg, err := Register(kernel, useSet(t, "/a", "/b", "/c"), 2)
	must.NoError(t, err)
	defer reg.Handle.Close()

	// failed path does not take place of active watch
	test.EqOp(t, 2, reg.Active)
	test.Eq(t, []string{"/a", "/c"}, kernel.Watched())
	must.SliceLen(t, 1, reg.Failed)
	test.EqOp(t, "/b", reg.Failed[0].Path)
	test.EqOp(t, inotify.RegisterFailed, inotify.KindOf(reg.Failed[0].Err))
	test.ErrorIs(t, reg.Failed[0].Err, unix.EACCES)
	test.SliceEmpty(t, reg.Truncated)
}

func TestRegisterNoSpaceTruncates(t *testing.T) {
	t.Parallel()

	kernel := inotifytest.New()
	kernel.WatchErrs["/b"] = unix.ENOSPC

	reg, err := Register(kernel, useSet(t, "/a", "/b", "/c"), 100)
	must.NoError(t, err)
	defer reg.Handle.Close()

	test.EqOp(t, 1, reg.Active)
	test.SliceEmpty(t, reg.Failed)
	test.Eq(t, []string{"/b", "/c"}, reg.Truncated)
}

func TestRegisterOpenFailed(t *testing.T) {
	t.Parallel()

	kernel := inotifytest.New()
	kernel.InitErr = unix.EMFILE

	_, err := Register(kernel, useSet(t, "/a"), 100)
	test.EqOp(t, inotify.OpenFailed, inotify.KindOf(err))
	test.ErrorIs(t, err, unix.EMFILE)
	test.SliceEmpty(t, kernel.Watched())
}

func TestRegisterSameWatchTwice(t *testing.T) {
	t.Parallel()

	kernel := inotifytest.New()
	// duplicate path in set makes fake kernel return same wd, like bind mount does
	reg, err := Register(kernel, useSet(t, "/a", "/a", "/b"), 100)
	must.NoError(t, err)
	defer reg.Handle.Close()

	test.EqOp(t, 2, reg.Active)
	test.MapLen(t, 2, reg.Paths)
	test.EqOp(t, "/a", reg.Paths[kernel.WatchID("/a")])
}
