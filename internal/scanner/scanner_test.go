package scanner

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rprtr258/fun"
	"github.com/shoenig/test"
	"github.com/shoenig/test/must"
	"github.com/spf13/afero"

	"github.com/rprtr258/procwatch/internal/inotify"
	"github.com/rprtr258/procwatch/internal/watch"
)

type fakeProc struct {
	pid     int
	ppid    int
	uids    string // real, effective, saved, fs
	cmdline string // NUL separated, absent if empty
}

func status(p fakeProc) string {
	return "Name:\tfake\n" +
		"State:\tS (sleeping)\n" +
		"PPid:\t" + strconv.Itoa(p.ppid) + "\n" +
		"Uid:\t" + p.uids + "\n" +
		"Gid:\t0\t0\t0\t0\n"
}

func useProcFs(tb testing.TB, procs ...fakeProc) afero.Fs {
	tb.Helper()

	fs := afero.NewMemMapFs()
	must.NoError(tb, fs.MkdirAll("/proc/sys/fs", 0o755))
	must.NoError(tb, afero.WriteFile(fs, "/proc/uptime", []byte("1.0 1.0"), 0o644))
	for _, p := range procs {
		addProc(tb, fs, p)
	}
	return fs
}

func addProc(tb testing.TB, fs afero.Fs, p fakeProc) {
	tb.Helper()

	dir := filepath.Join("/proc", strconv.Itoa(p.pid))
	must.NoError(tb, fs.MkdirAll(dir, 0o755))
	must.NoError(tb, afero.WriteFile(fs, filepath.Join(dir, "status"), []byte(status(p)), 0o644))
	if p.cmdline != "" {
		must.NoError(tb, afero.WriteFile(fs, filepath.Join(dir, "cmdline"), []byte(p.cmdline), 0o644))
	}
}

func pids(procs []Process) []int32 {
	return fun.Map[int32](func(p Process) int32 { return p.PID }, procs...)
}

func TestRefreshReportsNewProcesses(t *testing.T) {
	t.Parallel()

	fs := useProcFs(t,
		fakeProc{pid: 10, ppid: 1, uids: "1000\t1000\t1000\t1000", cmdline: "sleep\x0010\x00"},
		fakeProc{pid: 2, ppid: 0, uids: "0\t0\t0\t0", cmdline: "init\x00"},
	)
	s := New(fs, "/proc")

	first, err := s.Refresh()
	must.NoError(t, err)
	test.Eq(t, []int32{2, 10}, pids(first))
	test.EqOp(t, "sleep 10", first[1].Cmdline)
	test.EqOp(t, int32(1), first[1].PPID)

	again, err := s.Refresh()
	must.NoError(t, err)
	test.SliceEmpty(t, again)

	addProc(t, fs, fakeProc{pid: 7, ppid: 2, uids: "0\t0\t0\t0", cmdline: "sh\x00-c\x00true\x00"})
	next, err := s.Refresh()
	must.NoError(t, err)
	test.Eq(t, []int32{7}, pids(next))
	test.Eq(t, []int32{2, 7, 10}, pids(s.Snapshot()))
}

func TestRefreshEffectiveUID(t *testing.T) {
	t.Parallel()

	// setuid program: real 1000, effective 0, saved 0
	fs := useProcFs(t, fakeProc{pid: 5, ppid: 1, uids: "1000\t0\t0\t1000", cmdline: "sudo\x00"})

	procs, err := New(fs, "/proc").Refresh()
	must.NoError(t, err)
	must.SliceLen(t, 1, procs)
	test.EqOp(t, uint32(0), procs[0].EUID)
	test.EqOp(t, "0", procs[0].User)
}

func TestRefreshUnreadableCmdline(t *testing.T) {
	t.Parallel()

	fs := useProcFs(t, fakeProc{pid: 3, ppid: 2, uids: "0\t0\t0\t0", cmdline: ""})

	procs, err := New(fs, "/proc").Refresh()
	must.NoError(t, err)
	must.SliceLen(t, 1, procs)
	test.EqOp(t, UnknownCmdline, procs[0].Cmdline)
}

func TestRefreshForgetsExited(t *testing.T) {
	t.Parallel()

	fs := useProcFs(t, fakeProc{pid: 4, ppid: 1, uids: "0\t0\t0\t0", cmdline: "old\x00"})
	s := New(fs, "/proc")

	_, err := s.Refresh()
	must.NoError(t, err)

	must.NoError(t, fs.RemoveAll("/proc/4"))
	gone, err := s.Refresh()
	must.NoError(t, err)
	test.SliceEmpty(t, gone)
	test.SliceEmpty(t, s.Snapshot())

	// pid reused by other process
	addProc(t, fs, fakeProc{pid: 4, ppid: 1, uids: "0\t0\t0\t0", cmdline: "new\x00"})
	reused, err := s.Refresh()
	must.NoError(t, err)
	must.SliceLen(t, 1, reused)
	test.EqOp(t, "new", reused[0].Cmdline)
}

func TestRefreshSkipsBrokenStatus(t *testing.T) {
	t.Parallel()

	fs := useProcFs(t, fakeProc{pid: 8, ppid: 1, uids: "0\t0\t0\t0", cmdline: "ok\x00"})
	must.NoError(t, fs.MkdirAll("/proc/9", 0o755))
	must.NoError(t, afero.WriteFile(fs, "/proc/9/status", []byte("Name:\tbroken\n"), 0o644))
	must.NoError(t, fs.MkdirAll("/proc/self", 0o755))

	procs, err := New(fs, "/proc").Refresh()
	must.NoError(t, err)
	test.Eq(t, []int32{8}, pids(procs))
}

func TestRefreshLookup(t *testing.T) {
	t.Parallel()

	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	fs := useProcFs(t, fakeProc{pid: 11, ppid: 1, uids: "1000\t1000\t1000\t1000", cmdline: "vim\x00"})
	s := New(fs, "/proc", WithLookup(func(pid int32) (Details, bool) {
		return Details{User: "alice", Started: started}, pid == 11
	}))

	procs, err := s.Refresh()
	must.NoError(t, err)
	must.SliceLen(t, 1, procs)
	test.EqOp(t, "alice", procs[0].User)
	test.True(t, started.Equal(procs[0].Started))
}

func TestRefreshNoProcDir(t *testing.T) {
	t.Parallel()

	_, err := New(afero.NewMemMapFs(), "/nope").Refresh()
	test.ErrorContains(t, err, "read /nope")
}

func TestPrinterLine(t *testing.T) {
	t.Parallel()

	p := NewPrinter(nil, false)
	test.EqOp(t,
		"PID: 1234   | PPID: 1      | UID: 1000 (alice) | CMD: vim main.go",
		p.Line(Process{PID: 1234, PPID: 1, EUID: 1000, User: "alice", Cmdline: "vim main.go", Started: time.Time{}}),
	)
	test.EqOp(t,
		"PID: 1      | PPID: 0      | UID: 0 | CMD: ???",
		p.Line(Process{PID: 1, PPID: 0, EUID: 0, User: "0", Cmdline: UnknownCmdline, Started: time.Time{}}),
	)
}

func TestMatches(t *testing.T) {
	t.Parallel()

	opts := ConsumeOptions{Kinds: inotify.Create | inotify.Delete, Rescan: "", Print: nil}
	event := func(mask inotify.EventKind) watch.Signal {
		return watch.Signal{Dir: "/a", Event: inotify.Event{WatchID: 1, Mask: mask, Cookie: 0, Name: fun.Invalid[string]()}, Coalesced: 0}
	}

	test.True(t, opts.Matches(event(inotify.Create|inotify.IsDir)))
	test.False(t, opts.Matches(event(inotify.Modify)))
	test.True(t, opts.Matches(event(inotify.QueueOverflow)))
	test.True(t, opts.Matches(watch.Signal{Dir: "", Event: inotify.Event{}, Coalesced: 2})) //nolint:exhaustruct // wake
	test.True(t, ConsumeOptions{}.Matches(event(inotify.Access)))                           //nolint:exhaustruct // any kind
}

func TestConsume(t *testing.T) {
	t.Parallel()

	fs := useProcFs(t, fakeProc{pid: 1, ppid: 0, uids: "0\t0\t0\t0", cmdline: "init\x00"})
	s := New(fs, "/proc")
	_, err := s.Refresh()
	must.NoError(t, err)

	var out bytes.Buffer
	printer := NewPrinter(&out, false)
	signals := make(chan watch.Signal)
	done := make(chan error, 1)
	go func() {
		done <- Consume(context.Background(), signals, s, ConsumeOptions{
			Kinds:  inotify.Create,
			Rescan: "",
			Print:  printer.Print,
		})
	}()

	addProc(t, fs, fakeProc{pid: 20, ppid: 1, uids: "0\t0\t0\t0", cmdline: "cron\x00"})
	// filtered out, process is not noticed yet
	signals <- watch.Signal{Dir: "/tmp", Event: inotify.Event{WatchID: 1, Mask: inotify.Modify, Cookie: 0, Name: fun.Valid("f")}, Coalesced: 0}
	signals <- watch.Signal{Dir: "/tmp", Event: inotify.Event{WatchID: 1, Mask: inotify.Create, Cookie: 0, Name: fun.Valid("f")}, Coalesced: 0}
	close(signals)
	must.NoError(t, <-done)

	test.EqOp(t, "PID: 20     | PPID: 1      | UID: 0 | CMD: cron\n", out.String())
}

func TestConsumeInvalidRescan(t *testing.T) {
	t.Parallel()

	err := Consume(context.Background(), nil, New(afero.NewMemMapFs(), "/proc"), ConsumeOptions{Kinds: 0, Rescan: "every tuesday", Print: nil})
	test.ErrorContains(t, err, "invalid rescan")
	test.NoError(t, ValidateRescan("*/5 * * * *"))
}
