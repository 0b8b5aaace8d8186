// Package scanner keeps track of running processes by reading procfs and
// reports processes which appeared since last refresh.
package scanner

import (
	"bufio"
	"bytes"
	"cmp"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/afero"

	"github.com/rprtr258/procwatch/internal/errors"
)

// DefaultProcDir is where procfs is mounted.
const DefaultProcDir = "/proc"

// UnknownCmdline is shown for processes whose command line could not be read.
const UnknownCmdline = "???"

type Process struct {
	PID  int32 `json:"pid"`
	PPID int32 `json:"ppid"`
	// EUID is effective user id.
	EUID    uint32    `json:"euid"`
	User    string    `json:"user"`
	Cmdline string    `json:"cmdline"`
	Started time.Time `json:"started"`
}

// Details are what can be learned about live process besides procfs files.
type Details struct {
	User    string
	Started time.Time
}

// Lookup finds details of live process, false if there is no such process.
type Lookup func(pid int32) (Details, bool)

// GopsutilLookup looks process up in host procfs.
func GopsutilLookup(pid int32) (Details, bool) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return Details{}, false //nolint:exhaustruct // not found
	}

	user, _ := p.Username()
	var started time.Time
	if createdMs, errCreated := p.CreateTime(); errCreated == nil {
		started = time.UnixMilli(createdMs)
	}
	return Details{
		User:    user,
		Started: started,
	}, true
}

func noLookup(int32) (Details, bool) {
	return Details{}, false //nolint:exhaustruct // nothing known
}

type Option func(*Scanner)

// WithLookup sets how processes are enriched, nil disables enrichment.
func WithLookup(lookup Lookup) Option {
	return func(s *Scanner) {
		if lookup == nil {
			lookup = noLookup
		}
		s.lookup = lookup
	}
}

// Scanner remembers processes seen so far. It is not safe for concurrent use,
// single consumer owns it.
type Scanner struct {
	fs      afero.Fs
	procDir string
	lookup  Lookup
	known   map[int32]Process
}

// New creates scanner over procDir. Processes are enriched with gopsutil only
// when procDir is host procfs, since gopsutil always reads that one.
func New(fs afero.Fs, procDir string, opts ...Option) *Scanner {
	procDir = filepath.Clean(cmp.Or(procDir, DefaultProcDir))

	s := &Scanner{
		fs:      fs,
		procDir: procDir,
		lookup:  noLookup,
		known:   map[int32]Process{},
	}
	if _, isOs := fs.(*afero.OsFs); isOs && procDir == DefaultProcDir {
		s.lookup = GopsutilLookup
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// pids lists numeric entries of procDir.
func (s *Scanner) pids() ([]int32, error) {
	entries, err := afero.ReadDir(s.fs, s.procDir)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", s.procDir)
	}

	pids := make([]int32, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pid, err := strconv.ParseInt(entry.Name(), 10, 32)
		if err != nil || pid <= 0 {
			continue
		}

		pids = append(pids, int32(pid))
	}
	return pids, nil
}

// parseStatus extracts parent pid and effective uid from status file.
func parseStatus(status []byte) (ppid int32, euid uint32, err error) {
	var foundUID bool
	sc := bufio.NewScanner(bytes.NewReader(status))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}

		fields := strings.Fields(value)
		switch key {
		case "PPid":
			if len(fields) < 1 {
				return 0, 0, errors.New("empty PPid line")
			}

			v, errParse := strconv.ParseInt(fields[0], 10, 32)
			if errParse != nil {
				return 0, 0, errors.Wrap(errParse, "parse PPid")
			}
			ppid = int32(v)
		case "Uid":
			// real, effective, saved set, filesystem
			if len(fields) < 2 {
				return 0, 0, errors.Newf("Uid line has %d fields", len(fields))
			}

			v, errParse := strconv.ParseUint(fields[1], 10, 32)
			if errParse != nil {
				return 0, 0, errors.Wrap(errParse, "parse Uid")
			}
			euid, foundUID = uint32(v), true
		}
	}
	if !foundUID {
		return 0, 0, errors.New("no Uid line")
	}
	return ppid, euid, nil
}

// parseCmdline turns NUL separated arguments into single line.
func parseCmdline(cmdline []byte) string {
	s := strings.ReplaceAll(string(cmdline), "\x00", " ")
	s = strings.NewReplacer("\n", "", "\r", "").Replace(s)
	return strings.TrimSpace(s)
}

// read reads process info, false if process is gone already.
func (s *Scanner) read(pid int32) (Process, bool) {
	dir := filepath.Join(s.procDir, strconv.Itoa(int(pid)))

	status, err := afero.ReadFile(s.fs, filepath.Join(dir, "status"))
	if err != nil {
		return Process{}, false //nolint:exhaustruct // exited
	}

	ppid, euid, err := parseStatus(status)
	if err != nil {
		return Process{}, false //nolint:exhaustruct // not a process
	}

	cmdline := UnknownCmdline
	if raw, errCmdline := afero.ReadFile(s.fs, filepath.Join(dir, "cmdline")); errCmdline == nil {
		// kernel threads have empty cmdline
		cmdline = cmp.Or(parseCmdline(raw), UnknownCmdline)
	}

	p := Process{
		PID:     pid,
		PPID:    ppid,
		EUID:    euid,
		User:    strconv.FormatUint(uint64(euid), 10),
		Cmdline: cmdline,
		Started: time.Time{},
	}
	if details, ok := s.lookup(pid); ok {
		p.User = cmp.Or(details.User, p.User)
		p.Started = details.Started
	}
	return p, true
}

// Refresh rescans process table and returns processes not seen before, sorted
// by pid. Exited processes are forgotten, so reused pid is reported again.
func (s *Scanner) Refresh() ([]Process, error) {
	pids, err := s.pids()
	if err != nil {
		return nil, err
	}

	alive := make(map[int32]struct{}, len(pids))
	var fresh []Process
	for _, pid := range pids {
		if _, ok := s.known[pid]; ok {
			alive[pid] = struct{}{}
			continue
		}

		p, ok := s.read(pid)
		if !ok {
			continue
		}

		alive[pid] = struct{}{}
		s.known[pid] = p
		fresh = append(fresh, p)
	}

	for pid := range s.known {
		if _, ok := alive[pid]; !ok {
			delete(s.known, pid)
		}
	}

	slices.SortFunc(fresh, func(a, b Process) int {
		return cmp.Compare(a.PID, b.PID)
	})
	return fresh, nil
}

// Snapshot returns all known processes sorted by pid.
func (s *Scanner) Snapshot() []Process {
	res := make([]Process, 0, len(s.known))
	for _, p := range s.known {
		res = append(res, p)
	}
	slices.SortFunc(res, func(a, b Process) int {
		return cmp.Compare(a.PID, b.PID)
	})
	return res
}
