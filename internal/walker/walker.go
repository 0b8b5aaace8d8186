// Package walker discovers directories to watch below given roots.
package walker

import (
	"cmp"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/rprtr258/procwatch/internal/errors"
)

// DefaultDepth is how many levels below each root are watched.
const DefaultDepth = 3

// Path is directory to watch with its depth below the root it was found from.
type Path struct {
	Path  string `json:"path"`
	Depth int    `json:"depth"`
}

// WatchSet is sorted list of unique directories.
type WatchSet []Path

func (s WatchSet) Paths() []string {
	res := make([]string, len(s))
	for i, p := range s {
		res[i] = p.Path
	}
	return res
}

func (s WatchSet) Contains(path string) bool {
	_, ok := slices.BinarySearchFunc(s, filepath.Clean(path), func(p Path, target string) int {
		return cmp.Compare(p.Path, target)
	})
	return ok
}

// RootError is root which could not be walked.
type RootError struct {
	Root string
	Err  error
}

// Report holds everything walk had to skip.
type Report struct {
	MissingRoots []RootError
	// Unreadable directories are watched but not descended into.
	Unreadable []string
}

func (r Report) Empty() bool {
	return len(r.MissingRoots) == 0 && len(r.Unreadable) == 0
}

// Log reports skipped roots and directories, once per walk.
func (r Report) Log() {
	for _, root := range r.MissingRoots {
		log.Warn().
			Str("root", root.Root).
			Err(root.Err).
			Msg("root skipped")
	}
	if len(r.Unreadable) > 0 {
		log.Warn().
			Int("count", len(r.Unreadable)).
			Strs("first", r.Unreadable[:min(len(r.Unreadable), 5)]).
			Msg("unreadable directories skipped")
	}
}

type walk struct {
	fs       afero.Fs
	maxDepth int
	// seen maps directory to smallest depth it was reached with
	seen       map[string]int
	listed     map[string]struct{}
	unreadable map[string]struct{}
	report     Report
}

// visit adds dir and its subdirectories up to maxDepth. Directory stays in the
// set even if it cannot be listed. Symlinks are leaves:
// directory listing does not follow them and they are not directories
// themselves, so they are neither watched nor descended into.
func (w *walk) visit(dir string, depth int) {
	if prev, ok := w.seen[dir]; ok && prev <= depth {
		return
	}
	w.seen[dir] = depth

	if depth >= w.maxDepth {
		return
	}

	entries, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		w.unreadable[dir] = struct{}{}
		return
	}
	w.listed[dir] = struct{}{}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Mode()&fs.ModeSymlink != 0 {
			continue
		}

		w.visit(filepath.Join(dir, entry.Name()), depth+1)
	}
}

// Walk collects roots and directories below them up to maxDepth levels deep.
// Roots that do not exist or are not directories are reported and skipped.
// Result is sorted by path, each path occurs once with smallest depth.
func Walk(fsys afero.Fs, roots []string, maxDepth int) (WatchSet, Report) {
	w := walk{
		fs:         fsys,
		maxDepth:   max(maxDepth, 0),
		seen:       map[string]int{},
		listed:     map[string]struct{}{},
		unreadable: map[string]struct{}{},
		report:     Report{MissingRoots: nil, Unreadable: nil},
	}

	for _, root := range roots {
		root = filepath.Clean(root)

		// root itself may be symlink, user asked for it explicitly
		info, errStat := w.fs.Stat(root)
		if errStat != nil {
			w.report.MissingRoots = append(w.report.MissingRoots, RootError{
				Root: root,
				Err:  errors.Wrap(errStat, "stat root"),
			})
			continue
		}
		if !info.IsDir() {
			w.report.MissingRoots = append(w.report.MissingRoots, RootError{
				Root: root,
				Err:  errors.New("not a directory"),
			})
			continue
		}

		w.visit(root, 0)
	}

	set := make(WatchSet, 0, len(w.seen))
	for path, depth := range w.seen {
		set = append(set, Path{Path: path, Depth: depth})
	}
	slices.SortFunc(set, func(a, b Path) int {
		return cmp.Compare(a.Path, b.Path)
	})

	// same directory may be unreadable on one visit and listed on another
	for dir := range w.unreadable {
		if _, ok := w.listed[dir]; !ok {
			w.report.Unreadable = append(w.report.Unreadable, dir)
		}
	}
	slices.Sort(w.report.Unreadable)

	return set, w.report
}
