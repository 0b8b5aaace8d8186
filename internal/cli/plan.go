package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rprtr258/fun"
	"github.com/rprtr258/scuf"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/rprtr258/procwatch/internal/core"
	"github.com/rprtr258/procwatch/internal/inotify"
	"github.com/rprtr258/procwatch/internal/table"
	"github.com/rprtr258/procwatch/internal/walker"
)

// plan is what watch would register, computed without opening inotify.
type plan struct {
	WatchSet     walker.WatchSet `json:"watch_set"`
	Limit        *uint64         `json:"limit"`
	Truncated    []string        `json:"truncated"`
	MissingRoots []string        `json:"missing_roots"`
	Unreadable   []string        `json:"unreadable"`
}

func makePlan(fsys afero.Fs, config core.Config) plan {
	set, report := walker.Walk(fsys, config.Roots, config.Depth)

	p := plan{
		WatchSet:  set,
		Limit:     nil,
		Truncated: []string{},
		MissingRoots: fun.Map[string](func(root walker.RootError) string {
			return root.Root
		}, report.MissingRoots...),
		Unreadable: fun.IF(report.Unreadable == nil, []string{}, report.Unreadable),
	}

	limit, err := inotify.ReadWatchLimit(fsys, config.LimitPath)
	if err != nil {
		log.Warn().Err(err).Msg("watch limit unknown, truncation not predicted")
		return p
	}

	p.Limit = &limit
	if uint64(len(set)) > limit {
		p.Truncated = set[limit:].Paths()
	}
	return p
}

func (p plan) print(w io.Writer, format string) error {
	switch format {
	case _formatJSON:
		return printJSON(w, p)
	case _formatList:
		for _, path := range p.WatchSet.Paths() {
			fmt.Fprintln(w, path)
		}
	default:
		truncated := make(map[string]struct{}, len(p.Truncated))
		for _, path := range p.Truncated {
			truncated[path] = struct{}{}
		}

		printTable(w, table.Table{
			Headers: fun.Map[string](func(col string) string {
				return scuf.String(col, scuf.ModBold)
			}, "depth", "directory", "watched"),
			Rows: fun.Map[[]string](func(dir walker.Path) []string {
				_, lost := truncated[dir.Path]
				return []string{
					strconv.Itoa(dir.Depth),
					dir.Path,
					fun.IF(lost, scuf.String("no, limit", scuf.FgRed), scuf.String("yes", scuf.FgGreen)),
				}
			}, p.WatchSet...),
			RowDividers: false,
		})
	}

	limit := "unknown"
	if p.Limit != nil {
		limit = strconv.FormatUint(*p.Limit, 10)
	}
	log.Info().
		Int("directories", len(p.WatchSet)).
		Str("limit", limit).
		Int("truncated", len(p.Truncated)).
		Strs("missing_roots", p.MissingRoots).
		Int("unreadable", len(p.Unreadable)).
		Msg("plan")
	return nil
}

var _cmdPlan = func() *cobra.Command {
	var (
		flags  configFlags
		format string
	)
	cmd := &cobra.Command{
		Use:               "plan [root]...",
		Short:             "show directories watch would register",
		ValidArgsFunction: completeArgRoots,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			config, err := flags.load(cmd, args)
			if err != nil {
				return err
			}

			return makePlan(afero.NewOsFs(), config).print(os.Stdout, format)
		},
	}
	addFlagsConfig(cmd, &flags)
	addFlagDepth(cmd, &flags)
	addFlagFormat(cmd, &format)
	return cmd
}()
