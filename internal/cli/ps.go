package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rprtr258/fun"
	"github.com/rprtr258/scuf"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/rprtr258/procwatch/internal/scanner"
	"github.com/rprtr258/procwatch/internal/table"
)

func formatUptime(started time.Time, now time.Time) string {
	if started.IsZero() {
		return ""
	}
	return now.Sub(started).Truncate(time.Second).String()
}

func printProcs(w io.Writer, procs []scanner.Process, format string) error {
	switch format {
	case _formatJSON:
		return printJSON(w, procs)
	case _formatList:
		scanner.NewPrinter(w, false).Print(procs)
		return nil
	default:
		now := time.Now()
		printTable(w, table.Table{
			Headers: fun.Map[string](func(col string) string {
				return scuf.String(col, scuf.ModBold)
			}, "pid", "ppid", "user", "uptime", "cmd"),
			Rows: fun.Map[[]string](func(proc scanner.Process) []string {
				return []string{
					scuf.String(strconv.Itoa(int(proc.PID)), scuf.FgCyan, scuf.ModBold),
					strconv.Itoa(int(proc.PPID)),
					scuf.String(proc.User, fun.IF(proc.EUID == 0, scuf.FgRed, scuf.FgGreen)),
					formatUptime(proc.Started, now),
					proc.Cmdline,
				}
			}, procs...),
			RowDividers: false,
		})
		return nil
	}
}

var _cmdPs = func() *cobra.Command {
	var (
		flags  configFlags
		format string
	)
	cmd := &cobra.Command{
		Use:     "ps",
		Short:   "list running processes the way watch sees them",
		Aliases: []string{"list", "ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			config, err := flags.load(cmd, nil)
			if err != nil {
				return err
			}

			procs, err := scanner.New(afero.NewOsFs(), config.ProcDir).Refresh()
			if err != nil {
				return err
			}

			if len(procs) == 0 {
				fmt.Fprintln(os.Stderr, "no processes found")
				return nil
			}

			return printProcs(os.Stdout, procs, format)
		},
	}
	addFlagsConfig(cmd, &flags)
	addFlagFormat(cmd, &format)
	return cmd
}()
