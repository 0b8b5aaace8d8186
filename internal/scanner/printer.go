package scanner

import (
	"fmt"
	"io"
	"strconv"

	"github.com/rprtr258/fun"
	"github.com/rprtr258/scuf"
)

// Printer writes one colored line per process.
type Printer struct {
	w     io.Writer
	color bool
}

func NewPrinter(w io.Writer, color bool) Printer {
	return Printer{
		w:     w,
		color: color,
	}
}

func (p Printer) paint(s string, mods ...scuf.Modifier) string {
	if !p.color {
		return s
	}
	return scuf.String(s, mods...)
}

// Line formats process as
//
//	PID: 1234   | PPID: 1      | UID: 0 (root) | CMD: /sbin/init
func (p Printer) Line(proc Process) string {
	uid := strconv.FormatUint(uint64(proc.EUID), 10)
	user := fun.IF(proc.User != "" && proc.User != uid, " ("+proc.User+")", "")
	bar := p.paint("|", scuf.FgHiBlack)

	return fmt.Sprintf("%s %s %s %s %s %s %s %s %s %s %s",
		p.paint("PID:", scuf.ModBold), p.paint(fmt.Sprintf("%-6d", proc.PID), scuf.FgCyan), bar,
		p.paint("PPID:", scuf.ModBold), fmt.Sprintf("%-6d", proc.PPID), bar,
		p.paint("UID:", scuf.ModBold), p.paint(uid+user, fun.IF(proc.EUID == 0, scuf.FgRed, scuf.FgGreen)), bar,
		p.paint("CMD:", scuf.ModBold), p.paint(proc.Cmdline, fun.IF(proc.Cmdline == UnknownCmdline, scuf.ModFaint, scuf.FgHiWhite)),
	)
}

func (p Printer) Print(procs []Process) {
	for _, proc := range procs {
		fmt.Fprintln(p.w, p.Line(proc))
	}
}
