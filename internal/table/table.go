// Package table renders rows of cells into box-drawn terminal table.
package table

import (
	"strings"

	"github.com/muesli/ansi"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
	"github.com/rprtr258/fun"
	"github.com/rprtr258/scuf"
)

type Table struct {
	Headers []string
	Rows    [][]string
	// RowDividers draws line between rows.
	RowDividers bool
}

// sides border piece connects
const (
	_east = 1 << iota
	_west
	_south
	_north
)

var _borders = [1 << 4]string{
	_north | _south | _west | _east: scuf.String("┼", scuf.FgWhite),
	_north | _south | _east:         scuf.String("├", scuf.FgWhite),
	_north | _south | _west:         scuf.String("┤", scuf.FgWhite),
	_north | _west | _east:          scuf.String("┴", scuf.FgWhite),
	_south | _west | _east:          scuf.String("┬", scuf.FgWhite),
	_north | _east:                  scuf.String("╰", scuf.FgWhite),
	_north | _west:                  scuf.String("╯", scuf.FgWhite),
	_south | _west:                  scuf.String("╮", scuf.FgWhite),
	_south | _east:                  scuf.String("╭", scuf.FgWhite),
	_west | _east:                   scuf.String("─", scuf.FgWhite),
	_north | _south:                 scuf.String("│", scuf.FgWhite),
}

func width(s string) int {
	return ansi.PrintableRuneWidth(s)
}

// wrapCell splits cell into lines at most w wide, breaking words only when
// single word does not fit.
func wrapCell(s string, w int) []string {
	lines := strings.Split(wordwrap.String(s, w), "\n")
	for _, line := range lines {
		if width(line) > w {
			return strings.Split(wrap.String(s, w), "\n")
		}
	}
	return lines
}

// naturalWidths are widths columns take without wrapping.
func (t Table) naturalWidths() []int {
	res := make([]int, len(t.Headers))
	for i, header := range t.Headers {
		res[i] = width(header)
		for _, row := range t.Rows {
			for _, line := range strings.Split(row[i], "\n") {
				res[i] = max(res[i], width(line))
			}
		}
	}
	return res
}

// fit shrinks widest columns one by one until table fits w.
func fit(cols []int, w int) []int {
	available := w - (len(cols) + 1)
	total := 0
	for _, col := range cols {
		total += col
	}

	for total > available {
		widest := 0
		for i, col := range cols {
			if col > cols[widest] {
				widest = i
			}
		}
		if cols[widest] <= 1 {
			break
		}

		cols[widest]--
		total--
	}
	return cols
}

func pad(s string, w int) string {
	return s + strings.Repeat(" ", max(w-width(s), 0))
}

func center(s string, w int) string {
	padding := max(w-width(s), 0)
	return strings.Repeat(" ", padding/2) + s + strings.Repeat(" ", padding-padding/2)
}

// renderShort renders each row as header-value lines, for tables too wide to
// be readable in columns.
func (t Table) renderShort(w int) string {
	rows := fun.Map[string](func(row []string) string {
		lines := fun.Map[string](func(cell string, i int) string {
			header := t.Headers[i]
			if width(header)+width(cell)+1 > w {
				return header + " " + cell
			}
			return pad(header, w-width(cell)) + cell
		}, row...)
		return strings.Join(lines, "\n")
	}, t.Rows...)
	return strings.Join(rows, "\n"+strings.Repeat(_borders[_west|_east], w)+"\n")
}

// Render draws table not wider than w, w <= 0 means no limit.
func Render(t Table, w int) string {
	cols := t.naturalWidths()
	if w > 0 {
		natural := len(cols) + 1
		for _, col := range cols {
			natural += col
		}
		if natural >= 2*w {
			return t.renderShort(w)
		}

		cols = fit(cols, w)
	}

	we, ns := _borders[_west|_east], _borders[_north|_south]
	rule := func(left, mid, right int) string {
		parts := fun.Map[string](func(col int) string {
			return strings.Repeat(we, col)
		}, cols...)
		return _borders[left] + strings.Join(parts, _borders[mid]) + _borders[right]
	}

	header := fun.Map[string](func(col, i int) string {
		return center(wrapCell(t.Headers[i], col)[0], col)
	}, cols...)
	lines := []string{
		rule(_south|_east, _south|_west|_east, _south|_west),
		ns + strings.Join(header, ns) + ns,
		rule(_north|_south|_east, _north|_south|_west|_east, _north|_south|_west),
	}
	for i, row := range t.Rows {
		cells := fun.Map[[]string](func(col, j int) []string {
			return wrapCell(row[j], col)
		}, cols...)

		height := 0
		for _, cell := range cells {
			height = max(height, len(cell))
		}

		for k := range height {
			line := fun.Map[string](func(col, j int) string {
				if k >= len(cells[j]) {
					return strings.Repeat(" ", col)
				}
				return pad(cells[j][k], col)
			}, cols...)
			lines = append(lines, ns+strings.Join(line, ns)+ns)
		}

		if t.RowDividers && i < len(t.Rows)-1 {
			lines = append(lines, rule(_north|_south|_east, _north|_south|_west|_east, _north|_south|_west))
		}
	}
	lines = append(lines, rule(_north|_east, _north|_west|_east, _north|_west))

	return strings.Join(lines, "\n")
}
