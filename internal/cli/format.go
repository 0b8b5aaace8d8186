package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rprtr258/scuf"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rprtr258/procwatch/internal/errors"
	"github.com/rprtr258/procwatch/internal/table"
)

const (
	_formatTable = "table"
	_formatList  = "list"
	_formatJSON  = "json"
)

var _formats = []string{
	_formatTable,
	_formatList,
	_formatJSON,
}

var _usageFlagFormat = scuf.NewString(func(b scuf.Buffer) {
	b.
		String("Output format: ").
		String(_formatTable, scuf.FgYellow).String(", ").
		String(_formatList, scuf.FgYellow).String(" or ").
		String(_formatJSON, scuf.FgYellow)
})

func addFlagFormat(cmd *cobra.Command, format *string) {
	cmd.Flags().StringVarP(format, "format", "f", _formatTable, _usageFlagFormat)
	registerFlagCompletionFunc(cmd, "format", completeWords(_formats...))
}

func checkFormat(format string) error {
	switch format {
	case _formatTable, _formatList, _formatJSON:
		return nil
	default:
		return errors.Newf("unknown format %q, expected one of %s", format, strings.Join(_formats, ", "))
	}
}

func joinRoots(roots []string) string {
	return strings.Join(roots, ", ")
}

func printJSON(w io.Writer, v any) error {
	data, errMarshal := json.MarshalIndent(v, "", "  ")
	if errMarshal != nil {
		return errors.Wrap(errMarshal, "marshal json")
	}

	_, err := fmt.Fprintln(w, string(data))
	return err
}

func printTable(w io.Writer, t table.Table) {
	width := 0
	if f, ok := w.(*os.File); ok {
		width, _, _ = term.GetSize(int(f.Fd()))
	}
	fmt.Fprintln(w, table.Render(t, width))
}
