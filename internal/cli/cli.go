package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rprtr258/procwatch/internal/core"
)

func addGroup(
	cmd *cobra.Command,
	title string,
	cmds ...*cobra.Command,
) {
	id := strings.ToLower(title)
	cmd.AddGroup(&cobra.Group{
		ID:    id,
		Title: title + ":",
	})
	for _, c := range cmds {
		cmd.AddCommand(c)
		c.GroupID = id
	}
}

var _app = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "procwatch",
		Short:         "watch directories and report processes started meanwhile",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(_cmdVersion)
	addGroup(cmd, "Watching",
		_cmdWatch,
		_cmdPlan,
	)
	addGroup(cmd, "Inspection",
		_cmdPs,
	)
	return cmd
}()

func Run(argv []string) error {
	setupLogger(core.DefaultConfig)

	_app.SetArgs(argv[1:])
	return _app.Execute()
}
