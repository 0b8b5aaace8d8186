package cli

import (
	"cmp"
	"os"
	"strings"
	"time"

	"github.com/rprtr258/fun"
	"github.com/rprtr258/scuf"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/rprtr258/procwatch/internal/core"
	"github.com/rprtr258/procwatch/internal/errors"
	"github.com/rprtr258/procwatch/internal/inotify"
)

func setupLogger(config core.Config) {
	level := fun.IF(config.Debug, zerolog.DebugLevel, zerolog.InfoLevel)

	log.Logger = zerolog.New(os.Stderr).
		Level(level).
		With().
		Timestamp().
		Logger().
		Output(zerolog.ConsoleWriter{ //nolint:exhaustruct // not needed
			Out: os.Stderr,
			FormatLevel: func(i any) string {
				s, _ := i.(string)
				bg := fun.Switch(s, scuf.BgRed).
					Case(scuf.BgBlue, zerolog.LevelInfoValue).
					Case(scuf.BgYellow, zerolog.LevelWarnValue).
					Case(scuf.BgRed, zerolog.LevelErrorValue).
					Case(scuf.BgGreen, zerolog.LevelDebugValue).
					End()

				return scuf.String(" "+strings.ToUpper(s)+" ", bg, scuf.FgBlack)
			},
			FormatTimestamp: func(i any) string {
				s, _ := i.(string)
				t, err := time.Parse(zerolog.TimeFieldFormat, s)
				if err != nil {
					return s
				}

				return scuf.String(t.Format("[15:04:05]"), scuf.ModFaint, scuf.FgWhite)
			},
		})
}

// configFlags are flags overriding config file values. Only flags set
// explicitly override.
type configFlags struct {
	config string
	depth  int
	policy string
	kinds  []string
	poll   time.Duration
	rescan string
	debug  bool
}

func addFlagsConfig(cmd *cobra.Command, flags *configFlags) {
	cmd.Flags().StringVarP(&flags.config, "config", "c", "", "config file to use, default "+core.ConfigPath)
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "log debug messages")
}

func addFlagDepth(cmd *cobra.Command, flags *configFlags) {
	cmd.Flags().IntVarP(&flags.depth, "depth", "d", core.DefaultConfig.Depth, "levels below each root to watch")
}

func addFlagsWatch(cmd *cobra.Command, flags *configFlags) {
	cmd.Flags().StringVarP(&flags.policy, "policy", "p", core.DefaultConfig.Policy, "what change signals carry: events or wake")
	registerFlagCompletionFunc(cmd, "policy", completeFlagPolicy)
	cmd.Flags().StringSliceVarP(&flags.kinds, "kind", "k", nil, "event kinds triggering refresh, all if not set")
	registerFlagCompletionFunc(cmd, "kind", completeFlagKind)
	cmd.Flags().DurationVar(&flags.poll, "poll", core.DefaultConfig.PollTimeout, "longest single wait for events")
	cmd.Flags().StringVar(&flags.rescan, "rescan", "", "cron expression of periodic full rescan")
}

func changed(cmd *cobra.Command, name string) bool {
	flag := cmd.Flags().Lookup(name)
	return flag != nil && flag.Changed
}

// load reads config file, applies environment and flags over it, and
// reconfigures logger.
func (f *configFlags) load(cmd *cobra.Command, roots []string) (core.Config, error) {
	config, err := core.LoadConfig(afero.NewOsFs(), cmp.Or(f.config, core.ConfigPath))
	if err != nil {
		return fun.Zero[core.Config](), errors.Wrap(err, "load config")
	}

	config, err = core.ApplyEnv(config)
	if err != nil {
		return fun.Zero[core.Config](), err
	}

	if len(roots) > 0 {
		config.Roots = roots
	}
	if changed(cmd, "depth") {
		config.Depth = f.depth
	}
	if changed(cmd, "policy") {
		config.Policy = f.policy
	}
	if changed(cmd, "kind") {
		config.Kinds = f.kinds
	}
	if changed(cmd, "poll") {
		config.PollTimeout = f.poll
	}
	if changed(cmd, "rescan") {
		config.Rescan = f.rescan
	}
	if changed(cmd, "debug") {
		config.Debug = f.debug
	}

	if err := config.Validate(); err != nil {
		return fun.Zero[core.Config](), err
	}

	setupLogger(config)
	return config, nil
}

// Exit statuses by failure class.
const (
	ExitFailure          = 1
	ExitOpenFailed       = 2
	ExitLimitUnavailable = 3
	ExitInvalidConfig    = 4
)

// ExitCode maps error returned by Run to process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case inotify.KindOf(err) == inotify.OpenFailed:
		return ExitOpenFailed
	case inotify.KindOf(err) == inotify.LimitUnavailable:
		return ExitLimitUnavailable
	case errors.Is(err, core.ErrInvalidConfig):
		return ExitInvalidConfig
	default:
		return ExitFailure
	}
}
