package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rprtr258/procwatch/internal/core"
	"github.com/rprtr258/procwatch/internal/errors"
	"github.com/rprtr258/procwatch/internal/inotify"
	"github.com/rprtr258/procwatch/internal/scanner"
	"github.com/rprtr258/procwatch/internal/walker"
	"github.com/rprtr258/procwatch/internal/watch"
)

// _signalBuffer lets loop run ahead of slow process table refresh.
const _signalBuffer = 64

func runWatch(ctx context.Context, fsys afero.Fs, kernel inotify.Kernel, config core.Config) error {
	// validated by config already
	policy, _ := watch.ParsePolicy(config.Policy)
	kinds, _ := config.EventKinds()

	set, report := walker.Walk(fsys, config.Roots, config.Depth)
	report.Log()

	limit, err := inotify.ReadWatchLimit(fsys, config.LimitPath)
	if err != nil {
		return err
	}

	reg, err := watch.Register(kernel, set, limit)
	if err != nil {
		return err
	}
	reg.Log()

	procs := scanner.New(fsys, config.ProcDir)
	if _, err := procs.Refresh(); err != nil {
		_ = reg.Handle.Close()
		return errors.Wrap(err, "initial process scan")
	}
	log.Info().
		Int("processes", len(procs.Snapshot())).
		Int("directories", reg.Active).
		Str("policy", string(policy)).
		Msg("watching")

	printer := scanner.NewPrinter(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
	dispatcher := watch.NewDispatcher(policy, _signalBuffer)
	loop := watch.NewLoop(reg, dispatcher, watch.WithPollTimeout(config.PollTimeout))

	var (
		wg      sync.WaitGroup
		errLoop error
		errScan error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errLoop = loop.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		errScan = scanner.Consume(ctx, dispatcher.Signals(), procs, scanner.ConsumeOptions{
			Kinds:  kinds,
			Rescan: config.Rescan,
			Print:  printer.Print,
		})
	}()
	wg.Wait()

	return errors.Combine(errLoop, errScan)
}

var _cmdWatch = func() *cobra.Command {
	var flags configFlags
	cmd := &cobra.Command{
		Use:               "watch [root]...",
		Short:             "watch directories, print processes started on changes",
		Long:              "watch directories, by default " + joinRoots(core.DefaultRoots) + ", and print new processes whenever something changes there",
		Aliases:           []string{"w", "run"},
		ValidArgsFunction: completeArgRoots,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := flags.load(cmd, args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runWatch(ctx, afero.NewOsFs(), inotify.Sys{}, config)
		},
	}
	addFlagsConfig(cmd, &flags)
	addFlagDepth(cmd, &flags)
	addFlagsWatch(cmd, &flags)
	return cmd
}()
