package scanner

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog/log"

	"github.com/rprtr258/procwatch/internal/errors"
	"github.com/rprtr258/procwatch/internal/inotify"
	"github.com/rprtr258/procwatch/internal/watch"
)

type ConsumeOptions struct {
	// Kinds of events which trigger refresh, zero means any.
	Kinds inotify.EventKind
	// Rescan is cron expression of periodic full refresh, empty disables it.
	Rescan string
	// Print receives new processes found by each refresh.
	Print func([]Process)
}

// ValidateRescan checks rescan cron expression.
func ValidateRescan(expr string) error {
	if expr == "" {
		return nil
	}

	if !gronx.New().IsValid(expr) {
		return errors.Newf("invalid rescan cron expression %q", expr)
	}
	return nil
}

// Matches reports whether signal should trigger refresh.
func (o ConsumeOptions) Matches(s watch.Signal) bool {
	switch {
	case s.IsWake(), o.Kinds == 0:
		return true
	case s.Event.Mask.Has(inotify.QueueOverflow):
		// lost events might have been anything
		return true
	default:
		return s.Event.Mask.Has(o.Kinds)
	}
}

// nextTick returns timer channel firing on next rescan, nil if there is none.
func nextTick(expr string, now time.Time) (<-chan time.Time, *time.Timer) {
	if expr == "" {
		return nil, nil
	}

	next, err := gronx.NextTickAfter(expr, now, false)
	if err != nil {
		log.Error().
			Err(err).
			Str("rescan", expr).
			Msg("compute next rescan, periodic rescan disabled")
		return nil, nil
	}

	timer := time.NewTimer(next.Sub(now))
	return timer.C, timer
}

// Consume refreshes scanner on each matching signal until signals channel is
// closed. Refreshes are also run on rescan schedule, if any.
func Consume(ctx context.Context, signals <-chan watch.Signal, scanner *Scanner, opts ConsumeOptions) error {
	if err := ValidateRescan(opts.Rescan); err != nil {
		return err
	}

	refresh := func(reason string) {
		procs, err := scanner.Refresh()
		if err != nil {
			log.Error().
				Err(err).
				Str("reason", reason).
				Msg("refresh process table")
			return
		}

		log.Debug().
			Str("reason", reason).
			Int("new", len(procs)).
			Msg("process table refreshed")
		if len(procs) > 0 && opts.Print != nil {
			opts.Print(procs)
		}
	}

	tick, timer := nextTick(opts.Rescan, time.Now())
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-tick:
			refresh("rescan")
			tick, timer = nextTick(opts.Rescan, now)
		case s, ok := <-signals:
			if !ok {
				return nil
			}

			log.Debug().
				Str("signal", s.String()).
				Stringer("op", s.Event.Mask.Op()).
				Msg("change signal")
			if !opts.Matches(s) {
				continue
			}

			refresh("change")
		}
	}
}
