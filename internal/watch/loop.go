package watch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rprtr258/procwatch/internal/errors"
	"github.com/rprtr258/procwatch/internal/inotify"
)

// DefaultPollTimeout is how long single read waits for events.
const DefaultPollTimeout = 250 * time.Millisecond

// errorLog logs each distinct error once, counting repeats.
type errorLog struct {
	last    string
	repeats int
}

func (e *errorLog) report(err error) {
	msg := err.Error()
	if msg == e.last {
		e.repeats++
		return
	}

	e.flush()
	e.last = msg
	log.Error().Err(err).Msg("watch loop")
}

func (e *errorLog) flush() {
	if e.repeats == 0 {
		return
	}

	log.Error().
		Str("err", e.last).
		Int("repeats", e.repeats).
		Msg("watch loop error repeated")
	e.repeats = 0
}

// Loop reads inotify events and hands them to dispatcher. It owns handle and
// decoder buffer, nothing else may use them once loop is created.
type Loop struct {
	handle      *inotify.Handle
	dirs        map[int32]string
	dispatcher  *Dispatcher
	pollTimeout time.Duration
	decoder     inotify.Decoder
	buf         []byte
	errs        errorLog
}

type LoopOption func(*Loop)

func WithPollTimeout(timeout time.Duration) LoopOption {
	return func(l *Loop) {
		if timeout > 0 {
			l.pollTimeout = timeout
		}
	}
}

// NewLoop takes ownership of registration handle.
func NewLoop(reg Registration, dispatcher *Dispatcher, opts ...LoopOption) *Loop {
	l := &Loop{
		handle:      reg.Handle,
		dirs:        reg.Paths,
		dispatcher:  dispatcher,
		pollTimeout: DefaultPollTimeout,
		decoder:     inotify.Decoder{},
		buf:         make([]byte, inotify.ReadBufferSize),
		errs:        errorLog{last: "", repeats: 0},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.dirs == nil {
		l.dirs = map[int32]string{}
	}
	return l
}

// Run reads events until ctx is done. Then it closes handle and signal channel.
func (l *Loop) Run(ctx context.Context) error {
	defer l.dispatcher.close()
	defer l.errs.flush()

	for ctx.Err() == nil {
		n, err := l.handle.Read(l.buf, l.pollTimeout)
		if err != nil {
			if errors.Is(err, inotify.ErrWouldBlock) {
				continue
			}

			l.errs.report(err)
			// failed reads return at once, do not spin on them
			select {
			case <-ctx.Done():
			case <-time.After(l.pollTimeout):
			}
			continue
		}

		events, errDecode := l.decoder.Decode(l.buf[:n])
		if errDecode != nil {
			l.errs.report(errDecode)
		}

		if !l.dispatcher.dispatch(ctx, l.dirs, events) {
			break
		}

		l.forget(events)
	}

	log.Debug().Msg("watch loop stopped")
	return l.handle.Close()
}

// forget drops watches kernel removed, their ids may be reused later.
func (l *Loop) forget(events []inotify.Event) {
	for _, event := range events {
		switch {
		case event.Mask.Has(inotify.QueueOverflow):
			log.Warn().Msg("inotify queue overflowed, events lost")
		case event.Mask.Has(inotify.Ignored):
			log.Debug().
				Int32("wd", event.WatchID).
				Str("path", l.dirs[event.WatchID]).
				Msg("watch removed")
			delete(l.dirs, event.WatchID)
		}
	}
}
