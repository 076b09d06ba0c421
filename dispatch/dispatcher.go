// Package dispatch is the channel boundary between callers and the solver.
// A Dispatcher owns one lifecycle.Manager on its own goroutine; callers only
// send commands and read notifications, so at most one solve is ever in
// flight and rejections never wait on a running solve.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/domino14/tetron/engine"
	"github.com/domino14/tetron/lifecycle"
	"github.com/domino14/tetron/metrics"
	"github.com/domino14/tetron/state"
	"github.com/domino14/tetron/transcribe"
)

const DefaultDeadline = 1000 * time.Millisecond

var (
	ErrInboxFull = errors.New("dispatcher inbox full")
	ErrClosed    = errors.New("dispatcher closed")
)

type Options struct {
	// DefaultDeadline is the thinking budget for runs that do not name one.
	DefaultDeadline time.Duration
	// SearchWidth is passed to the loader.
	SearchWidth int
	InboxSize   int
	OutboxSize  int
	// Metrics may be nil.
	Metrics *metrics.Lifecycle
}

func DefaultOptions() Options {
	return Options{
		DefaultDeadline: DefaultDeadline,
		SearchWidth:     runtime.NumCPU(),
		InboxSize:       16,
		OutboxSize:      16,
	}
}

type loadResult struct {
	solver   engine.Solver
	err      error
	duration time.Duration
}

type Dispatcher struct {
	loader engine.Loader
	opts   Options
	mgr    *lifecycle.Manager

	inbox     chan Command
	outbox    chan Notification
	loaded    chan loadResult
	deadlines chan uint64
	done      chan struct{}

	runSeq uint64
	timer  *time.Timer
}

func New(loader engine.Loader, opts Options) *Dispatcher {
	def := DefaultOptions()
	if opts.InboxSize <= 0 {
		opts.InboxSize = def.InboxSize
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = def.OutboxSize
	}
	if opts.SearchWidth <= 0 {
		opts.SearchWidth = def.SearchWidth
	}
	if opts.DefaultDeadline < 0 {
		opts.DefaultDeadline = 0
	}
	return &Dispatcher{
		loader:    loader,
		opts:      opts,
		mgr:       lifecycle.NewManager(),
		inbox:     make(chan Command, opts.InboxSize),
		outbox:    make(chan Notification, opts.OutboxSize),
		loaded:    make(chan loadResult),
		deadlines: make(chan uint64),
		done:      make(chan struct{}),
	}
}

// Send queues a command. It never waits for the loop; a full inbox is
// reported as ErrInboxFull.
func (d *Dispatcher) Send(cmd Command) error {
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	select {
	case d.inbox <- cmd:
		return nil
	default:
		return ErrInboxFull
	}
}

// SendRaw parses a wire envelope and queues it. An envelope that does not
// parse is still queued, and comes back as an error notification, so that
// transports have a single outbound stream.
func (d *Dispatcher) SendRaw(data []byte) error {
	cmd, err := ParseCommand(data)
	if err != nil {
		cmd = Command{err: err}
	}
	return d.Send(cmd)
}

// Notifications is the outbound stream. It is closed when Run returns.
func (d *Dispatcher) Notifications() <-chan Notification {
	return d.outbox
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Run loads the solver and serves commands until ctx is done. The solver is
// released on return.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)
	defer close(d.outbox)
	defer close(d.done)
	defer func() {
		if d.timer != nil {
			d.timer.Stop()
		}
		if err := d.mgr.Close(); err != nil {
			logger.Err(err).Msg("closing-solver")
		}
	}()

	if err := d.mgr.BeginLoad(); err != nil {
		return err
	}
	go d.load(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("dispatcher-exiting")
			return ctx.Err()
		case res := <-d.loaded:
			d.onLoaded(ctx, res)
		case seq := <-d.deadlines:
			if seq == d.runSeq && d.mgr.State() == lifecycle.Running {
				d.finish(ctx)
			}
		case cmd := <-d.inbox:
			d.handle(ctx, cmd)
		}
	}
}

func (d *Dispatcher) load(ctx context.Context) {
	zerolog.Ctx(ctx).Info().Int("search-width", d.opts.SearchWidth).Msg("loading-engine")
	start := time.Now()
	s, err := d.loader(ctx, d.opts.SearchWidth)
	res := loadResult{solver: s, err: err, duration: time.Since(start)}
	select {
	case d.loaded <- res:
	case <-ctx.Done():
		if s != nil {
			engine.Close(s)
		}
	}
}

func (d *Dispatcher) onLoaded(ctx context.Context, res loadResult) {
	logger := zerolog.Ctx(ctx)
	err := d.mgr.Loaded(res.solver, res.err)
	d.opts.Metrics.RecordLoaded(ctx, res.duration, err)
	if err != nil {
		logger.Err(err).Msg("engine-load-failed")
		d.emit(ctx, Notification{Kind: NoteInitFailed, Reason: err.Error()})
		return
	}
	logger.Info().Dur("took", res.duration).Msg("engine-loaded")
	d.emit(ctx, Notification{Kind: NoteInitDone})
}

func (d *Dispatcher) handle(ctx context.Context, cmd Command) {
	logger := zerolog.Ctx(ctx)
	if cmd.err != nil {
		logger.Debug().Err(cmd.err).Msg("bad-envelope")
		d.emit(ctx, Notification{Kind: NoteError, Reason: cmd.err.Error()})
		return
	}
	logger.Debug().Str("cmd", cmd.String()).Str("state", d.mgr.State().String()).Msg("command")
	switch cmd.Name {
	case CmdRun:
		d.run(ctx, cmd)
	case CmdStart:
		d.toggle(ctx, d.mgr.Start, NoteStarted)
	case CmdStop:
		d.toggle(ctx, d.mgr.Stop, NoteStopped)
	default:
		d.emit(ctx, Notification{Kind: NoteError,
			Reason: fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name).Error()})
	}
}

func (d *Dispatcher) toggle(ctx context.Context, fn func() error, ack string) {
	err := fn()
	switch {
	case errors.Is(err, lifecycle.ErrNotReady):
		d.emit(ctx, Notification{Kind: NoteNotReady})
	case err != nil:
		d.emit(ctx, Notification{Kind: NoteError, Reason: err.Error()})
	default:
		d.emit(ctx, Notification{Kind: ack})
	}
}

func (d *Dispatcher) run(ctx context.Context, cmd Command) {
	logger := zerolog.Ctx(ctx)
	deadline := d.opts.DefaultDeadline
	if cmd.Deadline != nil {
		deadline = *cmd.Deadline
	}
	in, err := d.mgr.BeginRun(cmd.Snapshot)
	switch {
	case errors.Is(err, lifecycle.ErrNotReady):
		d.opts.Metrics.RecordRejected(ctx, NoteNotReady)
		d.emit(ctx, Notification{Kind: NoteNotReady})
		return
	case errors.Is(err, lifecycle.ErrBusy):
		d.opts.Metrics.RecordRejected(ctx, NoteBusy)
		d.emit(ctx, Notification{Kind: NoteBusy})
		return
	case err != nil:
		reason := "solver"
		if errors.Is(err, state.ErrMalformedGrid) {
			reason = "malformed"
		}
		d.opts.Metrics.RecordRejected(ctx, reason)
		logger.Info().Err(err).Msg("run-rejected")
		d.emit(ctx, Notification{Kind: NoteError, Reason: err.Error()})
		return
	}
	d.opts.Metrics.RecordAccepted(ctx)
	d.runSeq++
	logger.Debug().Uint64("run", d.runSeq).Uint64("position", state.Fingerprint(in)).
		Dur("deadline", deadline).Msg("run-accepted")

	if deadline <= 0 {
		d.finish(ctx)
		return
	}
	seq := d.runSeq
	d.timer = time.AfterFunc(deadline, func() {
		select {
		case d.deadlines <- seq:
		case <-d.done:
		}
	})
}

func (d *Dispatcher) finish(ctx context.Context) {
	logger := zerolog.Ctx(ctx)
	d.timer = nil
	res, err := d.mgr.FinishRun()
	elapsed := time.Since(d.mgr.RunStarted())
	d.emit(ctx, Notification{Kind: NoteElapsed, Elapsed: elapsed})
	if err != nil {
		d.opts.Metrics.RecordFinished(ctx, elapsed, 0, err)
		logger.Err(err).Msg("solution-readback-failed")
		d.emit(ctx, Notification{Kind: NoteError, Reason: err.Error()})
		return
	}
	tr := transcribe.Decode(res)
	d.opts.Metrics.RecordFinished(ctx, elapsed, len(tr.Anomalies), nil)
	if len(tr.Anomalies) > 0 {
		logger.Warn().Err(tr.Err()).Str("result", res.String()).Msg("anomalous-result")
		d.emit(ctx, Notification{Kind: NoteAnomaly,
			Reasons: lo.Map(tr.Anomalies, func(e error, _ int) string { return e.Error() })})
	}
	logger.Debug().Str("result", res.String()).Dur("elapsed", elapsed).Msg("run-finished")
	d.emit(ctx, Notification{Kind: NoteSolution, Events: tr.Events})
}

// emit blocks until the notification is taken or ctx is done; notifications
// are never dropped while the dispatcher runs.
func (d *Dispatcher) emit(ctx context.Context, n Notification) {
	select {
	case d.outbox <- n:
	case <-ctx.Done():
	}
}
