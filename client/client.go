// Package client sends solve requests over a channel boundary and waits for
// the matching notifications. There are no request IDs: the next elapsed,
// solution, busy or not-ready after a run belongs to that run, which holds
// because the dispatcher has at most one run in flight. A Client must
// therefore be the only caller on its transport.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/domino14/tetron/dispatch"
	"github.com/domino14/tetron/lifecycle"
	"github.com/domino14/tetron/state"
	"github.com/domino14/tetron/transcribe"
)

// Transport is the caller side of the boundary. *dispatch.Dispatcher
// implements it directly; natsbus.Client implements it over NATS.
type Transport interface {
	Send(dispatch.Command) error
	Notifications() <-chan dispatch.Notification
}

// RemoteError is an error notification from the dispatcher.
type RemoteError struct {
	Kind   string
	Reason string
}

func (e *RemoteError) Error() string {
	return e.Kind + ": " + e.Reason
}

// Reply is the outcome of one accepted run.
type Reply struct {
	Elapsed   time.Duration
	Events    []transcribe.Event
	Anomalies []string
}

type Client struct {
	t        Transport
	attempts uint
	delay    time.Duration
	timeout  time.Duration
}

type Option func(*Client)

// WithRetry sets the number of attempts on busy or not-ready and the
// initial backoff delay.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.delay = delay
	}
}

// WithTimeout bounds each attempt, on top of the run's own deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func New(t Transport, opts ...Option) *Client {
	c := &Client{t: t, attempts: 5, delay: 100 * time.Millisecond, timeout: 10 * time.Second}
	for _, o := range opts {
		o(c)
	}
	if c.attempts == 0 {
		c.attempts = 1
	}
	return c
}

func retryable(err error) bool {
	return errors.Is(err, lifecycle.ErrBusy) || errors.Is(err, lifecycle.ErrNotReady)
}

// Solve runs snap with the given thinking budget and returns the
// transcribed solution. A zero deadline reads the solver back immediately.
// Busy and not-ready are retried with backoff.
func (c *Client) Solve(ctx context.Context, snap *state.Snapshot, deadline time.Duration) (*Reply, error) {
	return c.solve(ctx, dispatch.RunWithin(snap, deadline), deadline)
}

// SolveDefault runs snap with the dispatcher's default thinking budget.
func (c *Client) SolveDefault(ctx context.Context, snap *state.Snapshot) (*Reply, error) {
	return c.solve(ctx, dispatch.Run(snap), 0)
}

func (c *Client) solve(ctx context.Context, cmd dispatch.Command, deadline time.Duration) (*Reply, error) {
	var reply *Reply
	err := retry.Do(
		func() error {
			var err error
			reply, err = c.solveOnce(ctx, cmd, deadline)
			return err
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Uint("n", n).Msg("solve-rejected-try-again")
		}),
	)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) solveOnce(ctx context.Context, cmd dispatch.Command, deadline time.Duration) (*Reply, error) {
	if err := c.t.Send(cmd); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout+deadline)
	defer cancel()

	reply := &Reply{}
	for {
		n, err := c.next(ctx)
		if err != nil {
			return nil, err
		}
		switch n.Kind {
		case dispatch.NoteBusy:
			return nil, lifecycle.ErrBusy
		case dispatch.NoteNotReady:
			return nil, lifecycle.ErrNotReady
		case dispatch.NoteError, dispatch.NoteInitFailed:
			return nil, &RemoteError{Kind: n.Kind, Reason: n.Reason}
		case dispatch.NoteElapsed:
			reply.Elapsed = n.Elapsed
		case dispatch.NoteAnomaly:
			reply.Anomalies = append(reply.Anomalies, n.Reasons...)
		case dispatch.NoteSolution:
			reply.Events = n.Events
			return reply, nil
		default:
			log.Debug().Str("kind", n.Kind).Msg("skipping-notification")
		}
	}
}

func (c *Client) next(ctx context.Context) (dispatch.Notification, error) {
	select {
	case n, ok := <-c.t.Notifications():
		if !ok {
			return dispatch.Notification{}, dispatch.ErrClosed
		}
		return n, nil
	case <-ctx.Done():
		return dispatch.Notification{}, fmt.Errorf("waiting for notification: %w", ctx.Err())
	}
}

// Start switches the engine's search loop on and waits for the
// acknowledgement.
func (c *Client) Start(ctx context.Context) error {
	return c.toggle(ctx, dispatch.Start(), dispatch.NoteStarted)
}

func (c *Client) Stop(ctx context.Context) error {
	return c.toggle(ctx, dispatch.Stop(), dispatch.NoteStopped)
}

func (c *Client) toggle(ctx context.Context, cmd dispatch.Command, ack string) error {
	if err := c.t.Send(cmd); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	for {
		n, err := c.next(ctx)
		if err != nil {
			return err
		}
		switch n.Kind {
		case ack:
			return nil
		case dispatch.NoteNotReady:
			return lifecycle.ErrNotReady
		case dispatch.NoteError:
			return &RemoteError{Kind: n.Kind, Reason: n.Reason}
		}
	}
}

// WaitReady blocks until the engine reports init-done or init-failed.
func (c *Client) WaitReady(ctx context.Context) error {
	for {
		n, err := c.next(ctx)
		if err != nil {
			return err
		}
		switch n.Kind {
		case dispatch.NoteInitDone:
			return nil
		case dispatch.NoteInitFailed:
			return &RemoteError{Kind: n.Kind, Reason: n.Reason}
		}
	}
}
