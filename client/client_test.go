package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domino14/tetron/dispatch"
	"github.com/domino14/tetron/engine"
	"github.com/domino14/tetron/engine/scripted"
	"github.com/domino14/tetron/lifecycle"
	"github.com/domino14/tetron/piece"
	"github.com/domino14/tetron/state"
	"github.com/domino14/tetron/transcribe"
)

var placement = engine.Result{FinalRotation: 1, SpinRotation: engine.NoRotation, Column: 7}

func snapshot() *state.Snapshot {
	snap := state.NewSnapshot()
	snap.Piece = piece.Letter("T")
	return snap
}

func runDispatcher(t *testing.T, loader engine.Loader) *dispatch.Dispatcher {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	d := dispatch.New(loader, dispatch.DefaultOptions())
	go d.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-d.Done()
	})
	return d
}

func TestSolveRetriesWhileLoading(t *testing.T) {
	s := scripted.New(placement)
	d := runDispatcher(t, scripted.Loader(s, 150*time.Millisecond))
	c := New(d, WithRetry(10, 50*time.Millisecond))

	reply, err := c.Solve(context.Background(), snapshot(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reply.Elapsed, 20*time.Millisecond)
	assert.Equal(t, transcribe.Decode(placement).Events, reply.Events)
	assert.Empty(t, reply.Anomalies)
	assert.Len(t, s.Inputs(), 1)
}

func TestSolveGivesUpWhenNeverReady(t *testing.T) {
	d := runDispatcher(t, scripted.Loader(scripted.New(placement), time.Hour))
	c := New(d, WithRetry(3, time.Millisecond))

	_, err := c.Solve(context.Background(), snapshot(), 0)
	assert.ErrorIs(t, err, lifecycle.ErrNotReady)
}

func TestSolveRemoteError(t *testing.T) {
	d := runDispatcher(t, scripted.Loader(scripted.New(placement), 0))
	c := New(d, WithRetry(3, time.Millisecond))
	require.NoError(t, c.WaitReady(context.Background()))

	_, err := c.Solve(context.Background(), &state.Snapshot{Grid: make([]state.Cell, 3)}, 0)
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, dispatch.NoteError, re.Kind)
	assert.Contains(t, re.Reason, "malformed grid")
}

func TestSolveCollectsAnomalies(t *testing.T) {
	d := runDispatcher(t, scripted.Loader(scripted.New(engine.Result{FinalRotation: 0, SpinRotation: engine.NoRotation, Column: 11}), 0))
	c := New(d)
	require.NoError(t, c.WaitReady(context.Background()))

	reply, err := c.Solve(context.Background(), snapshot(), time.Millisecond)
	require.NoError(t, err)
	require.Len(t, reply.Anomalies, 1)
	assert.Contains(t, reply.Anomalies[0], "column")
}

func TestStartStop(t *testing.T) {
	s := scripted.New(placement)
	d := runDispatcher(t, scripted.Loader(s, 0))
	c := New(d)
	require.NoError(t, c.WaitReady(context.Background()))

	require.NoError(t, c.Stop(context.Background()))
	assert.False(t, s.Searching())
	require.NoError(t, c.Start(context.Background()))
	assert.True(t, s.Searching())
}

func TestWaitReadyInitFailed(t *testing.T) {
	loader := func(ctx context.Context, width int) (engine.Solver, error) {
		return nil, errors.New("wasm trap")
	}
	d := runDispatcher(t, loader)
	c := New(d)
	err := c.WaitReady(context.Background())
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, dispatch.NoteInitFailed, re.Kind)
}

func TestSolveHonorsContext(t *testing.T) {
	d := runDispatcher(t, scripted.Loader(scripted.New(placement), 0))
	c := New(d)
	require.NoError(t, c.WaitReady(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	// The run's own budget is longer than the caller will wait.
	_, err := c.Solve(ctx, snapshot(), 500*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestZeroDeadlineIsNotTheDefault(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := dispatch.DefaultOptions()
	opts.DefaultDeadline = 300 * time.Millisecond
	d := dispatch.New(scripted.Loader(scripted.New(placement), 0), opts)
	go d.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-d.Done()
	})
	c := New(d)
	require.NoError(t, c.WaitReady(context.Background()))

	reply, err := c.Solve(context.Background(), snapshot(), 0)
	require.NoError(t, err)
	assert.Less(t, reply.Elapsed, opts.DefaultDeadline)
	assert.Equal(t, transcribe.Decode(placement).Events, reply.Events)

	reply, err = c.SolveDefault(context.Background(), snapshot())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reply.Elapsed, opts.DefaultDeadline)
}
