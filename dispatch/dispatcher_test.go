package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domino14/tetron/engine"
	"github.com/domino14/tetron/engine/scripted"
	"github.com/domino14/tetron/metrics"
	"github.com/domino14/tetron/piece"
	"github.com/domino14/tetron/state"
	"github.com/domino14/tetron/transcribe"
)

var placement = engine.Result{FinalRotation: 1, SpinRotation: engine.NoRotation, Column: 7}

func snapshot() *state.Snapshot {
	snap := state.NewSnapshot()
	snap.Piece = piece.Letter("T")
	snap.Queue = []piece.ID{piece.Letter("I"), piece.Letter("O")}
	return snap
}

func startDispatcher(t *testing.T, loader engine.Loader, opts Options) *Dispatcher {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	d := New(loader, opts)
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errc:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Error("dispatcher did not exit")
		}
	})
	return d
}

func next(t *testing.T, d *Dispatcher) Notification {
	t.Helper()
	select {
	case n, ok := <-d.Notifications():
		require.True(t, ok, "notification stream closed")
		return n
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a notification")
	}
	return Notification{}
}

func ready(t *testing.T, s *scripted.Solver, opts Options) *Dispatcher {
	t.Helper()
	d := startDispatcher(t, scripted.Loader(s, 0), opts)
	require.Equal(t, NoteInitDone, next(t, d).Kind)
	return d
}

func TestRunProducesElapsedThenSolution(t *testing.T) {
	s := scripted.New(placement)
	d := ready(t, s, DefaultOptions())

	require.NoError(t, d.Send(RunWithin(snapshot(), 20*time.Millisecond)))
	n := next(t, d)
	require.Equal(t, NoteElapsed, n.Kind)
	assert.GreaterOrEqual(t, n.Elapsed, 20*time.Millisecond)

	n = next(t, d)
	require.Equal(t, NoteSolution, n.Kind)
	assert.Equal(t, transcribe.Decode(placement).Events, n.Events)

	inputs := s.Inputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, []piece.Piece{piece.T, piece.I, piece.O}, inputs[0].Pieces())
}

func TestNotReadyDuringSlowLoad(t *testing.T) {
	s := scripted.New(placement)
	d := startDispatcher(t, scripted.Loader(s, 200*time.Millisecond), DefaultOptions())

	require.NoError(t, d.Send(Run(snapshot())))
	assert.Equal(t, NoteNotReady, next(t, d).Kind)
	require.NoError(t, d.Send(Start()))
	assert.Equal(t, NoteNotReady, next(t, d).Kind)
	assert.Empty(t, s.Inputs())

	assert.Equal(t, NoteInitDone, next(t, d).Kind)
	require.NoError(t, d.Send(RunWithin(snapshot(), 0)))
	assert.Equal(t, NoteElapsed, next(t, d).Kind)
	assert.Equal(t, NoteSolution, next(t, d).Kind)
}

func TestBackToBackRunsOneBusy(t *testing.T) {
	s := scripted.New(placement)
	d := ready(t, s, DefaultOptions())

	require.NoError(t, d.Send(RunWithin(snapshot(), 100*time.Millisecond)))
	require.NoError(t, d.Send(RunWithin(snapshot(), 100*time.Millisecond)))

	assert.Equal(t, NoteBusy, next(t, d).Kind)
	assert.Equal(t, NoteElapsed, next(t, d).Kind)
	assert.Equal(t, NoteSolution, next(t, d).Kind)
	assert.Len(t, s.Inputs(), 1)

	// Not queued: nothing else arrives.
	select {
	case n := <-d.Notifications():
		t.Fatalf("unexpected notification %v", n)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDefaultDeadline(t *testing.T) {
	s := scripted.New(placement)
	opts := DefaultOptions()
	opts.DefaultDeadline = 30 * time.Millisecond
	d := ready(t, s, opts)

	require.NoError(t, d.Send(Run(snapshot())))
	n := next(t, d)
	require.Equal(t, NoteElapsed, n.Kind)
	assert.GreaterOrEqual(t, n.Elapsed, 30*time.Millisecond)
}

func TestStopDuringRunDoesNotAbort(t *testing.T) {
	s := scripted.New(placement)
	d := ready(t, s, DefaultOptions())

	require.NoError(t, d.Send(RunWithin(snapshot(), 50*time.Millisecond)))
	require.NoError(t, d.Send(Stop()))
	assert.Equal(t, NoteStopped, next(t, d).Kind)
	assert.True(t, s.Searching())
	assert.Equal(t, NoteElapsed, next(t, d).Kind)
	assert.Equal(t, NoteSolution, next(t, d).Kind)

	// The deferred stop has taken effect once the solution is out.
	require.NoError(t, d.Send(Stop()))
	assert.Equal(t, NoteStopped, next(t, d).Kind)
	assert.False(t, s.Searching())

	require.NoError(t, d.Send(Start()))
	assert.Equal(t, NoteStarted, next(t, d).Kind)
	require.NoError(t, d.Send(Start()))
	assert.Equal(t, NoteStarted, next(t, d).Kind)
	assert.True(t, s.Searching())
}

func TestMalformedSnapshotReportsError(t *testing.T) {
	s := scripted.New(placement)
	d := ready(t, s, DefaultOptions())

	require.NoError(t, d.Send(Run(&state.Snapshot{Grid: make([]state.Cell, 5)})))
	n := next(t, d)
	assert.Equal(t, NoteError, n.Kind)
	assert.Contains(t, n.Reason, "5 cells")

	// The manager survives and accepts the next run.
	require.NoError(t, d.Send(RunWithin(snapshot(), 0)))
	assert.Equal(t, NoteElapsed, next(t, d).Kind)
	assert.Equal(t, NoteSolution, next(t, d).Kind)
}

func TestSendRaw(t *testing.T) {
	s := scripted.New(placement)
	d := ready(t, s, DefaultOptions())

	require.NoError(t, d.SendRaw([]byte(`["jump"]`)))
	n := next(t, d)
	assert.Equal(t, NoteError, n.Kind)
	assert.Contains(t, n.Reason, "unknown command")

	require.NoError(t, d.SendRaw([]byte(`"stop"`)))
	assert.Equal(t, NoteStopped, next(t, d).Kind)
}

func TestOversizedDeadlineIsRejected(t *testing.T) {
	s := scripted.New(placement)
	d := ready(t, s, DefaultOptions())

	require.NoError(t, d.SendRaw([]byte(`["run", {"piece": "T", "queue": [], "grid": ` + emptyGrid() + `}, 1e13]`)))
	n := next(t, d)
	assert.Equal(t, NoteError, n.Kind)
	assert.Contains(t, n.Reason, "out of range")
	assert.Empty(t, s.Inputs())
}

func TestAnomalyBeforeSolution(t *testing.T) {
	s := scripted.New(engine.Result{FinalRotation: 0, SpinRotation: 2, Column: 4})
	d := ready(t, s, DefaultOptions())

	require.NoError(t, d.Send(RunWithin(snapshot(), 0)))
	assert.Equal(t, NoteElapsed, next(t, d).Kind)
	n := next(t, d)
	require.Equal(t, NoteAnomaly, n.Kind)
	require.Len(t, n.Reasons, 1)
	assert.Contains(t, n.Reasons[0], "spin_delta")
	assert.Equal(t, NoteSolution, next(t, d).Kind)
}

func TestSolverErrorReported(t *testing.T) {
	s := scripted.New()
	opts := DefaultOptions()
	m, err := metrics.NewLifecycle()
	require.NoError(t, err)
	opts.Metrics = m
	d := ready(t, s, opts)

	require.NoError(t, d.Send(RunWithin(snapshot(), 0)))
	assert.Equal(t, NoteElapsed, next(t, d).Kind)
	n := next(t, d)
	assert.Equal(t, NoteError, n.Kind)
	assert.Contains(t, n.Reason, "no solution")
}

func TestInitFailed(t *testing.T) {
	loader := func(ctx context.Context, width int) (engine.Solver, error) {
		return nil, errors.New("instantiate failed")
	}
	d := startDispatcher(t, loader, DefaultOptions())
	n := next(t, d)
	assert.Equal(t, NoteInitFailed, n.Kind)
	assert.Equal(t, "instantiate failed", n.Reason)

	require.NoError(t, d.Send(Run(snapshot())))
	assert.Equal(t, NoteNotReady, next(t, d).Kind)
}

func TestInboxFullAndClosed(t *testing.T) {
	d := New(scripted.Loader(scripted.New(), 0), Options{InboxSize: 1})
	require.NoError(t, d.Send(Start()))
	assert.ErrorIs(t, d.Send(Start()), ErrInboxFull)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Run(ctx), context.Canceled)
	<-d.Done()
	assert.ErrorIs(t, d.Send(Start()), ErrClosed)
	for range d.Notifications() {
	}
	_, ok := <-d.Notifications()
	assert.False(t, ok)
}
