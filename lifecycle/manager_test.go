package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/domino14/tetron/engine"
	"github.com/domino14/tetron/engine/scripted"
	"github.com/domino14/tetron/piece"
	"github.com/domino14/tetron/state"
)

var placement = engine.Result{FinalRotation: 1, SpinRotation: engine.NoRotation, Column: 7}

func loadedManager(is *is.I) (*Manager, *scripted.Solver) {
	m := NewManager()
	s := scripted.New(placement)
	is.NoErr(m.BeginLoad())
	is.NoErr(m.Loaded(s, nil))
	is.Equal(m.State(), Ready)
	return m, s
}

func snapshot() *state.Snapshot {
	snap := state.NewSnapshot()
	snap.Piece = piece.Letter("T")
	return snap
}

func TestGatingBeforeLoad(t *testing.T) {
	is := is.New(t)
	m := NewManager()
	_, err := m.BeginRun(snapshot())
	is.True(errors.Is(err, ErrNotReady))
	is.True(errors.Is(m.Start(), ErrNotReady))
	is.True(errors.Is(m.Stop(), ErrNotReady))

	is.NoErr(m.BeginLoad())
	is.Equal(m.State(), Loading)
	_, err = m.BeginRun(snapshot())
	is.True(errors.Is(err, ErrNotReady))
	is.True(errors.Is(m.BeginLoad(), ErrTransition))
	is.Equal(m.State(), Loading)
}

func TestLoadFailureReturnsToUnloaded(t *testing.T) {
	is := is.New(t)
	m := NewManager()
	is.NoErr(m.BeginLoad())
	is.True(m.Loaded(nil, errors.New("compile failed")) != nil)
	is.Equal(m.State(), Unloaded)
	// A retry is allowed.
	is.NoErr(m.BeginLoad())
	is.True(m.Loaded(nil, nil) != nil)
	is.Equal(m.State(), Unloaded)
}

func TestLoadClosesSolverThatWillNotStart(t *testing.T) {
	is := is.New(t)
	m := NewManager()
	s := scripted.New(placement)
	s.StartErr = errors.New("no threads")
	is.NoErr(m.BeginLoad())
	is.True(errors.Is(m.Loaded(s, nil), s.StartErr))
	is.Equal(m.State(), Unloaded)
	is.True(s.Closed())
	is.True(m.Solver() == nil)
}

func TestRunClockIncludesAdvance(t *testing.T) {
	is := is.New(t)
	m, s := loadedManager(is)
	s.AdvanceDelay = 20 * time.Millisecond
	_, err := m.BeginRun(snapshot())
	is.NoErr(err)
	is.True(time.Since(m.RunStarted()) >= s.AdvanceDelay)
}

func TestLoadedStartsSearch(t *testing.T) {
	is := is.New(t)
	_, s := loadedManager(is)
	is.True(s.Searching())
}

func TestRunCycle(t *testing.T) {
	is := is.New(t)
	m, s := loadedManager(is)

	in, err := m.BeginRun(snapshot())
	is.NoErr(err)
	is.Equal(in.Piece(0), piece.T)
	is.Equal(m.State(), Running)
	is.True(!m.RunStarted().IsZero())
	is.Equal(len(s.Inputs()), 1)

	_, err = m.BeginRun(snapshot())
	is.True(errors.Is(err, ErrBusy))
	is.Equal(len(s.Inputs()), 1)

	res, err := m.FinishRun()
	is.NoErr(err)
	is.Equal(res, placement)
	is.Equal(m.State(), Ready)

	_, err = m.FinishRun()
	is.True(errors.Is(err, ErrTransition))
}

func TestMalformedRunLeavesStateAlone(t *testing.T) {
	is := is.New(t)
	m, s := loadedManager(is)
	_, err := m.BeginRun(&state.Snapshot{Grid: make([]state.Cell, 12)})
	is.True(errors.Is(err, state.ErrMalformedGrid))
	is.Equal(m.State(), Ready)
	is.Equal(len(s.Inputs()), 0)

	s.AdvanceErr = errors.New("engine trapped")
	_, err = m.BeginRun(snapshot())
	is.True(errors.Is(err, s.AdvanceErr))
	is.Equal(m.State(), Ready)
}

func TestSolutionErrorStillLeavesRunning(t *testing.T) {
	is := is.New(t)
	m, s := loadedManager(is)
	s.SolutionErr = engine.ErrNoSolution
	_, err := m.BeginRun(snapshot())
	is.NoErr(err)
	_, err = m.FinishRun()
	is.True(errors.Is(err, engine.ErrNoSolution))
	is.Equal(m.State(), Ready)
}

func TestStartStopIdempotent(t *testing.T) {
	is := is.New(t)
	m, s := loadedManager(is)

	is.NoErr(m.Start())
	is.Equal(m.State(), Ready)

	is.NoErr(m.Stop())
	is.Equal(m.State(), Stopped)
	is.NoErr(m.Stop())
	is.Equal(m.State(), Stopped)
	is.True(!s.Searching())

	is.NoErr(m.Start())
	is.NoErr(m.Start())
	is.Equal(m.State(), Ready)
	starts, stops := s.Toggles()
	// One start from load, one from the restart.
	is.Equal(starts, 2)
	is.Equal(stops, 1)
}

func TestStopDuringRunIsDeferred(t *testing.T) {
	is := is.New(t)
	m, s := loadedManager(is)
	_, err := m.BeginRun(snapshot())
	is.NoErr(err)

	is.NoErr(m.Stop())
	is.Equal(m.State(), Running)
	is.True(s.Searching())

	res, err := m.FinishRun()
	is.NoErr(err)
	is.Equal(res, placement)
	is.Equal(m.State(), Stopped)
	is.True(!s.Searching())
}

func TestStartCancelsDeferredStop(t *testing.T) {
	is := is.New(t)
	m, s := loadedManager(is)
	_, err := m.BeginRun(snapshot())
	is.NoErr(err)
	is.NoErr(m.Stop())
	is.NoErr(m.Start())
	_, err = m.FinishRun()
	is.NoErr(err)
	is.Equal(m.State(), Ready)
	is.True(s.Searching())
}

func TestRunWhileStopped(t *testing.T) {
	is := is.New(t)
	m, s := loadedManager(is)
	is.NoErr(m.Stop())

	_, err := m.BeginRun(snapshot())
	is.NoErr(err)
	is.Equal(m.State(), Running)
	_, err = m.FinishRun()
	is.NoErr(err)
	is.Equal(m.State(), Stopped)
	_, stops := s.Toggles()
	is.Equal(stops, 1)
}

func TestClose(t *testing.T) {
	is := is.New(t)
	m, s := loadedManager(is)
	is.NoErr(m.Close())
	is.True(s.Closed())
	is.Equal(m.State(), Unloaded)
	is.NoErr(m.Close())
}
