// Package lifecycle gates access to the solver. The Manager is a plain state
// machine with a single owner; it takes no locks, and the Running state is
// what keeps a second solve out.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/domino14/tetron/engine"
	"github.com/domino14/tetron/state"
)

type State int

const (
	Unloaded State = iota
	Loading
	Ready
	Running
	Stopped
)

var stateNames = [...]string{
	Unloaded: "unloaded",
	Loading:  "loading",
	Ready:    "ready",
	Running:  "running",
	Stopped:  "stopped",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrNotReady = errors.New("engine not ready")
	ErrBusy     = errors.New("engine busy")
	// ErrTransition is returned for calls that do not apply to the current
	// state, e.g. FinishRun with no run in flight.
	ErrTransition = errors.New("invalid lifecycle transition")
)

// Manager owns one solver and tracks where it is in its lifecycle. It is
// not safe for concurrent use.
type Manager struct {
	state  State
	solver engine.Solver

	// searching mirrors whether the solver's continuous loop is on.
	searching bool
	// after is the state a run returns to.
	after   State
	started time.Time
	input   *engine.Input
}

func NewManager() *Manager {
	return &Manager{state: Unloaded}
}

func (m *Manager) State() State {
	return m.state
}

// Solver returns the owned solver, or nil before load completes.
func (m *Manager) Solver() engine.Solver {
	return m.solver
}

// RunStarted returns when the in-flight run was accepted.
func (m *Manager) RunStarted() time.Time {
	return m.started
}

// Input returns the input of the in-flight or most recent run.
func (m *Manager) Input() *engine.Input {
	return m.input
}

func (m *Manager) setState(s State) {
	if s != m.state {
		log.Debug().Str("from", m.state.String()).Str("to", s.String()).Msg("lifecycle-transition")
	}
	m.state = s
}

func (m *Manager) BeginLoad() error {
	if m.state != Unloaded {
		return fmt.Errorf("%w: load requested while %v", ErrTransition, m.state)
	}
	m.setState(Loading)
	return nil
}

// Loaded completes a load. A loaded solver has its search loop switched on
// so that the first run gets the whole thinking budget. On error the
// manager goes back to Unloaded and a new load may be attempted.
func (m *Manager) Loaded(s engine.Solver, err error) error {
	if m.state != Loading {
		return fmt.Errorf("%w: load completed while %v", ErrTransition, m.state)
	}
	if err == nil && s == nil {
		err = errors.New("loader returned no solver")
	}
	if err == nil {
		err = s.Start()
	}
	if err != nil {
		if s != nil {
			if cerr := engine.Close(s); cerr != nil {
				log.Err(cerr).Msg("closing-unusable-solver")
			}
		}
		m.setState(Unloaded)
		return err
	}
	m.solver = s
	m.searching = true
	m.setState(Ready)
	return nil
}

// BeginRun encodes snap and hands it to the solver. A rejected or failed
// run leaves the state untouched. The run clock starts before Advance, so
// time spent inside Advance counts against the thinking budget.
func (m *Manager) BeginRun(snap *state.Snapshot) (*engine.Input, error) {
	switch m.state {
	case Unloaded, Loading:
		return nil, ErrNotReady
	case Running:
		return nil, ErrBusy
	}
	in, err := state.Encode(snap)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	if err := m.solver.Advance(in); err != nil {
		return nil, fmt.Errorf("advancing solver: %w", err)
	}
	m.after = m.state
	m.started = started
	m.input = in
	m.setState(Running)
	return in, nil
}

// FinishRun reads back the solver's current answer and leaves Running,
// whether or not the read succeeded.
func (m *Manager) FinishRun() (engine.Result, error) {
	if m.state != Running {
		return engine.Result{}, fmt.Errorf("%w: finish requested while %v", ErrTransition, m.state)
	}
	res, err := m.solver.CurrentSolution()
	if m.after == Stopped && m.searching {
		if serr := m.solver.Stop(); serr != nil {
			log.Err(serr).Msg("deferred-stop-failed")
		} else {
			m.searching = false
		}
	}
	m.setState(m.after)
	return res, err
}

// Start switches the search loop on. It succeeds without effect if the loop
// is already on, and cancels a stop deferred by a pending run.
func (m *Manager) Start() error {
	switch m.state {
	case Unloaded, Loading:
		return ErrNotReady
	}
	if !m.searching {
		if err := m.solver.Start(); err != nil {
			return err
		}
		m.searching = true
	}
	if m.state == Running {
		m.after = Ready
	} else {
		m.setState(Ready)
	}
	return nil
}

// Stop switches the search loop off. During a run the stop takes effect
// once the run is read back; the accepted run is never aborted.
func (m *Manager) Stop() error {
	switch m.state {
	case Unloaded, Loading:
		return ErrNotReady
	case Running:
		m.after = Stopped
		return nil
	case Stopped:
		return nil
	}
	if err := m.solver.Stop(); err != nil {
		return err
	}
	m.searching = false
	m.setState(Stopped)
	return nil
}

// Close releases the solver and returns the manager to Unloaded.
func (m *Manager) Close() error {
	s := m.solver
	m.solver = nil
	m.searching = false
	m.setState(Unloaded)
	if s == nil {
		return nil
	}
	return engine.Close(s)
}
