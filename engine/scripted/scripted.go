// Package scripted is a deterministic solver. It replays a fixed list of
// placement results, one per Advance, and records every input it was given.
// It stands in for the real engine in tests and demos.
package scripted

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/domino14/tetron/engine"
)

// Script is the YAML form of a scripted solver:
//
//	load_delay: 1.5s
//	results:
//	  - {final_rotation: 1, spin_rotation: -1, column: 7}
type Script struct {
	LoadDelay time.Duration   `yaml:"load_delay"`
	LoadError string          `yaml:"load_error"`
	Results   []engine.Result `yaml:"results"`
}

// LoadScript reads a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScript(data)
}

func ParseScript(data []byte) (*Script, error) {
	s := &Script{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing solver script: %w", err)
	}
	return s, nil
}

// Loader returns an engine.Loader that waits out the load delay and then
// hands back a solver replaying the script's results.
func (sc *Script) Loader() engine.Loader {
	return func(ctx context.Context, searchWidth int) (engine.Solver, error) {
		if sc.LoadDelay > 0 {
			select {
			case <-time.After(sc.LoadDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if sc.LoadError != "" {
			return nil, fmt.Errorf("scripted load: %s", sc.LoadError)
		}
		return New(sc.Results...), nil
	}
}

// Solver replays results in order, wrapping around at the end. It is safe
// for concurrent use so tests can inspect it while a dispatcher owns it.
type Solver struct {
	mu sync.Mutex

	results   []engine.Result
	next      int
	current   *engine.Result
	inputs    []*engine.Input
	searching bool
	starts    int
	stops     int
	closed    bool

	// AdvanceErr, SolutionErr and StartErr, when set, are returned by the
	// corresponding calls.
	AdvanceErr  error
	SolutionErr error
	StartErr    error
	// AdvanceDelay makes Advance block, like an engine that searches
	// synchronously.
	AdvanceDelay time.Duration
}

func New(results ...engine.Result) *Solver {
	return &Solver{results: results}
}

// Loader returns a loader that hands back s after delay.
func Loader(s *Solver, delay time.Duration) engine.Loader {
	return func(ctx context.Context, searchWidth int) (engine.Solver, error) {
		select {
		case <-time.After(delay):
			return s, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Solver) Advance(in *engine.Input) error {
	if s.AdvanceDelay > 0 {
		time.Sleep(s.AdvanceDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AdvanceErr != nil {
		return s.AdvanceErr
	}
	s.inputs = append(s.inputs, in)
	if len(s.results) == 0 {
		s.current = nil
		return nil
	}
	r := s.results[s.next%len(s.results)]
	s.next++
	s.current = &r
	return nil
}

func (s *Solver) CurrentSolution() (engine.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SolutionErr != nil {
		return engine.Result{}, s.SolutionErr
	}
	if s.current == nil {
		return engine.Result{}, engine.ErrNoSolution
	}
	return *s.current, nil
}

func (s *Solver) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.searching = true
	return nil
}

func (s *Solver) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.searching = false
	return nil
}

func (s *Solver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Inputs returns the inputs seen so far, oldest first.
func (s *Solver) Inputs() []*engine.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*engine.Input(nil), s.inputs...)
}

// Searching reports whether the continuous search loop is on.
func (s *Solver) Searching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searching
}

// Toggles returns how many times Start and Stop were called.
func (s *Solver) Toggles() (starts, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops
}

func (s *Solver) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
