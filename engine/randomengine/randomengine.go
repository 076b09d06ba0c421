// Package randomengine is a solver that places each piece at a random
// orientation and column. It is for demos and load tests.
package randomengine

import (
	"context"
	"crypto/sha256"
	"sync"

	"lukechampine.com/frand"

	"github.com/domino14/tetron/engine"
)

// NewRNG returns a deterministic generator for a non-empty seed and a
// randomly seeded one otherwise.
func NewRNG(seed string) *frand.RNG {
	var key [32]byte
	if seed == "" {
		key = frand.Entropy256()
	} else {
		key = sha256.Sum256([]byte(seed))
	}
	return frand.NewCustom(key[:], 1024, 12)
}

type Solver struct {
	mu      sync.Mutex
	rng     *frand.RNG
	current *engine.Result
}

func New(rng *frand.RNG) *Solver {
	return &Solver{rng: rng}
}

func Loader(seed string) engine.Loader {
	return func(ctx context.Context, searchWidth int) (engine.Solver, error) {
		return New(NewRNG(seed)), nil
	}
}

// Advance picks a column whose top cell is free, if there is one.
func (s *Solver) Advance(in *engine.Input) error {
	var open []int
	for col := 0; col < engine.Width; col++ {
		if !in.Occupied(col, 0) {
			open = append(open, col)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(open) == 0 {
		s.current = nil
		return nil
	}
	s.current = &engine.Result{
		FinalRotation: s.rng.Intn(4),
		SpinRotation:  engine.NoRotation,
		Column:        open[s.rng.Intn(len(open))],
	}
	return nil
}

func (s *Solver) CurrentSolution() (engine.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return engine.Result{}, engine.ErrNoSolution
	}
	return *s.current, nil
}

func (s *Solver) Start() error { return nil }
func (s *Solver) Stop() error  { return nil }
