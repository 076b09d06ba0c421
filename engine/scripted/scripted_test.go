package scripted

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/domino14/tetron/engine"
)

const script = `
load_delay: 10ms
results:
  - {final_rotation: 1, spin_rotation: -1, column: 7}
  - {final_rotation: 2, spin_rotation: 1, column: 3}
`

func TestParseScript(t *testing.T) {
	is := is.New(t)
	sc, err := ParseScript([]byte(script))
	is.NoErr(err)
	is.Equal(sc.LoadDelay, 10*time.Millisecond)
	is.Equal(sc.Results, []engine.Result{
		{FinalRotation: 1, SpinRotation: -1, Column: 7},
		{FinalRotation: 2, SpinRotation: 1, Column: 3},
	})

	_, err = ParseScript([]byte("results: {nope"))
	is.True(err != nil)
}

func TestReplayWrapsAround(t *testing.T) {
	is := is.New(t)
	sc, err := ParseScript([]byte(script))
	is.NoErr(err)
	s, err := sc.Loader()(context.Background(), 1)
	is.NoErr(err)

	var cols []int
	for i := 0; i < 3; i++ {
		r, err := engine.Solve(s, engine.NewInput())
		is.NoErr(err)
		cols = append(cols, r.Column)
	}
	is.Equal(cols, []int{7, 3, 7})
	is.Equal(len(s.(*Solver).Inputs()), 3)
}

func TestNoSolution(t *testing.T) {
	is := is.New(t)
	s := New()
	_, err := s.CurrentSolution()
	is.True(errors.Is(err, engine.ErrNoSolution))
	is.NoErr(s.Advance(engine.NewInput()))
	_, err = s.CurrentSolution()
	is.True(errors.Is(err, engine.ErrNoSolution))
}

func TestLoaderHonorsContext(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Loader(New(), time.Hour)(ctx, 1)
	is.True(errors.Is(err, context.Canceled))

	sc := &Script{LoadError: "module missing"}
	_, err = sc.Loader()(context.Background(), 1)
	is.True(err != nil)
}

func TestToggles(t *testing.T) {
	is := is.New(t)
	s := New()
	is.NoErr(s.Start())
	is.True(s.Searching())
	is.NoErr(s.Stop())
	is.True(!s.Searching())
	starts, stops := s.Toggles()
	is.Equal(starts, 1)
	is.Equal(stops, 1)
	is.NoErr(engine.Close(s))
	is.True(s.Closed())
}
