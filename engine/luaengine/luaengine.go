// Package luaengine is a solver written in Lua. The script must define a
// global function
//
//	solve(input) -> {final_rotation=, spin_rotation=, column=} | nil
//
// where input is {board = {row1, ..., row20}, pieces = {"T", ...}, hold =
// "J" | nil, search_width = n}. Rows run top to bottom and hold the engine
// markers (0 is empty). The json module is preloaded.
package luaengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	lua "github.com/yuin/gopher-lua"
	luajson "layeh.com/gopher-json"

	"github.com/domino14/tetron/engine"
	"github.com/domino14/tetron/piece"
)

const solveFunc = "solve"

var ErrNoSolveFunction = errors.New("script does not define solve()")

type wireInput struct {
	Board       [][]int    `json:"board"`
	Pieces      []piece.ID `json:"pieces"`
	Hold        piece.ID   `json:"hold"`
	SearchWidth int        `json:"search_width"`
}

func toWire(in *engine.Input, width int) wireInput {
	w := wireInput{
		Board:       make([][]int, engine.Height),
		Pieces:      lo.Map(in.Pieces(), func(p piece.Piece, _ int) piece.ID { return piece.ToGame(p) }),
		Hold:        piece.ToGame(in.Hold()),
		SearchWidth: width,
	}
	for row := range w.Board {
		w.Board[row] = make([]int, engine.Width)
		for col := range w.Board[row] {
			w.Board[row][col] = int(in.Cell(col, row))
		}
	}
	return w
}

// Solver runs a Lua script. A Lua state is single-threaded, so every call
// into it holds mu.
type Solver struct {
	mu      sync.Mutex
	L       *lua.LState
	width   int
	current *engine.Result
}

// Loader returns an engine.Loader that compiles the script at path.
func Loader(path string) engine.Loader {
	return loader(func(L *lua.LState) error { return L.DoFile(path) })
}

// LoaderFromString is Loader for an in-memory script.
func LoaderFromString(src string) engine.Loader {
	return loader(func(L *lua.LState) error { return L.DoString(src) })
}

func loader(run func(*lua.LState) error) engine.Loader {
	return func(ctx context.Context, searchWidth int) (engine.Solver, error) {
		s, err := load(ctx, searchWidth, run)
		if err != nil {
			// A nil *Solver must not reach callers as a non-nil interface.
			return nil, err
		}
		return s, nil
	}
}

func load(ctx context.Context, width int, run func(*lua.LState) error) (*Solver, error) {
	L := lua.NewState()
	luajson.Preload(L)
	L.SetGlobal("search_width", lua.LNumber(width))
	L.SetContext(ctx)
	if err := run(L); err != nil {
		L.Close()
		return nil, fmt.Errorf("loading lua engine: %w", err)
	}
	L.RemoveContext()
	if L.GetGlobal(solveFunc).Type() != lua.LTFunction {
		L.Close()
		return nil, ErrNoSolveFunction
	}
	return &Solver{L: L, width: width}, nil
}

func (s *Solver) Advance(in *engine.Input) error {
	data, err := json.Marshal(toWire(in, s.width))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L == nil {
		return errors.New("lua engine closed")
	}
	arg, err := luajson.Decode(s.L, data)
	if err != nil {
		return err
	}
	if err := s.L.CallByParam(lua.P{
		Fn:      s.L.GetGlobal(solveFunc),
		NRet:    1,
		Protect: true,
	}, arg); err != nil {
		return fmt.Errorf("lua solve: %w", err)
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	s.current = nil
	if ret.Type() == lua.LTNil {
		log.Debug().Msg("lua-engine-no-solution")
		return nil
	}
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return fmt.Errorf("lua solve returned %s, want table", ret.Type())
	}
	r := engine.Result{
		FinalRotation: intField(tbl, "final_rotation", engine.NoRotation),
		SpinRotation:  intField(tbl, "spin_rotation", engine.NoRotation),
		Column:        intField(tbl, "column", engine.SpawnColumn),
	}
	s.current = &r
	return nil
}

func intField(t *lua.LTable, key string, def int) int {
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return int(n)
	}
	return def
}

func (s *Solver) CurrentSolution() (engine.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return engine.Result{}, engine.ErrNoSolution
	}
	return *s.current, nil
}

// Start and Stop are no-ops: the script answers synchronously in Advance.
func (s *Solver) Start() error { return nil }
func (s *Solver) Stop() error  { return nil }

func (s *Solver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L != nil {
		s.L.Close()
		s.L = nil
	}
	return nil
}
