// Package engine describes the call surface of the external move-decision
// engine (the solver). The solver's search is opaque to this module: only
// its input setters, its lifecycle entry points and the shape of its
// placement result are specified here.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/domino14/tetron/piece"
)

const (
	Width  = 10
	Height = 20
	Cells  = Width * Height
	// Slots is the number of piece slots: the current piece plus five
	// previews.
	Slots = 6
	// SpawnColumn is the column a piece enters the board at.
	SpawnColumn = 4
	// NoRotation is the sentinel for an untracked rotation.
	NoRotation = -1
)

var ErrNoSolution = errors.New("solver has no solution for the current position")

// Input is the solver's input structure. One Input belongs to exactly one
// solve request.
type Input struct {
	board  [Height][Width]piece.Piece
	pieces [Slots]piece.Piece
	hold   piece.Piece
}

// NewInput returns an empty input: no occupied cells, no pieces, no hold.
func NewInput() *Input {
	return &Input{}
}

// SetBoard writes the marker for cell (col, row). Coordinates outside the
// board are a programming error.
func (in *Input) SetBoard(col, row int, marker piece.Piece) {
	if col < 0 || col >= Width || row < 0 || row >= Height {
		panic(fmt.Sprintf("engine: board cell (%d, %d) out of range", col, row))
	}
	in.board[row][col] = marker
}

// SetPiece writes piece slot i. Slot 0 is the current piece.
func (in *Input) SetPiece(i int, marker piece.Piece) {
	if i < 0 || i >= Slots {
		panic(fmt.Sprintf("engine: piece slot %d out of range", i))
	}
	in.pieces[i] = marker
}

func (in *Input) SetHold(marker piece.Piece) {
	in.hold = marker
}

func (in *Input) Cell(col, row int) piece.Piece {
	return in.board[row][col]
}

func (in *Input) Occupied(col, row int) bool {
	return in.board[row][col] != piece.None
}

func (in *Input) Piece(i int) piece.Piece {
	return in.pieces[i]
}

// Pieces returns the filled prefix of the piece slots.
func (in *Input) Pieces() []piece.Piece {
	n := 0
	for n < Slots && in.pieces[n] != piece.None {
		n++
	}
	out := make([]piece.Piece, n)
	copy(out, in.pieces[:n])
	return out
}

func (in *Input) Hold() piece.Piece {
	return in.hold
}

// Bytes serializes the input in a fixed layout: 200 board markers in
// row-major order, then the piece slots, then the hold marker.
func (in *Input) Bytes() []byte {
	out := make([]byte, 0, Cells+Slots+1)
	for row := 0; row < Height; row++ {
		for col := 0; col < Width; col++ {
			out = append(out, byte(in.board[row][col]))
		}
	}
	for _, p := range in.pieces {
		out = append(out, byte(p))
	}
	return append(out, byte(in.hold))
}

// Result is the solver's terse placement decision.
type Result struct {
	// FinalRotation is the orientation the piece locks in (0..3), or
	// NoRotation when not tracked.
	FinalRotation int `json:"final_rotation" yaml:"final_rotation"`
	// SpinRotation is the orientation reached before the spin kick, or
	// NoRotation when the placement is not a spin.
	SpinRotation int `json:"spin_rotation" yaml:"spin_rotation"`
	// Column is the target column; the offset from SpawnColumn is how far
	// the piece must be shifted.
	Column int `json:"column" yaml:"column"`
}

// Spin reports whether the placement needs a spin kick.
func (r Result) Spin() bool {
	return r.SpinRotation != NoRotation
}

func (r Result) String() string {
	return fmt.Sprintf("<result rot: %d spin: %d col: %d>", r.FinalRotation, r.SpinRotation, r.Column)
}

// Solver is the opaque engine. Advance hands it a new position; it may keep
// improving its answer in the background until CurrentSolution is read.
// Start and Stop toggle its continuous search loop.
//
// Every call is made from the dispatcher's goroutine, which answers no other
// command meanwhile. Advance must hand the position over and return; a
// solver that searches inside Advance delays busy and not-ready replies by
// as long, and that time is charged to the run's thinking budget.
type Solver interface {
	Advance(in *Input) error
	CurrentSolution() (Result, error)
	Start() error
	Stop() error
}

// Loader creates a solver. It corresponds to the engine's create entry
// point and may take a long time (module fetch, compile, instantiate).
type Loader func(ctx context.Context, searchWidth int) (Solver, error)

// Solve is the synchronous form: advance, then read back immediately.
func Solve(s Solver, in *Input) (Result, error) {
	if err := s.Advance(in); err != nil {
		return Result{}, err
	}
	return s.CurrentSolution()
}

// Close releases the solver if it holds resources.
func Close(s Solver) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
