package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/domino14/tetron/piece"
)

func TestInputSetters(t *testing.T) {
	in := NewInput()
	in.SetBoard(0, 0, piece.Some)
	in.SetBoard(9, 19, piece.Some)
	in.SetPiece(0, piece.T)
	in.SetPiece(1, piece.I)
	in.SetPiece(3, piece.O)
	in.SetHold(piece.S)

	assert.True(t, in.Occupied(0, 0))
	assert.True(t, in.Occupied(9, 19))
	assert.False(t, in.Occupied(4, 10))
	// Slot 2 is empty, so the filled prefix stops there.
	assert.Equal(t, []piece.Piece{piece.T, piece.I}, in.Pieces())
	assert.Equal(t, piece.S, in.Hold())

	b := in.Bytes()
	assert.Len(t, b, Cells+Slots+1)
	assert.Equal(t, byte(piece.Some), b[0])
	assert.Equal(t, byte(piece.Some), b[Cells-1])
	assert.Equal(t, byte(piece.T), b[Cells])
	assert.Equal(t, byte(piece.S), b[len(b)-1])
}

func TestInputOutOfRange(t *testing.T) {
	in := NewInput()
	assert.Panics(t, func() { in.SetBoard(10, 0, piece.Some) })
	assert.Panics(t, func() { in.SetBoard(0, 20, piece.Some) })
	assert.Panics(t, func() { in.SetBoard(-1, 0, piece.Some) })
	assert.Panics(t, func() { in.SetPiece(Slots, piece.T) })
}

type oneShot struct {
	advanced *Input
}

func (o *oneShot) Advance(in *Input) error { o.advanced = in; return nil }
func (o *oneShot) CurrentSolution() (Result, error) {
	if o.advanced == nil {
		return Result{}, ErrNoSolution
	}
	return Result{FinalRotation: 1, SpinRotation: NoRotation, Column: 3}, nil
}
func (o *oneShot) Start() error { return nil }
func (o *oneShot) Stop() error  { return nil }

func TestSolve(t *testing.T) {
	s := &oneShot{}
	_, err := s.CurrentSolution()
	assert.ErrorIs(t, err, ErrNoSolution)

	in := NewInput()
	r, err := Solve(s, in)
	assert.NoError(t, err)
	assert.Same(t, in, s.advanced)
	assert.False(t, r.Spin())
	assert.Equal(t, 3, r.Column)
	assert.NoError(t, Close(s))
}
