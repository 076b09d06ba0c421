package state

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash"
	"github.com/rs/zerolog/log"

	"github.com/domino14/tetron/engine"
	"github.com/domino14/tetron/piece"
)

var ErrMalformedGrid = errors.New("malformed grid")

// Encode builds a fresh solver input from a snapshot.
//
// Occupied cells are written with the generic piece.Some marker: the solver
// only needs occupancy, so per-cell shape information is dropped. Only the
// grid size is validated; a missing piece, hold or short queue encodes as
// piece.None so that partial states during startup or game over still go
// through.
func Encode(snap *Snapshot) (*engine.Input, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: no snapshot", ErrMalformedGrid)
	}
	if len(snap.Grid) != engine.Cells {
		return nil, fmt.Errorf("%w: %d cells, want %d", ErrMalformedGrid, len(snap.Grid), engine.Cells)
	}
	in := engine.NewInput()
	for row := 0; row < engine.Height; row++ {
		for col := 0; col < engine.Width; col++ {
			marker := piece.None
			if snap.Grid[row*engine.Width+col] {
				marker = piece.Some
			}
			in.SetBoard(col, row, marker)
		}
	}

	in.SetPiece(0, snap.Piece.Piece())
	for i, id := range snap.Queue {
		if i+1 >= engine.Slots {
			log.Debug().Int("queue-len", len(snap.Queue)).Int("slots", engine.Slots).
				Msg("queue-truncated")
			break
		}
		in.SetPiece(i+1, id.Piece())
	}

	hold := piece.None
	if snap.Hold != nil {
		hold = snap.Hold.Piece()
	}
	in.SetHold(hold)
	return in, nil
}

// Fingerprint identifies an encoded position. Two inputs with the same
// fingerprint describe the same board, pieces and hold.
func Fingerprint(in *engine.Input) uint64 {
	return xxhash.Sum64(in.Bytes())
}
