// Package state holds the game-facing snapshot and its encoding into the
// solver's input structure.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/domino14/tetron/engine"
	"github.com/domino14/tetron/piece"
)

// Cell is one board cell. Only occupancy survives decoding: the client may
// send booleans, color codes or shape letters, and anything truthy is
// occupied.
type Cell bool

func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("grid cell: %w", err)
	}
	switch x := v.(type) {
	case nil:
		*c = false
	case bool:
		*c = Cell(x)
	case float64:
		*c = x != 0
	case string:
		*c = x != ""
	default:
		return fmt.Errorf("grid cell: unsupported value %s", string(data))
	}
	return nil
}

// Snapshot is a point-in-time description of the game as the client sends
// it.
type Snapshot struct {
	Grid  []Cell     `json:"grid"`
	Piece piece.ID   `json:"piece"`
	Queue []piece.ID `json:"queue"`
	Hold  *piece.ID  `json:"hold,omitempty"`

	// Carried for the client's benefit; the solver input has no slot for
	// them.
	B2B   int `json:"b2b,omitempty"`
	Combo int `json:"combo,omitempty"`
}

// NewSnapshot returns a snapshot with an empty board.
func NewSnapshot() *Snapshot {
	return &Snapshot{Grid: make([]Cell, engine.Cells)}
}

// Decode parses a JSON snapshot.
func Decode(data []byte) (*Snapshot, error) {
	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}

// Set marks cell (col, row) on a full-size grid.
func (s *Snapshot) Set(col, row int, occupied bool) {
	s.Grid[row*engine.Width+col] = Cell(occupied)
}

// Filled counts the occupied cells.
func (s *Snapshot) Filled() int {
	return lo.CountBy(s.Grid, func(c Cell) bool { return bool(c) })
}

// SetHold sets or clears (nil) the hold piece.
func (s *Snapshot) SetHold(v any) {
	if v == nil {
		s.Hold = nil
		return
	}
	id := piece.NewID(v)
	s.Hold = &id
}

var ErrBoardText = errors.New("bad board text")

// ParseBoard reads a board drawn with '#' (occupied) and '.' (empty), top
// row first. Every other character is ignored, so rows may be split across
// lines freely.
func ParseBoard(text string) ([]Cell, error) {
	cells := make([]Cell, 0, engine.Cells)
	for _, ch := range text {
		if ch != '#' && ch != '.' {
			continue
		}
		if len(cells) == engine.Cells {
			return nil, fmt.Errorf("%w: more than %d cells", ErrBoardText, engine.Cells)
		}
		cells = append(cells, ch == '#')
	}
	if len(cells) != engine.Cells {
		return nil, fmt.Errorf("%w: %d cells, want %d", ErrBoardText, len(cells), engine.Cells)
	}
	return cells, nil
}

// BoardString renders the grid in the format ParseBoard reads.
func (s *Snapshot) BoardString() string {
	var sb strings.Builder
	for i, c := range s.Grid {
		if c {
			sb.WriteByte('#')
		} else {
			sb.WriteByte('.')
		}
		if (i+1)%engine.Width == 0 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func (s *Snapshot) String() string {
	hold := piece.None
	if s.Hold != nil {
		hold = s.Hold.Piece()
	}
	queue := lo.Map(s.Queue, func(id piece.ID, _ int) string { return id.Piece().String() })
	return fmt.Sprintf("%spiece: %v queue: %v hold: %v", s.BoardString(),
		s.Piece.Piece(), strings.Join(queue, ""), hold)
}
