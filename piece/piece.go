// Package piece maps the game client's piece identifiers onto the
// solver's piece markers and back.
package piece

import (
	"math"
	"strings"
)

// Piece is the solver's piece marker. The numeric values are part of the
// solver binary contract and must not be reordered.
type Piece uint8

const (
	None Piece = iota
	J
	L
	S
	Z
	T
	I
	O
	// Some marks "a piece is present" when its shape is unknown or
	// irrelevant, e.g. an occupied board cell.
	Some
)

// Shapes lists the seven real shapes in marker order.
var Shapes = []Piece{J, L, S, Z, T, I, O}

// PlaceholderLetter is the game-side token for "some piece, shape unknown".
const PlaceholderLetter = "*"

// gameCodes is the client's integer encoding. The order is a compatibility
// contract with the client, not alphabetical.
var gameCodes = [7]Piece{L, J, Z, S, I, O, T}

var letters = map[Piece]string{
	J: "J", L: "L", S: "S", Z: "Z", T: "T", I: "I", O: "O",
	None: "", Some: PlaceholderLetter,
}

// FromCode converts a game integer code. Codes outside 0..6 map to None.
func FromCode(code int) Piece {
	if code < 0 || code >= len(gameCodes) {
		return None
	}
	return gameCodes[code]
}

// FromLetter converts a single-letter identifier. Case is ignored.
func FromLetter(s string) Piece {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "J":
		return J
	case "L":
		return L
	case "S":
		return S
	case "Z":
		return Z
	case "T":
		return T
	case "I":
		return I
	case "O":
		return O
	case PlaceholderLetter:
		return Some
	}
	return None
}

// ToEngine converts any game-side identifier into a solver marker. It never
// fails: nil and anything it does not recognize become None.
func ToEngine(v any) Piece {
	switch x := v.(type) {
	case nil:
		return None
	case Piece:
		if x > Some {
			return None
		}
		return x
	case ID:
		return x.Piece()
	case *ID:
		if x == nil {
			return None
		}
		return x.Piece()
	case string:
		return FromLetter(x)
	case bool:
		if x {
			return Some
		}
		return None
	case int:
		return FromCode(x)
	case int8:
		return FromCode(int(x))
	case int16:
		return FromCode(int(x))
	case int32:
		return FromCode(int(x))
	case int64:
		if x < 0 || x > math.MaxInt8 {
			return None
		}
		return FromCode(int(x))
	case uint8:
		return FromCode(int(x))
	case uint16:
		return FromCode(int(x))
	case uint32:
		return FromCode(int(x))
	case uint64:
		if x > math.MaxInt8 {
			return None
		}
		return FromCode(int(x))
	case uint:
		if x > math.MaxInt8 {
			return None
		}
		return FromCode(int(x))
	case float64:
		return fromFloat(x)
	case float32:
		return fromFloat(float64(x))
	case map[string]any:
		return ToEngine(x["type"])
	}
	return None
}

func fromFloat(f float64) Piece {
	if f != math.Trunc(f) || f < 0 || f > math.MaxInt8 {
		return None
	}
	return FromCode(int(f))
}

// ToGame converts a marker back into the game's letter form. None maps to
// the null identifier.
func ToGame(p Piece) ID {
	if p == None || p > Some {
		return ID{}
	}
	return Letter(letters[p])
}

// Code returns the game integer code for a shape, or -1 for None and Some.
func (p Piece) Code() int {
	for i, gp := range gameCodes {
		if gp == p {
			return i
		}
	}
	return -1
}

// Shape reports whether p is one of the seven real shapes.
func (p Piece) Shape() bool {
	return p >= J && p <= O
}

func (p Piece) String() string {
	switch p {
	case None:
		return "None"
	case Some:
		return "Some"
	}
	if l, ok := letters[p]; ok {
		return l
	}
	return "Invalid"
}
