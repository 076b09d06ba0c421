package piece

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is a piece identifier as the game client sends it: a letter ("T"), an
// integer code (6), an object with a type field ({"type": 6}) or null. The
// original form is kept so it can be echoed back unchanged.
type ID struct {
	raw any
}

// Letter builds a letter-form identifier.
func Letter(s string) ID {
	return ID{raw: s}
}

// Code builds an integer-form identifier.
func Code(c int) ID {
	return ID{raw: c}
}

// NewID wraps an arbitrary game value.
func NewID(v any) ID {
	if id, ok := v.(ID); ok {
		return id
	}
	return ID{raw: v}
}

// Piece returns the solver marker for this identifier.
func (id ID) Piece() Piece {
	if id.raw == nil {
		return None
	}
	return ToEngine(id.raw)
}

// IsNull reports whether the identifier carries no value at all.
func (id ID) IsNull() bool {
	return id.raw == nil
}

// Raw returns the identifier as decoded from the game.
func (id ID) Raw() any {
	return id.raw
}

func (id ID) String() string {
	if id.raw == nil {
		return "null"
	}
	return fmt.Sprintf("%v", id.raw)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		id.raw = nil
		return nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("piece id: %w", err)
	}
	id.raw = normalize(v)
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.raw)
}

// normalize turns json.Number into int where possible so that codes stay
// integers when echoed back.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i)
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	}
	return v
}
