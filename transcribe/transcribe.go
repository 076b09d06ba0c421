// Package transcribe turns the solver's placement result into the ordered
// key events a game client replays.
//
// Rotation policy: from spawn orientation 0, orientation 1 is one clockwise
// press, 2 is two clockwise presses (there is no 180 action) and 3 is one
// counter-clockwise press. Spins are realized by soft-dropping and then
// rotating once more.
package transcribe

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Action uint8

const (
	RotateCW Action = iota
	RotateCCW
	ShiftLeft
	ShiftRight
	SoftDrop
	HardDrop
)

var actionNames = [...]string{
	RotateCW:   "rotate-cw",
	RotateCCW:  "rotate-ccw",
	ShiftLeft:  "shift-left",
	ShiftRight: "shift-right",
	SoftDrop:   "soft-drop",
	HardDrop:   "hard-drop",
}

// keyNames are the raw keyboard names the browser client binds.
var keyNames = [...]string{
	RotateCW:   "up",
	RotateCCW:  "z",
	ShiftLeft:  "left",
	ShiftRight: "right",
	SoftDrop:   "down",
	HardDrop:   " ",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", a)
}

// Key returns the raw key name for the action.
func (a Action) Key() string {
	if int(a) < len(keyNames) {
		return keyNames[a]
	}
	return ""
}

func ParseAction(s string) (Action, error) {
	for i, n := range actionNames {
		if n == s {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

type Phase uint8

const (
	Down Phase = iota
	Up
)

func (p Phase) String() string {
	if p == Up {
		return "up"
	}
	return "down"
}

// Event is one key transition.
type Event struct {
	Action Action
	Phase  Phase
}

func (e Event) String() string {
	return e.Action.String() + "-" + e.Phase.String()
}

type wireEvent struct {
	Action string `json:"action"`
	Phase  string `json:"phase"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{Action: e.Action.String(), Phase: e.Phase.String()})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	a, err := ParseAction(w.Action)
	if err != nil {
		return err
	}
	switch w.Phase {
	case "down":
		e.Phase = Down
	case "up":
		e.Phase = Up
	default:
		return fmt.Errorf("unknown phase %q", w.Phase)
	}
	e.Action = a
	return nil
}

var ErrAnomaly = errors.New("anomalous solver result")

// AnomalyError describes a placement result the solver contract does not
// allow. The transcript is still produced unmodified; the anomaly is only
// reported.
type AnomalyError struct {
	Field  string
	Value  int
	Reason string
}

func (e *AnomalyError) Error() string {
	return fmt.Sprintf("%s=%d: %s", e.Field, e.Value, e.Reason)
}

func (e *AnomalyError) Unwrap() error {
	return ErrAnomaly
}

// Transcript is the decoded event sequence plus any anomalies spotted while
// decoding.
type Transcript struct {
	Events    []Event
	Anomalies []error
}

// Err joins the anomalies, or returns nil if there were none.
func (t Transcript) Err() error {
	return errors.Join(t.Anomalies...)
}

// Actions returns the logical actions, one per down/up pair.
func (t Transcript) Actions() []Action {
	out := make([]Action, 0, len(t.Events)/2)
	for _, e := range t.Events {
		if e.Phase == Down {
			out = append(out, e.Action)
		}
	}
	return out
}

// Keys renders the events as "<key>-<phase>" strings, e.g. "left-down".
func (t Transcript) Keys() []string {
	out := make([]string, len(t.Events))
	for i, e := range t.Events {
		out[i] = e.Action.Key() + "-" + e.Phase.String()
	}
	return out
}
