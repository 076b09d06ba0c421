package transcribe

import (
	"github.com/samber/lo"

	"github.com/domino14/tetron/engine"
)

// rotationsFromSpawn is the minimal-press policy for reaching each
// orientation from spawn.
var rotationsFromSpawn = [4][]Action{
	0: nil,
	1: {RotateCW},
	2: {RotateCW, RotateCW},
	3: {RotateCCW},
}

type recorder struct {
	events []Event
}

func (r *recorder) press(actions ...Action) {
	for _, a := range actions {
		r.events = append(r.events, Event{a, Down}, Event{a, Up})
	}
}

// Decode transcribes a placement result. It never fails; results outside
// the solver contract are reported in Transcript.Anomalies and transcribed
// as-is rather than clamped, so that a mismatch with the solver binary stays
// visible.
func Decode(r engine.Result) Transcript {
	var t Transcript
	rec := &recorder{}

	t.Anomalies = append(t.Anomalies, checkRotation("final_rotation", r.FinalRotation)...)
	t.Anomalies = append(t.Anomalies, checkRotation("spin_rotation", r.SpinRotation)...)
	if r.Column < 0 || r.Column >= engine.Width {
		t.Anomalies = append(t.Anomalies, &AnomalyError{
			Field: "column", Value: r.Column, Reason: "outside the board"})
	}

	rot := r.FinalRotation
	if r.Spin() {
		rot = r.SpinRotation
	}
	if rot >= 0 && rot < len(rotationsFromSpawn) {
		rec.press(rotationsFromSpawn[rot]...)
	}

	d := r.Column - engine.SpawnColumn
	if d < 0 {
		rec.press(lo.Times(-d, func(int) Action { return ShiftLeft })...)
	} else if d > 0 {
		rec.press(lo.Times(d, func(int) Action { return ShiftRight })...)
	}

	if r.Spin() {
		rec.press(SoftDrop)
		if r.FinalRotation == engine.NoRotation {
			t.Anomalies = append(t.Anomalies, &AnomalyError{
				Field: "final_rotation", Value: r.FinalRotation, Reason: "spin without a final orientation"})
		} else {
			switch delta := r.FinalRotation - r.SpinRotation; delta {
			case 1:
				rec.press(RotateCW)
			case -1:
				rec.press(RotateCCW)
			default:
				// A 180 kick or a wrap-around would need a kick table the
				// solver contract does not define.
				t.Anomalies = append(t.Anomalies, &AnomalyError{
					Field: "spin_delta", Value: delta, Reason: "only +1 and -1 are supported"})
			}
		}
	}

	rec.press(HardDrop)
	t.Events = rec.events
	return t
}

func checkRotation(field string, v int) []error {
	if v < engine.NoRotation || v > 3 {
		return []error{&AnomalyError{Field: field, Value: v, Reason: "not an orientation"}}
	}
	return nil
}
