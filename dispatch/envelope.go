package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/domino14/tetron/state"
	"github.com/domino14/tetron/transcribe"
)

// Command names accepted on the inbound channel.
const (
	CmdRun   = "run"
	CmdStart = "start"
	CmdStop  = "stop"
)

// Notification kinds sent on the outbound channel.
const (
	NoteInitDone   = "init-done"
	NoteInitFailed = "init-failed"
	NoteElapsed    = "elapsed"
	NoteSolution   = "solution"
	NoteAnomaly    = "anomaly"
	NoteBusy       = "busy"
	NoteNotReady   = "not-ready"
	NoteStarted    = "started"
	NoteStopped    = "stopped"
	NoteError      = "error"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMalformed      = errors.New("malformed envelope")
)

// Command is one inbound request. Deadline is only meaningful for run; nil
// means the dispatcher's default.
type Command struct {
	Name     string
	Snapshot *state.Snapshot
	Deadline *time.Duration

	// err is set when the raw envelope could not be parsed; the loop
	// reports it on the outbound channel.
	err error
}

func Run(snap *state.Snapshot) Command {
	return Command{Name: CmdRun, Snapshot: snap}
}

// RunWithin is a run with an explicit thinking budget.
func RunWithin(snap *state.Snapshot, deadline time.Duration) Command {
	return Command{Name: CmdRun, Snapshot: snap, Deadline: &deadline}
}

func Start() Command { return Command{Name: CmdStart} }
func Stop() Command  { return Command{Name: CmdStop} }

func (c Command) String() string {
	if c.Name == CmdRun && c.Deadline != nil {
		return fmt.Sprintf("run(%v)", *c.Deadline)
	}
	return c.Name
}

// splitEnvelope reads `[name, args...]` or a bare `"name"`.
func splitEnvelope(data []byte) (string, []json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return name, nil, nil
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: empty envelope", ErrMalformed)
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: envelope name is not a string", ErrMalformed)
	}
	return name, parts[1:], nil
}

// ParseCommand decodes a wire envelope such as `["run", {...}, 250]`,
// `["start"]` or `"stop"`.
func ParseCommand(data []byte) (Command, error) {
	name, args, err := splitEnvelope(data)
	if err != nil {
		return Command{}, err
	}
	switch name {
	case CmdStart, CmdStop:
		return Command{Name: name}, nil
	case CmdRun:
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	if len(args) == 0 {
		return Command{}, fmt.Errorf("%w: run needs a snapshot", ErrMalformed)
	}
	snap, err := state.Decode(args[0])
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	cmd := Command{Name: CmdRun, Snapshot: snap}
	if len(args) > 1 && string(bytes.TrimSpace(args[1])) != "null" {
		var ms float64
		if err := json.Unmarshal(args[1], &ms); err != nil {
			return Command{}, fmt.Errorf("%w: deadline: %v", ErrMalformed, err)
		}
		d, err := DeadlineFromMs(ms)
		if err != nil {
			return Command{}, err
		}
		cmd.Deadline = &d
	}
	return cmd, nil
}

// MaxDeadlineMs is the largest deadline, in milliseconds, that fits a
// time.Duration.
const MaxDeadlineMs = float64(math.MaxInt64 / int64(time.Millisecond))

// DeadlineFromMs converts a wire deadline. Negative, NaN and
// unrepresentably large values are malformed.
func DeadlineFromMs(ms float64) (time.Duration, error) {
	if math.IsNaN(ms) || ms < 0 {
		return 0, fmt.Errorf("%w: negative deadline %v", ErrMalformed, ms)
	}
	if ms > MaxDeadlineMs {
		return 0, fmt.Errorf("%w: deadline %v ms out of range", ErrMalformed, ms)
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}

func (c Command) MarshalJSON() ([]byte, error) {
	parts := []any{c.Name}
	if c.Name == CmdRun {
		parts = append(parts, c.Snapshot)
		if c.Deadline != nil {
			parts = append(parts, c.Deadline.Milliseconds())
		}
	}
	return json.Marshal(parts)
}

func (c *Command) UnmarshalJSON(data []byte) error {
	cmd, err := ParseCommand(data)
	if err != nil {
		return err
	}
	*c = cmd
	return nil
}

// Notification is one outbound message. Only the fields matching Kind are
// set.
type Notification struct {
	Kind    string
	Elapsed time.Duration
	Events  []transcribe.Event
	Reason  string
	Reasons []string
}

func (n Notification) String() string {
	switch n.Kind {
	case NoteElapsed:
		return fmt.Sprintf("elapsed %dms", n.Elapsed.Milliseconds())
	case NoteSolution:
		return fmt.Sprintf("solution (%d events)", len(n.Events))
	case NoteInitFailed, NoteError:
		return n.Kind + ": " + n.Reason
	case NoteAnomaly:
		return fmt.Sprintf("anomaly %v", n.Reasons)
	}
	return n.Kind
}

func (n Notification) MarshalJSON() ([]byte, error) {
	parts := []any{n.Kind}
	switch n.Kind {
	case NoteElapsed:
		parts = append(parts, n.Elapsed.Milliseconds())
	case NoteSolution:
		events := n.Events
		if events == nil {
			events = []transcribe.Event{}
		}
		parts = append(parts, events)
	case NoteAnomaly:
		parts = append(parts, n.Reasons)
	case NoteInitFailed, NoteError:
		parts = append(parts, n.Reason)
	}
	return json.Marshal(parts)
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	name, args, err := splitEnvelope(data)
	if err != nil {
		return err
	}
	out := Notification{Kind: name}
	needArg := func() error {
		if len(args) == 0 {
			return fmt.Errorf("%w: %s needs an argument", ErrMalformed, name)
		}
		return nil
	}
	switch name {
	case NoteElapsed:
		if err := needArg(); err != nil {
			return err
		}
		var ms int64
		if err := json.Unmarshal(args[0], &ms); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		out.Elapsed = time.Duration(ms) * time.Millisecond
	case NoteSolution:
		if err := needArg(); err != nil {
			return err
		}
		if err := json.Unmarshal(args[0], &out.Events); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	case NoteAnomaly:
		if err := needArg(); err != nil {
			return err
		}
		if err := json.Unmarshal(args[0], &out.Reasons); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	case NoteInitFailed, NoteError:
		if err := needArg(); err != nil {
			return err
		}
		if err := json.Unmarshal(args[0], &out.Reason); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	case NoteInitDone, NoteBusy, NoteNotReady, NoteStarted, NoteStopped:
	default:
		return fmt.Errorf("%w: notification %q", ErrUnknownCommand, name)
	}
	*n = out
	return nil
}
