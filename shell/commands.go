package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/domino14/tetron/engine"
	"github.com/domino14/tetron/piece"
	"github.com/domino14/tetron/state"
	"github.com/domino14/tetron/transcribe"
)

type handlerFunc func(sc *ShellController, ctx context.Context, cmd *shellcmd) (*Response, error)

var commands map[string]handlerFunc

func init() {
	commands = map[string]handlerFunc{
		"help":     (*ShellController).help,
		"show":     (*ShellController).show,
		"clear":    (*ShellController).clear,
		"board":    (*ShellController).board,
		"cell":     (*ShellController).cell,
		"piece":    (*ShellController).setPiece,
		"queue":    (*ShellController).setQueue,
		"hold":     (*ShellController).setHold,
		"random":   (*ShellController).random,
		"snapshot": (*ShellController).snapshot,
		"load":     (*ShellController).load,
		"run":      (*ShellController).run,
		"keys":     (*ShellController).keys,
		"start":    (*ShellController).start,
		"stop":     (*ShellController).stop,
		"script":   (*ShellController).script,
	}
}

func (sc *ShellController) help(ctx context.Context, cmd *shellcmd) (*Response, error) {
	if len(cmd.args) == 0 {
		return msg(usage()), nil
	}
	return msg(usageTopic(cmd.args[0])), nil
}

func (sc *ShellController) show(ctx context.Context, cmd *shellcmd) (*Response, error) {
	return msg(sc.snap.String()), nil
}

func (sc *ShellController) clear(ctx context.Context, cmd *shellcmd) (*Response, error) {
	sc.snap = state.NewSnapshot()
	return msg("cleared"), nil
}

// board <file> reads a #/. text board; the pieces are kept.
func (sc *ShellController) board(ctx context.Context, cmd *shellcmd) (*Response, error) {
	if len(cmd.args) != 1 {
		return nil, errors.New("usage: board <file>")
	}
	data, err := os.ReadFile(cmd.args[0])
	if err != nil {
		return nil, err
	}
	cells, err := state.ParseBoard(string(data))
	if err != nil {
		return nil, err
	}
	sc.snap.Grid = cells
	return msg(sc.snap.BoardString()), nil
}

// cell <col> <row> [on|off]
func (sc *ShellController) cell(ctx context.Context, cmd *shellcmd) (*Response, error) {
	if len(cmd.args) < 2 {
		return nil, errors.New("usage: cell <col> <row> [on|off]")
	}
	col, err := strconv.Atoi(cmd.args[0])
	if err != nil {
		return nil, err
	}
	row, err := strconv.Atoi(cmd.args[1])
	if err != nil {
		return nil, err
	}
	if col < 0 || col >= engine.Width || row < 0 || row >= engine.Height {
		return nil, fmt.Errorf("cell (%d, %d) is off the board", col, row)
	}
	if len(sc.snap.Grid) != engine.Cells {
		return nil, fmt.Errorf("grid has %d cells; clear it first", len(sc.snap.Grid))
	}
	on := true
	if len(cmd.args) > 2 {
		on = cmd.args[2] != "off"
	}
	sc.snap.Set(col, row, on)
	return nil, nil
}

func parseID(s string) (piece.ID, error) {
	if code, err := strconv.Atoi(s); err == nil {
		return piece.Code(code), nil
	}
	id := piece.Letter(s)
	if id.Piece() == piece.None {
		return id, fmt.Errorf("%q is not a piece", s)
	}
	return id, nil
}

func (sc *ShellController) setPiece(ctx context.Context, cmd *shellcmd) (*Response, error) {
	if len(cmd.args) != 1 {
		return nil, errors.New("usage: piece <letter|code>")
	}
	id, err := parseID(cmd.args[0])
	if err != nil {
		return nil, err
	}
	sc.snap.Piece = id
	return nil, nil
}

// queue IOJ or queue I O J
func (sc *ShellController) setQueue(ctx context.Context, cmd *shellcmd) (*Response, error) {
	var tokens []string
	for _, a := range cmd.args {
		if _, err := strconv.Atoi(a); err == nil {
			tokens = append(tokens, a)
			continue
		}
		tokens = append(tokens, lo.Map([]rune(a), func(r rune, _ int) string { return string(r) })...)
	}
	queue := make([]piece.ID, 0, len(tokens))
	for _, tok := range tokens {
		id, err := parseID(tok)
		if err != nil {
			return nil, err
		}
		queue = append(queue, id)
	}
	sc.snap.Queue = queue
	return nil, nil
}

func (sc *ShellController) setHold(ctx context.Context, cmd *shellcmd) (*Response, error) {
	if len(cmd.args) != 1 {
		return nil, errors.New("usage: hold <letter|code|none>")
	}
	if strings.EqualFold(cmd.args[0], "none") {
		sc.snap.Hold = nil
		return nil, nil
	}
	id, err := parseID(cmd.args[0])
	if err != nil {
		return nil, err
	}
	sc.snap.Hold = &id
	return nil, nil
}

func (sc *ShellController) random(ctx context.Context, cmd *shellcmd) (*Response, error) {
	if sc.positions == nil {
		return nil, errors.New("no position generator")
	}
	sc.snap = sc.positions.Next()
	return msg(sc.snap.String()), nil
}

func (sc *ShellController) snapshot(ctx context.Context, cmd *shellcmd) (*Response, error) {
	data, err := json.Marshal(sc.snap)
	if err != nil {
		return nil, err
	}
	return msg(string(data)), nil
}

// load <file> reads a JSON snapshot as the game client sends it.
func (sc *ShellController) load(ctx context.Context, cmd *shellcmd) (*Response, error) {
	if len(cmd.args) != 1 {
		return nil, errors.New("usage: load <snapshot.json>")
	}
	data, err := os.ReadFile(cmd.args[0])
	if err != nil {
		return nil, err
	}
	snap, err := state.Decode(data)
	if err != nil {
		return nil, err
	}
	sc.snap = snap
	return msg(sc.snap.String()), nil
}

// run [-deadline 500ms]
func (sc *ShellController) run(ctx context.Context, cmd *shellcmd) (*Response, error) {
	deadline := sc.deadline
	if d, ok := cmd.options["deadline"]; ok {
		var err error
		deadline, err = time.ParseDuration(d)
		if err != nil {
			return nil, err
		}
	}
	reply, err := sc.client.Solve(ctx, sc.snap, deadline)
	if err != nil {
		return nil, err
	}
	sc.lastReply = reply
	var b strings.Builder
	fmt.Fprintf(&b, "elapsed: %v\n", reply.Elapsed)
	for _, a := range reply.Anomalies {
		fmt.Fprintf(&b, "anomaly: %s\n", a)
	}
	actions := lo.FilterMap(reply.Events, func(e transcribe.Event, _ int) (string, bool) {
		return e.Action.String(), e.Phase == transcribe.Down
	})
	b.WriteString(strings.Join(actions, " "))
	return msg(b.String()), nil
}

// keys prints the last solution as raw key names.
func (sc *ShellController) keys(ctx context.Context, cmd *shellcmd) (*Response, error) {
	if sc.lastReply == nil {
		return nil, errors.New("nothing has been run yet")
	}
	return msg(strings.Join(transcribe.Transcript{Events: sc.lastReply.Events}.Keys(), " ")), nil
}

func (sc *ShellController) start(ctx context.Context, cmd *shellcmd) (*Response, error) {
	if err := sc.client.Start(ctx); err != nil {
		return nil, err
	}
	return msg("started"), nil
}

func (sc *ShellController) stop(ctx context.Context, cmd *shellcmd) (*Response, error) {
	if err := sc.client.Stop(ctx); err != nil {
		return nil, err
	}
	return msg("stopped"), nil
}
