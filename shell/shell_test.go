package shell

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/domino14/tetron/client"
	"github.com/domino14/tetron/dispatch"
	"github.com/domino14/tetron/engine"
	"github.com/domino14/tetron/engine/scripted"
	"github.com/domino14/tetron/piece"
)

func TestExtractFields(t *testing.T) {
	is := is.New(t)
	type testdata struct {
		line   string
		expCmd *shellcmd
		expErr error
	}
	cases := []testdata{
		{"", nil, errNoData},
		{"run -deadline 500ms",
			&shellcmd{"run", nil, map[string]string{"deadline": "500ms"}},
			nil},
		{"hold none",
			&shellcmd{"hold", []string{"none"}, map[string]string{}},
			nil},
		{"cell 3 19 off -deadline 1s ",
			&shellcmd{"cell",
				[]string{"3", "19", "off"},
				map[string]string{"deadline": "1s"}},
			nil,
		},
		{"run -deadline",
			nil, errWrongOptionSyntax},
	}
	for _, t := range cases {
		cmd, err := extractFields(t.line)
		is.Equal(cmd, t.expCmd)
		is.Equal(err, t.expErr)
	}
}

var placement = engine.Result{FinalRotation: 1, SpinRotation: engine.NoRotation, Column: 7}

func newController(t *testing.T) (*ShellController, *scripted.Solver) {
	t.Helper()
	s := scripted.New(placement)
	ctx, cancel := context.WithCancel(context.Background())
	d := dispatch.New(scripted.Loader(s, 0), dispatch.DefaultOptions())
	go d.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-d.Done()
	})
	c := client.New(d, client.WithRetry(10, 10*time.Millisecond))
	if err := c.WaitReady(ctx); err != nil {
		t.Fatal(err)
	}
	return NewShellController(c, nil, 10*time.Millisecond), s
}

func TestEditSnapshot(t *testing.T) {
	is := is.New(t)
	sc, _ := newController(t)
	ctx := context.Background()

	_, err := sc.Execute(ctx, "piece T")
	is.NoErr(err)
	is.Equal(sc.snap.Piece, piece.Letter("T"))

	_, err = sc.Execute(ctx, "queue IOJ")
	is.NoErr(err)
	is.Equal(sc.snap.Queue, []piece.ID{piece.Letter("I"), piece.Letter("O"), piece.Letter("J")})

	_, err = sc.Execute(ctx, "hold L")
	is.NoErr(err)
	is.Equal(*sc.snap.Hold, piece.Letter("L"))
	_, err = sc.Execute(ctx, "hold none")
	is.NoErr(err)
	is.True(sc.snap.Hold == nil)

	_, err = sc.Execute(ctx, "cell 0 19")
	is.NoErr(err)
	is.Equal(sc.snap.Filled(), 1)
	_, err = sc.Execute(ctx, "cell 0 19 off")
	is.NoErr(err)
	is.Equal(sc.snap.Filled(), 0)

	_, err = sc.Execute(ctx, "cell 10 0")
	is.True(err != nil)
	_, err = sc.Execute(ctx, "piece X")
	is.True(err != nil)
	_, err = sc.Execute(ctx, "frobnicate")
	is.True(err != nil)
	_, err = sc.Execute(ctx, "random")
	is.True(err != nil) // no generator given
}

func TestRunAndKeys(t *testing.T) {
	is := is.New(t)
	sc, s := newController(t)
	ctx := context.Background()

	_, err := sc.Execute(ctx, "keys")
	is.True(err != nil)

	_, err = sc.Execute(ctx, "piece T")
	is.NoErr(err)
	resp, err := sc.Execute(ctx, "run -deadline 5ms")
	is.NoErr(err)
	is.True(strings.Contains(resp.String(), "rotate-cw shift-right shift-right shift-right hard-drop"))
	is.Equal(len(s.Inputs()), 1)

	resp, err = sc.Execute(ctx, "keys")
	is.NoErr(err)
	is.True(strings.HasPrefix(resp.String(), "up-down up-up"))

	_, err = sc.Execute(ctx, "run -deadline soon")
	is.True(err != nil)
}

func TestStartStop(t *testing.T) {
	is := is.New(t)
	sc, s := newController(t)
	ctx := context.Background()

	resp, err := sc.Execute(ctx, "stop")
	is.NoErr(err)
	is.Equal(resp.String(), "stopped")
	is.True(!s.Searching())

	resp, err = sc.Execute(ctx, "start")
	is.NoErr(err)
	is.Equal(resp.String(), "started")
	is.True(s.Searching())
}

func TestLoadSnapshot(t *testing.T) {
	is := is.New(t)
	sc, _ := newController(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "snap.json")
	is.NoErr(os.WriteFile(path, []byte(`{"piece": 3, "queue": [1, 2], "hold": null}`), 0o644))
	_, err := sc.Execute(ctx, "load "+path)
	is.NoErr(err)
	is.Equal(sc.snap.Piece, piece.Code(3))
	is.Equal(len(sc.snap.Queue), 2)

	resp, err := sc.Execute(ctx, "snapshot")
	is.NoErr(err)
	is.True(strings.Contains(resp.String(), `"piece":3`))
}

func TestScript(t *testing.T) {
	is := is.New(t)
	sc, s := newController(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "run.lua")
	script := `
tetron_exec("piece T")
local actions = tetron_run(5)
if actions[1] ~= "rotate-cw" then
  error("unexpected first action " .. tostring(actions[1]))
end
if #actions ~= 5 then
  error("expected 5 actions, got " .. #actions)
end
`
	is.NoErr(os.WriteFile(path, []byte(script), 0o644))
	_, err := sc.Execute(ctx, "script "+path)
	is.NoErr(err)
	is.Equal(len(s.Inputs()), 1)
	is.True(sc.lastReply != nil)

	is.NoErr(os.WriteFile(path, []byte(`error("boom")`), 0o644))
	_, err = sc.Execute(ctx, "script "+path)
	is.True(err != nil)
}
