package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog/log"

	"github.com/domino14/tetron/bench"
	"github.com/domino14/tetron/client"
	"github.com/domino14/tetron/state"
)

var (
	errNoData            = errors.New("no data in command")
	errWrongOptionSyntax = errors.New("wrong format; all options need arguments")
)

type shellcmd struct {
	cmd     string
	args    []string
	options map[string]string
}

type Response struct {
	message string
}

func msg(message string) *Response {
	return &Response{message: message}
}

func (r *Response) String() string {
	if r == nil {
		return ""
	}
	return r.message
}

// ShellController edits a snapshot and sends it through a client.
type ShellController struct {
	l *readline.Instance

	client    *client.Client
	snap      *state.Snapshot
	positions *bench.Positions
	deadline  time.Duration
	lastReply *client.Reply
}

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func showMessage(msg string, w io.Writer) {
	io.WriteString(w, msg)
	io.WriteString(w, "\n")
}

func NewShellController(c *client.Client, positions *bench.Positions, deadline time.Duration) *ShellController {
	return &ShellController{
		client:    c,
		snap:      state.NewSnapshot(),
		positions: positions,
		deadline:  deadline,
	}
}

func extractFields(line string) (*shellcmd, error) {
	fields, err := shellquote.Split(line)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errNoData
	}
	cmd := fields[0]
	var args []string
	options := map[string]string{}
	for idx := 1; idx < len(fields); idx++ {
		if strings.HasPrefix(fields[idx], "-") {
			if idx == len(fields)-1 {
				return nil, errWrongOptionSyntax
			}
			options[strings.TrimPrefix(fields[idx], "-")] = fields[idx+1]
			idx++
			continue
		}
		args = append(args, fields[idx])
	}
	return &shellcmd{cmd: cmd, args: args, options: options}, nil
}

func (sc *ShellController) showMessage(msg string) {
	showMessage(msg, sc.l.Stdout())
}

func (sc *ShellController) showError(err error) {
	sc.showMessage("Error: " + err.Error())
}

// Execute runs one command line.
func (sc *ShellController) Execute(ctx context.Context, line string) (*Response, error) {
	cmd, err := extractFields(line)
	if err != nil {
		return nil, err
	}
	handler, ok := commands[cmd.cmd]
	if !ok {
		return nil, fmt.Errorf("command %q not found", cmd.cmd)
	}
	return handler(sc, ctx, cmd)
}

// Loop reads commands until exit, EOF or interrupt, then signals sig.
func (sc *ShellController) Loop(ctx context.Context, sig chan os.Signal) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36mtetron>\033[0m ",
		HistoryFile:     "/tmp/tetron_readline.tmp",
		EOFPrompt:       "exit",
		InterruptPrompt: "^C",
		AutoComplete:    NewShellCompleter(),

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return err
	}
	sc.l = l
	defer sc.l.Close()

	for {
		line, err := sc.l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				sig <- syscall.SIGINT
				break
			}
			continue
		} else if err == io.EOF {
			sig <- syscall.SIGINT
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			sig <- syscall.SIGINT
			break
		}
		resp, err := sc.Execute(ctx, line)
		if err != nil {
			sc.showError(err)
			continue
		}
		if resp != nil && resp.message != "" {
			sc.showMessage(resp.message)
		}
	}
	log.Debug().Msg("exiting-readline-loop")
	return nil
}
