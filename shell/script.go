package shell

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/domino14/tetron/transcribe"
)

type scriptEnv struct {
	sc  *ShellController
	ctx context.Context
}

func getEnv(L *lua.LState) *scriptEnv {
	shell := L.GetGlobal("tetron_shell")
	ud, ok := shell.(*lua.LUserData)
	if !ok {
		panic("luserdata not right type")
	}
	env, ok := ud.Value.(*scriptEnv)
	if !ok {
		panic("script env not right type")
	}
	return env
}

func luaExec(L *lua.LState) int {
	line := L.ToString(1)
	env := getEnv(L)
	r, err := env.sc.Execute(env.ctx, line)
	if err != nil {
		log.Err(err).Str("line", line).Msg("error-executing-command")
		L.Push(lua.LString("ERROR: " + err.Error()))
		return 1
	}
	L.Push(lua.LString(r.String()))
	// return number of results pushed to stack.
	return 1
}

func luaRun(L *lua.LState) int {
	ms := L.OptInt(1, 0)
	env := getEnv(L)
	deadline := env.sc.deadline
	if ms > 0 {
		deadline = time.Duration(ms) * time.Millisecond
	}
	reply, err := env.sc.client.Solve(env.ctx, env.sc.snap, deadline)
	if err != nil {
		log.Err(err).Msg("error-executing-run")
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	env.sc.lastReply = reply
	tbl := L.NewTable()
	for _, e := range reply.Events {
		if e.Phase == transcribe.Down {
			tbl.Append(lua.LString(e.Action.String()))
		}
	}
	L.Push(tbl)
	return 1
}

func (sc *ShellController) script(ctx context.Context, cmd *shellcmd) (*Response, error) {
	if len(cmd.args) == 0 {
		return nil, errors.New("need arguments for script")
	}
	filepath := cmd.args[0]

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	lsc := L.NewUserData()
	lsc.Value = &scriptEnv{sc: sc, ctx: ctx}

	L.SetGlobal("tetron_shell", lsc)
	L.SetGlobal("tetron_exec", L.NewFunction(luaExec))
	L.SetGlobal("tetron_run", L.NewFunction(luaRun))

	if err := L.DoFile(filepath); err != nil {
		log.Err(err).Msg("script-failed")
		return nil, err
	}
	return nil, nil
}
