package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/domino14/tetron/bench"
	"github.com/domino14/tetron/engine/randomengine"
	"github.com/domino14/tetron/shell"
)

var (
	shellRemote     bool
	shellMaxGarbage int
)

var shellCmd = &cobra.Command{
	Use:   "shell [command]",
	Short: "Edit snapshots and run them interactively",
	Long: `Without arguments, start an interactive shell. With arguments, run
them as a single shell command and exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := log.Logger.WithContext(cmd.Context())
		c, cleanup, err := connectClient(ctx, cfg, shellRemote)
		if err != nil {
			return err
		}
		defer cleanup()

		positions := bench.NewPositions(randomengine.NewRNG(cfg.RandomSeed), shellMaxGarbage)
		sc := shell.NewShellController(c, positions, cfg.Deadline)

		line := strings.TrimSpace(strings.Join(args, " "))
		if line != "" {
			resp, err := sc.Execute(ctx, line)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.String())
			return nil
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			if err := sc.Loop(ctx, sig); err != nil {
				log.Err(err).Msg("shell-loop")
				sig <- syscall.SIGINT
			}
		}()
		<-sig
		log.Info().Msg("got quit signal...")
		return nil
	},
}

func init() {
	shellCmd.Flags().BoolVar(&shellRemote, "remote", false, "talk to a bot over NATS instead of an in-process engine")
	shellCmd.Flags().IntVar(&shellMaxGarbage, "max-garbage", 6, "most garbage rows in random positions")
}
