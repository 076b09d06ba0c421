package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/domino14/tetron/state"
	"github.com/domino14/tetron/transcribe"
)

var (
	solveRemote bool
	solveJSON   bool
)

var solveCmd = &cobra.Command{
	Use:   "solve <snapshot.json>",
	Short: "Solve one snapshot and print the key events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		snap, err := state.Decode(data)
		if err != nil {
			return err
		}

		ctx := log.Logger.WithContext(cmd.Context())
		c, cleanup, err := connectClient(ctx, cfg, solveRemote)
		if err != nil {
			return err
		}
		defer cleanup()

		reply, err := c.Solve(ctx, snap, cfg.Deadline)
		if err != nil {
			return err
		}
		for _, a := range reply.Anomalies {
			log.Warn().Str("anomaly", a).Msg("transcription-anomaly")
		}
		if solveJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(reply.Events)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "elapsed: %v\n", reply.Elapsed)
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(transcribe.Transcript{Events: reply.Events}.Keys(), " "))
		return nil
	},
}

func init() {
	solveCmd.Flags().BoolVar(&solveRemote, "remote", false, "talk to a bot over NATS instead of an in-process engine")
	solveCmd.Flags().BoolVar(&solveJSON, "json", false, "print the events as JSON")
}
