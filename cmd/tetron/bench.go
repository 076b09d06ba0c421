package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/domino14/tetron/bench"
	"github.com/domino14/tetron/engine/randomengine"
)

var (
	benchIterations int
	benchMaxGarbage int
	benchBins       int
	benchRemote     bool
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run generated positions through the engine and report latency",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := log.Logger.WithContext(cmd.Context())
		c, cleanup, err := connectClient(ctx, cfg, benchRemote)
		if err != nil {
			return err
		}
		defer cleanup()
		if !benchRemote {
			// Keep the load out of the first sample.
			if err := c.WaitReady(ctx); err != nil {
				return err
			}
		}

		report, err := bench.Run(ctx, c, bench.Options{
			Iterations: benchIterations,
			Deadline:   cfg.Deadline,
			MaxGarbage: benchMaxGarbage,
			RNG:        randomengine.NewRNG(cfg.RandomSeed),
		})
		if err != nil {
			return err
		}
		if err := report.WriteYAML(cmd.OutOrStdout()); err != nil {
			return err
		}
		if benchBins > 0 {
			return report.WriteHistogram(cmd.OutOrStdout(), benchBins)
		}
		return nil
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchIterations, "iterations", 100, "positions to solve")
	benchCmd.Flags().IntVar(&benchMaxGarbage, "max-garbage", 6, "most garbage rows per position")
	benchCmd.Flags().IntVar(&benchBins, "bins", 10, "latency histogram bins (0 for none)")
	benchCmd.Flags().BoolVar(&benchRemote, "remote", false, "benchmark a bot over NATS instead of an in-process engine")
}
