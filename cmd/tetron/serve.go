package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/domino14/tetron/dispatch"
	"github.com/domino14/tetron/transport/natsbus"
	"github.com/domino14/tetron/transport/stdio"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Serve the command boundary on NATS",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		nc, err := nats.Connect(cfg.NatsURL, nats.Name("tetron-bot"))
		if err != nil {
			return err
		}
		defer nc.Drain()
		return serve(cmd.Context(), func(ctx context.Context, d *dispatch.Dispatcher) error {
			return natsbus.Serve(ctx, nc, d, subjects(cfg))
		})
	},
}

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve the command boundary as JSON lines on stdin and stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), func(ctx context.Context, d *dispatch.Dispatcher) error {
			return stdio.Serve(ctx, os.Stdin, os.Stdout, d)
		})
	},
}

// serve runs a dispatcher and a transport side by side until a quit
// signal arrives or either of them fails.
func serve(ctx context.Context, transport func(context.Context, *dispatch.Dispatcher) error) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	d, err := newDispatcher(cfg)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Run(ctx)
	})
	g.Go(func() error {
		return transport(ctx, d)
	})
	err = g.Wait()
	log.Info().Msg("server gracefully shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
