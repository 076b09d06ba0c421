package main

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/domino14/tetron/client"
	"github.com/domino14/tetron/config"
	"github.com/domino14/tetron/dispatch"
	"github.com/domino14/tetron/engine/loaders"
	"github.com/domino14/tetron/metrics"
	"github.com/domino14/tetron/transport/natsbus"
)

const retryDelay = 100 * time.Millisecond

func newDispatcher(c *config.Config) (*dispatch.Dispatcher, error) {
	loader, err := loaders.FromConfig(c)
	if err != nil {
		return nil, err
	}
	m, err := metrics.NewLifecycle()
	if err != nil {
		return nil, err
	}
	return dispatch.New(loader, dispatch.Options{
		DefaultDeadline: c.Deadline,
		SearchWidth:     c.SearchWidth,
		InboxSize:       c.InboxSize,
		Metrics:         m,
	}), nil
}

func newClient(t client.Transport, c *config.Config) *client.Client {
	return client.New(t,
		client.WithRetry(c.RetryAttempts, retryDelay),
		client.WithTimeout(c.RequestTimeout))
}

func subjects(c *config.Config) natsbus.Subjects {
	return natsbus.Subjects{Command: c.CommandSubject, Notify: c.NotifySubject}
}

// connectClient returns a client and a cleanup func. With remote set the
// client talks to a bot over NATS; otherwise a dispatcher runs in process
// until ctx is done.
func connectClient(ctx context.Context, c *config.Config, remote bool) (*client.Client, func(), error) {
	if remote {
		nc, err := nats.Connect(c.NatsURL, nats.Name("tetron-client"))
		if err != nil {
			return nil, nil, err
		}
		t, err := natsbus.Dial(nc, subjects(c))
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return newClient(t, c), func() {
			t.Close()
			nc.Close()
		}, nil
	}

	d, err := newDispatcher(c)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Err(err).Msg("dispatcher-exited")
		}
	}()
	return newClient(d, c), func() {
		cancel()
		<-d.Done()
	}, nil
}
