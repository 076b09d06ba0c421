// Package natsbus carries the dispatcher's envelopes over NATS. Commands
// arrive on one subject and every notification is published on another.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/domino14/tetron/dispatch"
)

type Subjects struct {
	Command string
	Notify  string
}

var DefaultSubjects = Subjects{Command: "tetron.cmd", Notify: "tetron.notify"}

// Boundary is the server side of a dispatcher.
type Boundary interface {
	SendRaw(data []byte) error
	Notifications() <-chan dispatch.Notification
}

// Serve subscribes to the command subject and publishes notifications until
// ctx is done or the notification stream closes. A command request with a
// reply subject is answered with "ok" or the rejection reason.
func Serve(ctx context.Context, nc *nats.Conn, b Boundary, subj Subjects) error {
	logger := zerolog.Ctx(ctx)
	sub, err := nc.Subscribe(subj.Command, func(m *nats.Msg) {
		logger.Debug().Int("bytes", len(m.Data)).Msg("recv")
		err := b.SendRaw(m.Data)
		if err != nil {
			// The dispatcher never saw it; reject on its behalf.
			logger.Warn().Err(err).Msg("command-dropped")
			publish(nc, subj.Notify, dispatch.Notification{Kind: dispatch.NoteError, Reason: err.Error()})
		}
		if m.Reply != "" {
			resp := "ok"
			if err != nil {
				resp = err.Error()
			}
			if rerr := m.Respond([]byte(resp)); rerr != nil {
				logger.Err(rerr).Msg("respond-failed")
			}
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subj.Command, err)
	}
	defer sub.Unsubscribe()
	if err := nc.Flush(); err != nil {
		return err
	}
	if err := nc.LastError(); err != nil {
		return err
	}
	logger.Info().Str("commands", subj.Command).Str("notify", subj.Notify).Msg("listening")

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-b.Notifications():
			if !ok {
				return nil
			}
			publish(nc, subj.Notify, n)
		}
	}
}

func publish(nc *nats.Conn, subject string, n dispatch.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		log.Err(err).Str("kind", n.Kind).Msg("encode-notification")
		return
	}
	if err := nc.Publish(subject, data); err != nil {
		log.Err(err).Str("kind", n.Kind).Msg("publish-notification")
	}
}

// Client is the caller side over NATS. It implements client.Transport.
type Client struct {
	nc    *nats.Conn
	subj  Subjects
	sub   *nats.Subscription
	notes chan dispatch.Notification
}

// Dial subscribes to the notify subject. Notifications that do not decode
// are logged and skipped.
func Dial(nc *nats.Conn, subj Subjects) (*Client, error) {
	c := &Client{nc: nc, subj: subj, notes: make(chan dispatch.Notification, 64)}
	sub, err := nc.Subscribe(subj.Notify, func(m *nats.Msg) {
		var n dispatch.Notification
		if err := json.Unmarshal(m.Data, &n); err != nil {
			log.Warn().Err(err).Str("data", string(m.Data)).Msg("bad-notification")
			return
		}
		select {
		case c.notes <- n:
		default:
			log.Warn().Str("kind", n.Kind).Msg("notification-dropped")
		}
	})
	if err != nil {
		return nil, err
	}
	c.sub = sub
	return c, nc.Flush()
}

func (c *Client) Send(cmd dispatch.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return c.nc.Publish(c.subj.Command, data)
}

func (c *Client) Notifications() <-chan dispatch.Notification {
	return c.notes
}

func (c *Client) Close() error {
	return c.sub.Unsubscribe()
}
