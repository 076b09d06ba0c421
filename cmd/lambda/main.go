package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/domino14/tetron/client"
	"github.com/domino14/tetron/config"
	"github.com/domino14/tetron/dispatch"
	"github.com/domino14/tetron/engine/loaders"
	"github.com/domino14/tetron/state"
	"github.com/domino14/tetron/transcribe"
)

var cfg *config.Config
var nc *nats.Conn

const HardTimeLimit = 10 * time.Second // max thinking time per request

// Event is one solve request.
type Event struct {
	Snapshot     json.RawMessage `json:"snapshot"`
	DeadlineMs   *float64        `json:"deadline_ms"`
	ReplyChannel string          `json:"reply_channel"`
	RequestID    string          `json:"request_id"`
}

// Response carries the key events. It is also what is sent on the reply
// channel.
type Response struct {
	RequestID string             `json:"request_id"`
	ElapsedMs float64            `json:"elapsed_ms"`
	Events    []transcribe.Event `json:"events"`
	Anomalies []string           `json:"anomalies,omitempty"`
}

// deadline is the event's budget, or the configured one when the event
// names none, capped at HardTimeLimit. Zero is kept: it reads back at once.
func deadline(evt Event) (time.Duration, error) {
	d := cfg.Deadline
	if evt.DeadlineMs != nil {
		var err error
		d, err = dispatch.DeadlineFromMs(*evt.DeadlineMs)
		if err != nil {
			return 0, err
		}
	}
	return min(d, HardTimeLimit), nil
}

func HandleRequest(ctx context.Context, evt Event) (*Response, error) {
	// Every invocation pays for its own engine load; the function keeps no
	// state between requests.
	logger := log.With().Str("requestID", evt.RequestID).Logger()
	ctx = logger.WithContext(ctx)

	snap, err := state.Decode(evt.Snapshot)
	if err != nil {
		return nil, err
	}
	dl, err := deadline(evt)
	if err != nil {
		return nil, err
	}
	l, err := loaders.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d := dispatch.New(l, dispatch.Options{
		DefaultDeadline: cfg.Deadline,
		SearchWidth:     cfg.SearchWidth,
	})
	go d.Run(ctx)
	defer func() {
		cancel()
		<-d.Done()
	}()

	c := client.New(d, client.WithRetry(cfg.RetryAttempts, 100*time.Millisecond),
		client.WithTimeout(cfg.RequestTimeout))
	if err := c.WaitReady(ctx); err != nil {
		return nil, err
	}
	logger.Info().Dur("deadline", dl).Int("filled", snap.Filled()).Msg("solving")
	reply, err := c.Solve(ctx, snap, dl)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		RequestID: evt.RequestID,
		ElapsedMs: float64(reply.Elapsed) / float64(time.Millisecond),
		Events:    reply.Events,
		Anomalies: reply.Anomalies,
	}

	if evt.ReplyChannel != "" && nc != nil {
		data, err := json.Marshal(resp)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("solve-success-sending-via-nats")
		err = retry.Do(
			func() error {
				// Only the acknowledgement matters, not its content.
				_, err := nc.Request(evt.ReplyChannel, data, 3*time.Second)
				return err
			},
			retry.Context(ctx),
			retry.Attempts(5),
			retry.Delay(100*time.Millisecond),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				logger.Err(err).Uint("n", n).Msg("did-not-receive-ack-try-again")
			}),
		)
		if err != nil {
			logger.Err(err).Msg("reply-failed")
		}
	}
	logger.Info().Msg("exiting-fn")
	return resp, nil
}

func main() {
	cfg = &config.Config{}
	if err := cfg.Load(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	var err error
	nc, err = nats.Connect(cfg.NatsURL)
	if err != nil {
		log.Fatal().AnErr("natsConnectErr", err).Msg(":(")
	}

	lambda.Start(HandleRequest)
}
