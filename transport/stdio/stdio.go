// Package stdio carries envelopes as line-delimited JSON, one command per
// input line and one notification per output line.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/domino14/tetron/dispatch"
)

type Boundary interface {
	SendRaw(data []byte) error
	Notifications() <-chan dispatch.Notification
}

// maxLine fits a snapshot with generous whitespace.
const maxLine = 1 << 20

// Serve reads commands from r and writes notifications to w until ctx is
// done or the notification stream closes. The end of input does not stop
// the writer: notifications for commands already sent are still written.
func Serve(ctx context.Context, r io.Reader, w io.Writer, b Boundary) error {
	logger := zerolog.Ctx(ctx)
	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLine)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if err := b.SendRaw([]byte(line)); err != nil {
				logger.Warn().Err(err).Msg("command-dropped")
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Err(err).Msg("reading-commands")
		}
		logger.Debug().Msg("input-closed")
	}()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-b.Notifications():
			if !ok {
				return nil
			}
			if err := enc.Encode(n); err != nil {
				return err
			}
		}
	}
}
