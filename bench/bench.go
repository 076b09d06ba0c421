// Package bench drives a solver through the full boundary with generated
// positions and reports throughput and latency.
package bench

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
	"lukechampine.com/frand"

	"github.com/domino14/tetron/client"
	"github.com/domino14/tetron/state"
	"github.com/domino14/tetron/stats"
)

type Options struct {
	Iterations int
	// Deadline is the thinking budget per run; 0 reads back immediately.
	Deadline   time.Duration
	MaxGarbage int
	RNG        *frand.RNG
}

// Report is the benchmark summary. Latencies are in milliseconds, measured
// by the dispatcher from acceptance to readback.
type Report struct {
	Iterations      int     `yaml:"iterations"`
	Failures        int     `yaml:"failures"`
	Anomalies       int     `yaml:"anomalies"`
	Events          int     `yaml:"events"`
	PiecesPerSecond float64 `yaml:"pps"`
	MeanMs          float64 `yaml:"mean_ms"`
	StdevMs         float64 `yaml:"stdev_ms"`
	MeanCI95Ms      float64 `yaml:"mean_ci95_ms"`
	P50Ms           float64 `yaml:"p50_ms"`
	P90Ms           float64 `yaml:"p90_ms"`
	P99Ms           float64 `yaml:"p99_ms"`
	MaxMs           float64 `yaml:"max_ms"`

	elapsed stats.Sample
}

// Solver is the part of client.Client the benchmark needs.
type Solver interface {
	Solve(ctx context.Context, snap *state.Snapshot, deadline time.Duration) (*client.Reply, error)
}

// Run solves opts.Iterations positions, one at a time. Positions are
// generated ahead of the solver on a separate goroutine.
func Run(ctx context.Context, s Solver, opts Options) (*Report, error) {
	logger := zerolog.Ctx(ctx)
	if opts.RNG == nil {
		opts.RNG = frand.New()
	}
	positions := NewPositions(opts.RNG, opts.MaxGarbage)
	snaps := make(chan *state.Snapshot, 8)
	rep := &Report{}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(snaps)
		for i := 0; i < opts.Iterations; i++ {
			select {
			case snaps <- positions.Next():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		for snap := range snaps {
			reply, err := s.Solve(ctx, snap, opts.Deadline)
			rep.Iterations++
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				rep.Failures++
				logger.Debug().Err(err).Int("iteration", rep.Iterations).Msg("bench-solve-failed")
				continue
			}
			rep.elapsed.Push(float64(reply.Elapsed.Microseconds()) / 1000)
			rep.Anomalies += len(reply.Anomalies)
			rep.Events += len(reply.Events)
			if rep.Iterations%50 == 0 {
				logger.Info().Int("iteration", rep.Iterations).
					Float64("mean-ms", rep.elapsed.Mean()).Msg("bench-progress")
			}
		}
		if dt := time.Since(start).Seconds(); dt > 0 {
			rep.PiecesPerSecond = float64(rep.Iterations-rep.Failures) / dt
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return rep, err
	}
	rep.summarize()
	return rep, nil
}

func (r *Report) summarize() {
	r.MeanMs = r.elapsed.Mean()
	r.StdevMs = r.elapsed.Stdev()
	r.MeanCI95Ms = r.elapsed.ConfidenceInterval(95)
	r.P50Ms = r.elapsed.Quantile(0.5)
	r.P90Ms = r.elapsed.Quantile(0.9)
	r.P99Ms = r.elapsed.Quantile(0.99)
	r.MaxMs = r.elapsed.Max()
}

// WriteYAML writes the summary.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(r)
}

// WriteHistogram draws the elapsed distribution.
func (r *Report) WriteHistogram(w io.Writer, bins int) error {
	if r.elapsed.Iterations() == 0 {
		_, err := fmt.Fprintln(w, "no samples")
		return err
	}
	h := histogram.Hist(bins, r.elapsed.Values())
	return histogram.Fprint(w, h, histogram.Linear(40))
}
