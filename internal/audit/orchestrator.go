package audit

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/siteaudit/internal/clock/system"
	"github.com/JakeFAU/siteaudit/internal/logging"
	"github.com/JakeFAU/siteaudit/internal/metrics"
)

// Clock supplies timestamps for check timings.
type Clock interface {
	Now() time.Time
}

// Observer is told when each check starts and finishes. With parallelism
// above one, calls may arrive concurrently.
type Observer interface {
	CheckStarted(index, total int, name string)
	CheckFinished(index, total int, result Result, elapsed time.Duration)
}

// Options configure an Orchestrator.
type Options struct {
	// Parallelism above one runs that many checks at once. Results keep
	// registry order either way.
	Parallelism int
	Observer    Observer
	Clock       Clock
}

// Orchestrator runs a Registry against a Target.
type Orchestrator struct {
	opts   Options
	logger *zap.Logger
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(opts Options, logger *zap.Logger) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Orchestrator{
		opts:   opts,
		logger: logging.OrNop(logger).Named("orchestrator"),
	}
}

// RunAll executes every registration and returns one result per
// registration, in order. It never returns fewer results than registrations.
func (o *Orchestrator) RunAll(ctx context.Context, reg Registry, target Target) []Result {
	out := make([]Result, len(reg))
	if o.opts.Parallelism == 1 {
		for i := range reg {
			out[i] = o.runOne(ctx, i, len(reg), reg[i], target)
		}
		return out
	}

	var g errgroup.Group
	g.SetLimit(o.opts.Parallelism)
	for i := range reg {
		g.Go(func() error {
			out[i] = o.runOne(ctx, i, len(reg), reg[i], target)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (o *Orchestrator) runOne(ctx context.Context, index, total int, r Registration, target Target) Result {
	if o.opts.Observer != nil {
		o.opts.Observer.CheckStarted(index, total, r.Name)
	}
	start := o.opts.Clock.Now()
	res := o.invoke(ctx, r, target.input(r.Input))
	elapsed := o.opts.Clock.Now().Sub(start)

	metrics.ObserveCheck(r.Name, string(res.Status), elapsed)
	fields := []zap.Field{
		zap.String("check", r.Name),
		zap.String("status", string(res.Status)),
		zap.Duration("elapsed", elapsed),
	}
	if res.Status == StatusError {
		o.logger.Warn("check errored", append(fields, zap.String("error", res.Error))...)
	} else {
		o.logger.Debug("check finished", fields...)
	}
	if o.opts.Observer != nil {
		o.opts.Observer.CheckFinished(index, total, res, elapsed)
	}
	return res
}

// invoke runs a single check, converting errors and panics into ERROR results.
func (o *Orchestrator) invoke(ctx context.Context, r Registration, input string) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("check panicked",
				zap.String("check", r.Name),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			res = Failed(r.Name, fmt.Errorf("panic: %v", rec))
		}
	}()

	if r.Check == nil {
		return Failed(r.Name, fmt.Errorf("check %q is not implemented", r.Name))
	}
	got, err := r.Check.Run(ctx, input)
	if err != nil {
		return Failed(r.Name, err)
	}
	// Results always carry the registration name.
	got.Name = r.Name
	if got.Status == "" {
		got.Status = StatusError
		if got.Error == "" {
			got.Error = "check returned no status"
		}
	}
	if got.Status == StatusError && got.Error == "" {
		got.Error = "check reported ERROR without a message"
	}
	return got
}
