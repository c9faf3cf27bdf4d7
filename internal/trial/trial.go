// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package trial drives the differential build check. It builds the
// untouched document once to obtain a baseline, then runs one trial per
// declared package: write the variant without that package, rebuild it,
// compare against the baseline. Trials run concurrently up to a worker
// limit and share nothing but the read-only baseline; their outcomes are
// folded into a report by a single goroutine.
package trial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/pkgprune/internal/compare"
	"github.com/pdiddy/pkgprune/internal/toolchain"
	"github.com/pdiddy/pkgprune/internal/variant"
	"github.com/pdiddy/pkgprune/internal/workspace"
	"github.com/pdiddy/pkgprune/pkg/types"
)

// ErrPrecondition is returned when the untouched document does not build.
// No trial runs in that case.
var ErrPrecondition = errors.New("initial build failed")

// Builder compiles a source file. toolchain.Driver is the production
// implementation.
type Builder interface {
	Build(ctx context.Context, sourcePath string) (types.BuildResult, error)
}

// Options configures an Orchestrator.
type Options struct {
	// Workers is the maximum number of concurrent trials, clamped to
	// [1, runtime.NumCPU()].
	Workers int

	// Logger receives structured diagnostics. Nil disables logging.
	Logger *zap.Logger

	// Progress, when set, receives one line per finished trial.
	Progress io.Writer
}

// Orchestrator runs the baseline build and all trials for one document.
type Orchestrator struct {
	builder  Builder
	strategy compare.Strategy
	ws       *workspace.Manager
	workers  int
	log      *zap.Logger
	progress io.Writer
}

// New creates an orchestrator.
func New(b Builder, s compare.Strategy, ws *workspace.Manager, opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		builder:  b,
		strategy: s,
		ws:       ws,
		workers:  clampWorkers(opts.Workers),
		log:      log.Named("trial"),
		progress: opts.Progress,
	}
}

// Workers returns the effective worker limit.
func (o *Orchestrator) Workers() int { return o.workers }

func clampWorkers(n int) int {
	return min(max(1, n), runtime.NumCPU())
}

// Run checks every package declared in doc. It fails with ErrPrecondition
// when the baseline does not build, and with the underlying error when a
// tool cannot be started or ctx is cancelled. Per-trial build failures and
// output differences are reported as outcomes, never as errors.
func (o *Orchestrator) Run(ctx context.Context, doc types.SourceDocument) (*Report, error) {
	baseSlot, err := o.ws.Allocate("baseline", doc.Text)
	if err != nil {
		return nil, fmt.Errorf("preparing baseline: %w", err)
	}
	defer o.release(baseSlot)

	res, err := o.builder.Build(ctx, baseSlot.Source())
	if err != nil {
		return nil, fmt.Errorf("baseline build: %w", err)
	}
	if !res.OK {
		return nil, fmt.Errorf("%w: %s", ErrPrecondition, res.Diagnostic)
	}
	baseline, err := o.strategy.Capture(ctx, res.ArtifactPath, baseSlot.PagesDir())
	if err != nil {
		if fatal(ctx, err) {
			return nil, fmt.Errorf("capturing baseline: %w", err)
		}
		return nil, fmt.Errorf("%w: capturing baseline: %w", ErrPrecondition, err)
	}
	o.log.Debug("baseline ready",
		zap.String("mode", string(o.strategy.Mode())),
		zap.String("digest", baseline.Digest),
		zap.Int("pages", len(baseline.Pages)))

	var variants []types.Variant
	for v, err := range variant.Candidates(doc) {
		if err != nil {
			return nil, fmt.Errorf("generating variants: %w", err)
		}
		variants = append(variants, v)
	}
	o.log.Debug("dispatching trials", zap.Int("trials", len(variants)), zap.Int("workers", o.workers))

	report := newReport(doc.Path, o.strategy.Mode())
	outcomes, wait := o.dispatch(ctx, variants, baseline)
	for out := range outcomes {
		report.add(out)
		o.printProgress(out)
	}
	if err := wait(); err != nil {
		return nil, err
	}
	report.finish()
	return report, nil
}

// dispatch starts the worker pool and returns the outcome stream and a
// function reporting the first fatal error once the stream is closed.
func (o *Orchestrator) dispatch(ctx context.Context, variants []types.Variant, baseline compare.Snapshot) (<-chan types.TrialOutcome, func() error) {
	outcomes := make(chan types.TrialOutcome)
	done := make(chan error, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	go func() {
		for _, v := range variants {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				out, err := o.runTrial(gctx, v, baseline)
				if err != nil {
					return err
				}
				select {
				case outcomes <- out:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		err := g.Wait()
		close(outcomes)
		done <- err
	}()

	return outcomes, func() error {
		if err := <-done; err != nil {
			return err
		}
		return ctx.Err()
	}
}

// runTrial takes one variant through building and comparing. The returned
// error is set only for conditions that must stop the whole run.
func (o *Orchestrator) runTrial(ctx context.Context, v types.Variant, baseline compare.Snapshot) (types.TrialOutcome, error) {
	start := time.Now()
	log := o.log.With(zap.String("module", v.Module), zap.Int("line", v.Line))
	st := &tracker{state: types.TrialPending, log: log}

	finish := func(to types.TrialState, msg string) (types.TrialOutcome, error) {
		if err := st.move(to); err != nil {
			return types.TrialOutcome{}, err
		}
		return types.TrialOutcome{
			Module:     v.Module,
			Line:       v.Line,
			Occurrence: v.Occurrence,
			Verdict:    to.Verdict(),
			Message:    msg,
			Elapsed:    time.Since(start),
		}, nil
	}

	if err := st.move(types.TrialBuilding); err != nil {
		return types.TrialOutcome{}, err
	}
	slot, err := o.ws.Allocate(v.Module, v.Text)
	if err != nil {
		return finish(types.TrialFailed, err.Error())
	}
	defer o.release(slot)

	res, err := o.builder.Build(ctx, slot.Source())
	if err != nil {
		return types.TrialOutcome{}, err
	}
	if !res.OK {
		return finish(types.TrialFailed, res.Diagnostic)
	}

	if err := st.move(types.TrialComparing); err != nil {
		return types.TrialOutcome{}, err
	}
	snap, err := o.strategy.Capture(ctx, res.ArtifactPath, slot.PagesDir())
	if err != nil {
		if fatal(ctx, err) {
			return types.TrialOutcome{}, err
		}
		return finish(types.TrialUnsafe, "capture failed: "+err.Error())
	}
	m, err := o.strategy.Match(baseline, snap)
	if err != nil {
		return finish(types.TrialUnsafe, "compare failed: "+err.Error())
	}
	if !m.Equal {
		return finish(types.TrialUnsafe, m.Reason)
	}
	return finish(types.TrialSafe, "")
}

// fatal reports whether err must abort the run instead of failing one trial.
func fatal(ctx context.Context, err error) bool {
	var tie *toolchain.ToolInvocationError
	return errors.As(err, &tie) || ctx.Err() != nil
}

func (o *Orchestrator) release(slot *workspace.Slot) {
	if err := slot.Release(); err != nil {
		o.log.Warn("cleanup failed", zap.String("stem", slot.Stem()), zap.Error(err))
	}
}

func (o *Orchestrator) printProgress(out types.TrialOutcome) {
	if o.progress == nil {
		return
	}
	switch out.Verdict {
	case types.VerdictSafe:
		fmt.Fprintf(o.progress, "safe:     %s (line %d)\n", out.Module, out.Line)
	case types.VerdictDiffers:
		fmt.Fprintf(o.progress, "differs:  %s (line %d): %s\n", out.Module, out.Line, out.Message)
	default:
		fmt.Fprintf(o.progress, "failed:   %s (line %d): %s\n", out.Module, out.Line, out.Message)
	}
}

// tracker holds the state of one trial and validates every transition.
type tracker struct {
	state types.TrialState
	log   *zap.Logger
}

func (t *tracker) move(to types.TrialState) error {
	next, err := t.state.Next(to)
	if err != nil {
		return err
	}
	t.log.Debug("trial state", zap.String("from", string(t.state)), zap.String("to", string(next)))
	t.state = next
	return nil
}
