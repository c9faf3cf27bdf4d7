// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package toolchain runs the external TeX programs: the multi-pass compile
// sequence that turns a .tex file into a PDF, DVI or XDV artifact, and the
// ghostscript rasterizer used for visual comparison.
package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/pkgprune/pkg/types"
)

// Driver runs the compile sequence for one engine configuration. It holds
// no per-build state and is safe for concurrent use.
type Driver struct {
	engine  types.Engine
	bib     types.BibEngine
	mode    types.ComparisonMode
	timeout time.Duration
	exec    executor
	log     *zap.Logger
}

// NewDriver creates a driver for cfg. cfg must have been validated.
func NewDriver(cfg types.Config, log *zap.Logger) *Driver {
	return newDriver(cfg, defaultExec, log)
}

func newDriver(cfg types.Config, e executor, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = types.DefaultTimeout
	}
	return &Driver{
		engine:  cfg.Engine,
		bib:     cfg.Bib,
		mode:    cfg.Mode,
		timeout: timeout,
		exec:    e,
		log:     log.Named("toolchain"),
	}
}

// Check verifies that the engine and bibliography tool are on PATH.
func (d *Driver) Check() error {
	bins := []string{string(d.engine)}
	if d.usesBib() {
		bins = append(bins, string(d.bib))
	}
	return lookBins(d.exec, bins...)
}

// ArtifactExt returns the extension of the file the engine produces.
// xelatex writes XDV for checksum comparison because its PDF output is not
// stable across rebuilds.
func (d *Driver) ArtifactExt() string {
	switch d.engine {
	case types.EngineLaTeX:
		return ".dvi"
	case types.EngineXeLaTeX:
		if d.mode == types.ModeChecksum {
			return ".xdv"
		}
		return ".pdf"
	default:
		return ".pdf"
	}
}

// Build compiles sourcePath: compile, then with a bibliography tool
// bib + compile, then a final compile. All passes run in the source
// directory. Only the final compile's exit status and the presence of the
// artifact decide success. The returned error is set only when a tool could
// not be started or ctx was cancelled.
func (d *Driver) Build(ctx context.Context, sourcePath string) (types.BuildResult, error) {
	dir := filepath.Dir(sourcePath)
	file := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(file, filepath.Ext(file))

	type pass struct {
		name string
		args []string
	}
	compile := pass{string(d.engine), d.compileArgs(file)}
	passes := []pass{compile}
	if d.usesBib() {
		passes = append(passes, pass{string(d.bib), []string{stem}}, compile)
	}
	passes = append(passes, compile)

	var result types.BuildResult
	var last status
	for i, p := range passes {
		st, err := d.invoke(ctx, dir, p.name, p.args...)
		result.Passes++
		if err != nil {
			return result, err
		}
		d.log.Debug("pass finished",
			zap.String("source", file),
			zap.Int("pass", i+1),
			zap.String("tool", p.name),
			zap.Int("exit", st.code),
			zap.Bool("timed_out", st.timedOut))
		last = st
	}

	if last.timedOut {
		result.Diagnostic = fmt.Sprintf("final %s pass timed out after %v", d.engine, d.timeout)
		return result, nil
	}
	if last.code != 0 {
		result.Diagnostic = fmt.Sprintf("final %s pass exited with status %d", d.engine, last.code)
		return result, nil
	}

	artifact := filepath.Join(dir, stem+d.ArtifactExt())
	if _, err := os.Stat(artifact); err != nil {
		result.Diagnostic = fmt.Sprintf("%s produced no %s", d.engine, filepath.Base(artifact))
		return result, nil
	}
	result.OK = true
	result.ArtifactPath = artifact
	return result, nil
}

func (d *Driver) usesBib() bool {
	return d.bib != "" && d.bib != types.BibNone
}

func (d *Driver) compileArgs(file string) []string {
	args := []string{"-interaction=nonstopmode", "-halt-on-error"}
	if d.engine == types.EngineXeLaTeX && d.mode == types.ModeChecksum {
		args = append(args, "-no-pdf")
	}
	return append(args, file)
}

type status struct {
	code     int
	timedOut bool
}

// invoke runs one external program under the per-invocation timeout.
func (d *Driver) invoke(ctx context.Context, dir, name string, args ...string) (status, error) {
	return invoke(ctx, d.exec, d.timeout, dir, name, args...)
}

func invoke(ctx context.Context, e executor, timeout time.Duration, dir, name string, args ...string) (status, error) {
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	code, err := e.Run(ictx, dir, name, args...)
	if ctx.Err() != nil {
		return status{}, ctx.Err()
	}
	if ictx.Err() != nil {
		return status{code: -1, timedOut: true}, nil
	}
	if err != nil {
		return status{}, &ToolInvocationError{Tool: name, Err: err}
	}
	return status{code: code}, nil
}
