// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package toolchain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pkgprune/pkg/types"
)

type call struct {
	dir  string
	name string
	args []string
}

// mockExecutor records calls and answers them through runFunc.
type mockExecutor struct {
	mu      sync.Mutex
	onPath  map[string]bool
	calls   []call
	runFunc func(ctx context.Context, n int, c call) (int, error)
}

func (m *mockExecutor) LookPath(file string) (string, error) {
	if m.onPath[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("executable file not found in $PATH: " + file)
}

func (m *mockExecutor) Run(ctx context.Context, dir, name string, args ...string) (int, error) {
	m.mu.Lock()
	c := call{dir: dir, name: name, args: args}
	m.calls = append(m.calls, c)
	n := len(m.calls)
	m.mu.Unlock()
	if m.runFunc == nil {
		return 0, nil
	}
	return m.runFunc(ctx, n, c)
}

func (m *mockExecutor) names() []string {
	var out []string
	for _, c := range m.calls {
		out = append(out, c.name)
	}
	return out
}

// writesArtifact makes every compile pass create stem+ext next to the source.
func writesArtifact(ext string, codes map[int]int) func(context.Context, int, call) (int, error) {
	return func(_ context.Context, n int, c call) (int, error) {
		if strings.HasSuffix(c.args[len(c.args)-1], ".tex") {
			stem := strings.TrimSuffix(c.args[len(c.args)-1], ".tex")
			_ = os.WriteFile(filepath.Join(c.dir, stem+ext), []byte("%PDF"), 0o644)
		}
		return codes[n], nil
	}
}

func setupSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "main.tex")
	require.NoError(t, os.WriteFile(src, []byte("\\documentclass{article}"), 0o644))
	return src
}

func TestBuild_PassSequence(t *testing.T) {
	tests := []struct {
		name      string
		cfg       types.Config
		wantNames []string
		wantExt   string
	}{
		{
			name:      "no bibliography runs two compiles",
			cfg:       types.Config{Engine: types.EnginePDFLaTeX, Bib: types.BibNone},
			wantNames: []string{"pdflatex", "pdflatex"},
			wantExt:   ".pdf",
		},
		{
			name:      "bibtex runs four invocations",
			cfg:       types.Config{Engine: types.EnginePDFLaTeX, Bib: types.BibTeX},
			wantNames: []string{"pdflatex", "bibtex", "pdflatex", "pdflatex"},
			wantExt:   ".pdf",
		},
		{
			name:      "biber with lualatex",
			cfg:       types.Config{Engine: types.EngineLuaLaTeX, Bib: types.BibBiber},
			wantNames: []string{"lualatex", "biber", "lualatex", "lualatex"},
			wantExt:   ".pdf",
		},
		{
			name:      "latex produces dvi",
			cfg:       types.Config{Engine: types.EngineLaTeX},
			wantNames: []string{"latex", "latex"},
			wantExt:   ".dvi",
		},
		{
			name:      "xelatex checksum produces xdv",
			cfg:       types.Config{Engine: types.EngineXeLaTeX, Mode: types.ModeChecksum},
			wantNames: []string{"xelatex", "xelatex"},
			wantExt:   ".xdv",
		},
		{
			name:      "xelatex visual produces pdf",
			cfg:       types.Config{Engine: types.EngineXeLaTeX, Mode: types.ModeVisual},
			wantNames: []string{"xelatex", "xelatex"},
			wantExt:   ".pdf",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := setupSource(t)
			exec := &mockExecutor{runFunc: writesArtifact(tt.wantExt, nil)}
			d := newDriver(tt.cfg, exec, nil)

			res, err := d.Build(context.Background(), src)
			require.NoError(t, err)
			assert.True(t, res.OK, res.Diagnostic)
			assert.Equal(t, filepath.Join(filepath.Dir(src), "main"+tt.wantExt), res.ArtifactPath)
			assert.Equal(t, tt.wantNames, exec.names())
			assert.Equal(t, len(tt.wantNames), res.Passes)
			for _, c := range exec.calls {
				assert.Equal(t, filepath.Dir(src), c.dir, "every pass runs in the source directory")
			}
		})
	}
}

func TestBuild_CompileArgs(t *testing.T) {
	src := setupSource(t)
	exec := &mockExecutor{runFunc: writesArtifact(".xdv", nil)}
	d := newDriver(types.Config{Engine: types.EngineXeLaTeX, Bib: types.BibTeX, Mode: types.ModeChecksum}, exec, nil)

	_, err := d.Build(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, exec.calls, 4)
	assert.Equal(t, []string{"-interaction=nonstopmode", "-halt-on-error", "-no-pdf", "main.tex"}, exec.calls[0].args)
	assert.Equal(t, []string{"main"}, exec.calls[1].args)
}

func TestBuild_FailurePolicy(t *testing.T) {
	tests := []struct {
		name     string
		bib      types.BibEngine
		codes    map[int]int
		artifact bool
		wantOK   bool
		wantDiag string
	}{
		{
			name:     "intermediate failures tolerated",
			bib:      types.BibTeX,
			codes:    map[int]int{1: 1, 2: 2},
			artifact: true,
			wantOK:   true,
		},
		{
			name:     "final compile failure",
			bib:      types.BibNone,
			codes:    map[int]int{2: 1},
			artifact: true,
			wantDiag: "exited with status 1",
		},
		{
			name:     "final compile failure after bibliography",
			bib:      types.BibBiber,
			codes:    map[int]int{4: 1},
			artifact: true,
			wantDiag: "exited with status 1",
		},
		{
			name:     "missing artifact",
			bib:      types.BibNone,
			wantDiag: "produced no main.pdf",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := setupSource(t)
			run := func(_ context.Context, n int, c call) (int, error) { return tt.codes[n], nil }
			if tt.artifact {
				run = writesArtifact(".pdf", tt.codes)
			}
			exec := &mockExecutor{runFunc: run}
			d := newDriver(types.Config{Engine: types.EnginePDFLaTeX, Bib: tt.bib}, exec, nil)

			res, err := d.Build(context.Background(), src)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, res.OK)
			if tt.wantDiag != "" {
				assert.Contains(t, res.Diagnostic, tt.wantDiag)
				assert.Empty(t, res.ArtifactPath)
			}
		})
	}
}

func TestBuild_ToolInvocationFailure(t *testing.T) {
	src := setupSource(t)
	exec := &mockExecutor{runFunc: func(context.Context, int, call) (int, error) {
		return -1, errors.New("exec: \"pdflatex\": executable file not found in $PATH")
	}}
	d := newDriver(types.Config{Engine: types.EnginePDFLaTeX}, exec, nil)

	_, err := d.Build(context.Background(), src)
	var tie *ToolInvocationError
	require.ErrorAs(t, err, &tie)
	assert.Equal(t, "pdflatex", tie.Tool)
	assert.Len(t, exec.calls, 1, "a tool that cannot start aborts the sequence")
}

func TestBuild_TimeoutIsBuildFailure(t *testing.T) {
	src := setupSource(t)
	exec := &mockExecutor{runFunc: func(ctx context.Context, _ int, _ call) (int, error) {
		<-ctx.Done()
		return -1, nil
	}}
	d := newDriver(types.Config{Engine: types.EnginePDFLaTeX, Timeout: 10 * time.Millisecond}, exec, nil)

	res, err := d.Build(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Diagnostic, "timed out")
	assert.Equal(t, 2, res.Passes)
}

func TestBuild_Cancelled(t *testing.T) {
	src := setupSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	exec := &mockExecutor{runFunc: func(context.Context, int, call) (int, error) {
		cancel()
		return -1, nil
	}}
	d := newDriver(types.Config{Engine: types.EnginePDFLaTeX}, exec, nil)

	_, err := d.Build(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDriverCheck(t *testing.T) {
	tests := []struct {
		name    string
		cfg     types.Config
		onPath  map[string]bool
		wantErr string
	}{
		{
			name:   "engine present",
			cfg:    types.Config{Engine: types.EnginePDFLaTeX, Bib: types.BibNone},
			onPath: map[string]bool{"pdflatex": true},
		},
		{
			name:    "engine missing",
			cfg:     types.Config{Engine: types.EngineXeLaTeX},
			onPath:  map[string]bool{},
			wantErr: "xelatex",
		},
		{
			name:    "bibliography tool missing",
			cfg:     types.Config{Engine: types.EnginePDFLaTeX, Bib: types.BibBiber},
			onPath:  map[string]bool{"pdflatex": true},
			wantErr: "biber",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDriver(tt.cfg, &mockExecutor{onPath: tt.onPath}, nil)
			err := d.Check()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			var tie *ToolInvocationError
			require.ErrorAs(t, err, &tie)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
