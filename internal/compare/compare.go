// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package compare decides whether a candidate build renders the same output
// as the baseline. Two strategies exist, selected by types.ComparisonMode:
// Checksum hashes the artifact with volatile metadata stripped, Visual
// rasterizes every page and compares the image files byte for byte.
package compare

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pdiddy/pkgprune/pkg/types"
)

// Snapshot is the comparable form of one build: a digest in checksum mode,
// an ordered page list in visual mode.
type Snapshot struct {
	Mode   types.ComparisonMode
	Digest string
	Pages  []string
}

// Result is the answer of Match.
type Result struct {
	Equal  bool
	Reason string
}

// Strategy captures snapshots of artifacts and matches them. Implementations
// hold no per-trial state and are safe for concurrent use.
type Strategy interface {
	Mode() types.ComparisonMode

	// Capture produces the snapshot of artifact. scratchDir is where the
	// strategy may write derived files; the caller owns its cleanup.
	Capture(ctx context.Context, artifact, scratchDir string) (Snapshot, error)

	// Match compares a candidate snapshot against the baseline.
	Match(baseline, candidate Snapshot) (Result, error)
}

// PageRenderer rasterizes an artifact into one image file per page.
type PageRenderer interface {
	Rasterize(ctx context.Context, artifact, outDir string) ([]string, error)
}

// New returns the strategy for mode. renderer and cacheSize are used only
// by the visual strategy.
func New(mode types.ComparisonMode, normalizer *Normalizer, renderer PageRenderer, cacheSize int) (Strategy, error) {
	switch mode {
	case types.ModeChecksum:
		if normalizer == nil {
			return nil, fmt.Errorf("checksum comparison needs a normalizer")
		}
		return &Checksum{normalizer: normalizer}, nil
	case types.ModeVisual:
		if renderer == nil {
			return nil, fmt.Errorf("visual comparison needs a page renderer")
		}
		return NewVisual(renderer, cacheSize)
	default:
		return nil, fmt.Errorf("unknown comparison mode %q", mode)
	}
}

// Checksum compares normalized artifact digests.
type Checksum struct {
	normalizer *Normalizer
}

func (c *Checksum) Mode() types.ComparisonMode { return types.ModeChecksum }

func (c *Checksum) Capture(_ context.Context, artifact, _ string) (Snapshot, error) {
	digest, err := c.normalizer.FingerprintFile(artifact)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Mode: types.ModeChecksum, Digest: digest}, nil
}

func (c *Checksum) Match(baseline, candidate Snapshot) (Result, error) {
	if err := sameMode(types.ModeChecksum, baseline, candidate); err != nil {
		return Result{}, err
	}
	if baseline.Digest != candidate.Digest {
		return Result{Reason: fmt.Sprintf("checksum mismatch: %s", candidate.Digest)}, nil
	}
	return Result{Equal: true}, nil
}

// Visual compares rasterized pages. Baseline page contents are read once
// and kept in an LRU cache shared by all trials.
type Visual struct {
	renderer PageRenderer
	cache    *lru.Cache[string, []byte]
}

// NewVisual creates a visual strategy caching up to cacheSize baseline pages.
func NewVisual(renderer PageRenderer, cacheSize int) (*Visual, error) {
	if cacheSize <= 0 {
		cacheSize = types.DefaultCacheSize
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating page cache: %w", err)
	}
	return &Visual{renderer: renderer, cache: cache}, nil
}

func (v *Visual) Mode() types.ComparisonMode { return types.ModeVisual }

func (v *Visual) Capture(ctx context.Context, artifact, scratchDir string) (Snapshot, error) {
	pages, err := v.renderer.Rasterize(ctx, artifact, scratchDir)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Mode: types.ModeVisual, Pages: pages}, nil
}

// Match requires every baseline page to have a same-named candidate page with
// identical bytes, and the candidate to have no extra pages.
func (v *Visual) Match(baseline, candidate Snapshot) (Result, error) {
	if err := sameMode(types.ModeVisual, baseline, candidate); err != nil {
		return Result{}, err
	}
	byName := make(map[string]string, len(candidate.Pages))
	for _, p := range candidate.Pages {
		byName[filepath.Base(p)] = p
	}

	for i, basePage := range baseline.Pages {
		candPage, ok := byName[filepath.Base(basePage)]
		if !ok {
			return Result{Reason: fmt.Sprintf("page %d missing", i+1)}, nil
		}
		want, err := v.baselinePage(basePage)
		if err != nil {
			return Result{}, err
		}
		got, err := os.ReadFile(candPage)
		if err != nil {
			return Result{}, fmt.Errorf("reading candidate page %d: %w", i+1, err)
		}
		if !bytes.Equal(want, got) {
			return Result{Reason: fmt.Sprintf("page %d differs", i+1)}, nil
		}
	}
	if len(candidate.Pages) > len(baseline.Pages) {
		return Result{Reason: fmt.Sprintf("%d extra page(s)", len(candidate.Pages)-len(baseline.Pages))}, nil
	}
	return Result{Equal: true}, nil
}

func (v *Visual) baselinePage(path string) ([]byte, error) {
	if data, ok := v.cache.Get(path); ok {
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading baseline page: %w", err)
	}
	v.cache.Add(path, data)
	return data, nil
}

func sameMode(want types.ComparisonMode, snaps ...Snapshot) error {
	for _, s := range snaps {
		if s.Mode != want {
			return fmt.Errorf("cannot match %s snapshot with %s strategy", s.Mode, want)
		}
	}
	return nil
}
