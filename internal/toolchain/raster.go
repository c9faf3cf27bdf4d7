// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/pkgprune/pkg/types"
)

const (
	binGhostscript = "gs"
	binDvips       = "dvips"

	// PagePrefix starts every rasterized page file name.
	PagePrefix = "page-"
)

// Rasterizer renders every page of an artifact to an image file with
// ghostscript. DVI artifacts are converted to PostScript with dvips first.
type Rasterizer struct {
	engine  types.Engine
	dpi     int
	device  string
	timeout time.Duration
	exec    executor
	log     *zap.Logger
}

// NewRasterizer creates a rasterizer for cfg. cfg must have been validated.
func NewRasterizer(cfg types.Config, log *zap.Logger) *Rasterizer {
	return newRasterizer(cfg, defaultExec, log)
}

func newRasterizer(cfg types.Config, e executor, log *zap.Logger) *Rasterizer {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Rasterizer{
		engine:  cfg.Engine,
		dpi:     cfg.Raster.DPI,
		device:  cfg.Raster.Device,
		timeout: cfg.Timeout,
		exec:    e,
		log:     log.Named("raster"),
	}
	if r.dpi <= 0 {
		r.dpi = types.DefaultDPI
	}
	if r.device == "" {
		r.device = types.DefaultDevice
	}
	if r.timeout <= 0 {
		r.timeout = types.DefaultTimeout
	}
	return r
}

// Check verifies that ghostscript, and dvips for DVI output, are on PATH.
func (r *Rasterizer) Check() error {
	bins := []string{binGhostscript}
	if r.engine == types.EngineLaTeX {
		bins = append(bins, binDvips)
	}
	return lookBins(r.exec, bins...)
}

// PageExt returns the image file extension for the configured device.
func (r *Rasterizer) PageExt() string {
	switch {
	case strings.HasPrefix(r.device, "png"):
		return ".png"
	case strings.HasPrefix(r.device, "jpeg"):
		return ".jpg"
	case strings.HasPrefix(r.device, "tiff"):
		return ".tif"
	default:
		return "." + r.device
	}
}

// Rasterize writes one image per page of artifact into outDir, named
// page-00001<ext>, page-00002<ext>, …, and returns their paths in page
// order. A ghostscript or dvips failure is an error; so is a document that
// renders no pages.
func (r *Rasterizer) Rasterize(ctx context.Context, artifact, outDir string) ([]string, error) {
	dir := filepath.Dir(artifact)
	input := artifact

	switch filepath.Ext(artifact) {
	case ".dvi":
		ps := strings.TrimSuffix(artifact, ".dvi") + ".ps"
		if err := r.run(ctx, dir, binDvips, "-q", "-o", filepath.Base(ps), filepath.Base(artifact)); err != nil {
			return nil, err
		}
		input = ps
	case ".xdv":
		return nil, fmt.Errorf("cannot rasterize %s: XDV output has no page renderer", filepath.Base(artifact))
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating page directory %s: %w", outDir, err)
	}
	pattern := filepath.Join(outDir, PagePrefix+"%05d"+r.PageExt())
	err := r.run(ctx, dir, binGhostscript,
		"-q", "-dNOPAUSE", "-dBATCH", "-dSAFER",
		"-sDEVICE="+r.device,
		fmt.Sprintf("-r%d", r.dpi),
		"-sOutputFile="+pattern,
		input)
	if err != nil {
		return nil, err
	}

	pages, err := filepath.Glob(filepath.Join(outDir, PagePrefix+"*"+r.PageExt()))
	if err != nil {
		return nil, fmt.Errorf("listing pages in %s: %w", outDir, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%s rendered no pages from %s", binGhostscript, filepath.Base(input))
	}
	sort.Strings(pages)
	r.log.Debug("rasterized", zap.String("artifact", filepath.Base(artifact)), zap.Int("pages", len(pages)))
	return pages, nil
}

func (r *Rasterizer) run(ctx context.Context, dir, name string, args ...string) error {
	st, err := invoke(ctx, r.exec, r.timeout, dir, name, args...)
	if err != nil {
		return err
	}
	if st.timedOut {
		return fmt.Errorf("%s timed out after %v", name, r.timeout)
	}
	if st.code != 0 {
		return fmt.Errorf("%s exited with status %d", name, st.code)
	}
	return nil
}
