// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// Engine identifies the TeX compiler used to build the document.
type Engine string

const (
	EngineLaTeX    Engine = "latex"
	EnginePDFLaTeX Engine = "pdflatex"
	EngineXeLaTeX  Engine = "xelatex"
	EngineLuaLaTeX Engine = "lualatex"
)

// Engines lists the supported compilers.
var Engines = []Engine{EngineLaTeX, EnginePDFLaTeX, EngineXeLaTeX, EngineLuaLaTeX}

// BibEngine identifies the bibliography tool run between compile passes.
type BibEngine string

const (
	BibNone  BibEngine = "none"
	BibTeX   BibEngine = "bibtex"
	BibBiber BibEngine = "biber"
)

// ComparisonMode selects how a candidate build is compared to the baseline.
type ComparisonMode string

const (
	// ModeChecksum hashes the artifact with volatile metadata stripped.
	ModeChecksum ComparisonMode = "checksum"

	// ModeVisual rasterizes every page and compares the images byte for byte.
	ModeVisual ComparisonMode = "visual"
)

// StripPattern is one user-supplied metadata strip rule.
type StripPattern struct {
	// Name labels the rule in logs and errors.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Pattern is an RE2 regular expression applied to the raw artifact bytes.
	Pattern string `json:"pattern" yaml:"pattern" mapstructure:"pattern"`

	// Replacement substitutes every match. Empty removes the match.
	Replacement string `json:"replacement" yaml:"replacement" mapstructure:"replacement"`
}

// RasterConfig holds settings for visual comparison.
type RasterConfig struct {
	// DPI is the rasterization resolution (default 300).
	DPI int `json:"dpi" yaml:"dpi" mapstructure:"dpi"`

	// Device is the ghostscript output device (default "png16m").
	Device string `json:"device" yaml:"device" mapstructure:"device"`

	// CacheSize bounds the number of baseline pages held in memory (default 256).
	CacheSize int `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`
}

// Config groups everything one run needs.
type Config struct {
	// Engine is the compiler (default pdflatex).
	Engine Engine `json:"engine" yaml:"engine" mapstructure:"engine"`

	// Bib is the bibliography tool, or "none".
	Bib BibEngine `json:"bib" yaml:"bib" mapstructure:"bib"`

	// Workers is the number of trials run at once, clamped to [1, NumCPU].
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// Mode selects checksum or visual comparison.
	Mode ComparisonMode `json:"mode" yaml:"mode" mapstructure:"mode"`

	// Timeout bounds every external invocation (default 5m).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// Raster configures visual comparison.
	Raster RasterConfig `json:"raster" yaml:"raster" mapstructure:"raster"`

	// MetadataPatterns extends the built-in metadata strip rules.
	MetadataPatterns []StripPattern `json:"metadata_patterns" yaml:"metadata_patterns" mapstructure:"metadata_patterns"`

	// Report, when set, receives the full run report (.yaml or .json).
	Report string `json:"report,omitempty" yaml:"report,omitempty" mapstructure:"report"`

	// Verbose streams per-trial progress.
	Verbose bool `json:"verbose" yaml:"verbose" mapstructure:"verbose"`

	// Debug keeps every generated file for inspection.
	Debug bool `json:"debug" yaml:"debug" mapstructure:"debug"`
}

const (
	DefaultTimeout   = 5 * time.Minute
	DefaultDPI       = 300
	DefaultDevice    = "png16m"
	DefaultCacheSize = 256
)

// Validate fills defaults and rejects unknown engines or modes.
func (c *Config) Validate() error {
	if c.Engine == "" {
		c.Engine = EnginePDFLaTeX
	}
	if !c.Engine.valid() {
		return fmt.Errorf("unknown engine %q (want one of %v)", c.Engine, Engines)
	}
	switch c.Bib {
	case "":
		c.Bib = BibNone
	case BibNone, BibTeX, BibBiber:
	default:
		return fmt.Errorf("unknown bibliography engine %q (want bibtex, biber or none)", c.Bib)
	}
	switch c.Mode {
	case "":
		c.Mode = ModeChecksum
	case ModeChecksum, ModeVisual:
	default:
		return fmt.Errorf("unknown comparison mode %q (want checksum or visual)", c.Mode)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Raster.DPI <= 0 {
		c.Raster.DPI = DefaultDPI
	}
	if c.Raster.Device == "" {
		c.Raster.Device = DefaultDevice
	}
	if c.Raster.CacheSize <= 0 {
		c.Raster.CacheSize = DefaultCacheSize
	}
	return nil
}

func (e Engine) valid() bool {
	for _, known := range Engines {
		if e == known {
			return true
		}
	}
	return false
}
