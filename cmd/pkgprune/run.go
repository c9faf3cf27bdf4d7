// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/pkgprune/internal/compare"
	"github.com/pdiddy/pkgprune/internal/toolchain"
	"github.com/pdiddy/pkgprune/internal/trial"
	"github.com/pdiddy/pkgprune/internal/workspace"
	"github.com/pdiddy/pkgprune/pkg/types"
)

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress io.Writer
	if cfg.Verbose {
		progress = cmd.ErrOrStderr()
	}
	return check(ctx, cfg, args[0], cmd.OutOrStdout(), progress, logger)
}

// loadConfig merges flags, environment and config file into a validated
// Config.
func loadConfig(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading configuration: %w", err)
	}
	if v.GetBool("visual") {
		cfg.Mode = types.ModeVisual
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// check runs the whole pipeline for the document at path and prints the
// summary to out.
func check(ctx context.Context, cfg types.Config, path string, out, progress io.Writer, log *zap.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	text, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	doc := types.SourceDocument{Path: abs, Text: string(text)}

	normalizer, err := compare.NewNormalizer(cfg.MetadataPatterns)
	if err != nil {
		return err
	}
	driver := toolchain.NewDriver(cfg, log)
	if err := driver.Check(); err != nil {
		return err
	}

	var renderer compare.PageRenderer
	if cfg.Mode == types.ModeVisual {
		r := toolchain.NewRasterizer(cfg, log)
		if err := r.Check(); err != nil {
			return err
		}
		renderer = r
	}
	strategy, err := compare.New(cfg.Mode, normalizer, renderer, cfg.Raster.CacheSize)
	if err != nil {
		return err
	}

	ws := workspace.New(filepath.Dir(abs), cfg.Debug, log)
	orch := trial.New(driver, strategy, ws, trial.Options{
		Workers:  cfg.Workers,
		Logger:   log,
		Progress: progress,
	})
	log.Info("checking document",
		zap.String("path", abs),
		zap.String("engine", string(cfg.Engine)),
		zap.String("mode", string(cfg.Mode)),
		zap.Int("workers", orch.Workers()))

	report, err := orch.Run(ctx, doc)
	if err != nil {
		return err
	}
	report.WriteSummary(out)

	if cfg.Report != "" {
		if err := report.WriteFile(cfg.Report); err != nil {
			return err
		}
	}
	return nil
}
