// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the pkgprune CLI. pkgprune finds
// \usepackage declarations that can be dropped from a LaTeX document
// without changing its compiled output.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time via ldflags.
var version = "dev"

// logger is built in PersistentPreRunE once flags are parsed.
var logger = zap.NewNop()

// rootCmd is the base command for the pkgprune CLI.
var rootCmd = &cobra.Command{
	Use:   "pkgprune [flags] <main.tex>",
	Short: "Find LaTeX packages that can be removed without changing the output",
	Long: `pkgprune builds the document once to obtain a baseline, then rebuilds it
once per declared package with that package removed. A package is reported
as safe to remove when its variant still builds and produces the same output
as the baseline.

By default outputs are compared by checksum with volatile metadata (creation
dates, document IDs) stripped. With --visual every page is rasterized through
ghostscript and compared image by image instead.

The original document is never modified. Trial files are written next to it
and removed afterwards unless --debug is set.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if viper.GetBool("verbose") {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: runCheck,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./pkgprune.yaml or ~/.config/pkgprune/pkgprune.yaml)")
	flags.Bool("verbose", false, "print per-trial progress and debug logs")

	rf := rootCmd.Flags()
	rf.String("engine", "pdflatex", "TeX engine: latex, pdflatex, xelatex or lualatex")
	rf.String("bib", "none", "bibliography tool run between passes: bibtex, biber or none")
	rf.Int("workers", 1, "number of trials built at once (capped at the CPU count)")
	rf.Bool("visual", false, "compare rasterized pages instead of checksums")
	rf.Bool("debug", false, "keep every generated file for inspection")
	rf.Duration("timeout", 0, "limit for each external tool invocation (default 5m)")
	rf.Int("dpi", 0, "rasterization resolution for --visual (default 300)")
	rf.String("report", "", "write the full report to this .yaml or .json file")

	for key, flag := range map[string]string{
		"verbose":    "verbose",
		"engine":     "engine",
		"bib":        "bib",
		"workers":    "workers",
		"visual":     "visual",
		"debug":      "debug",
		"timeout":    "timeout",
		"raster.dpi": "dpi",
		"report":     "report",
	} {
		f := rf.Lookup(flag)
		if f == nil {
			f = flags.Lookup(flag)
		}
		_ = viper.BindPFlag(key, f)
	}
}

func initConfig() {
	// A missing .env is normal.
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pkgprune")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "pkgprune"))
		}
	}

	viper.SetEnvPrefix("PKGPRUNE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && viper.GetBool("verbose") {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
