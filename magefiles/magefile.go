//go:build mage

// Package main contains Mage build targets for pkgprune developer tooling.
package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"

	"github.com/pdiddy/pkgprune/internal/workspace"
)

const (
	binDir  = "bin"
	binName = "pkgprune"
	cmdPkg  = "./cmd/pkgprune"
)

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}
	ldflags := "-X main.version=" + version
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s (%s)\n", out, version)
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

// Lint runs go vet over every package.
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// Check builds the CLI and runs it against doc with verbose progress.
func Check(doc string) error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "--verbose", doc)
}

// Clean removes bin/ and any trial files an interrupted run left under dir.
func Clean(dir string) error {
	if err := sh.Rm(binDir); err != nil {
		return err
	}
	var stale []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && (d.Name() == ".git" || d.Name() == binDir) {
			return filepath.SkipDir
		}
		if workspace.IsLeftover(d.Name()) {
			stale = append(stale, path)
			if d.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, p := range stale {
		if err := sh.Rm(p); err != nil {
			return err
		}
		fmt.Println("  removed", p)
	}
	return nil
}

// Stats prints project metrics: Go production/test LOC and documentation word count.
func Stats() error {
	prodLines, testLines, err := countGoLines(".")
	if err != nil {
		return err
	}
	docWords, err := countDocWords(".")
	if err != nil {
		return err
	}

	fmt.Printf("Lines of code (Go, production): %d\n", prodLines)
	fmt.Printf("Lines of code (Go, tests):      %d\n", testLines)
	fmt.Printf("Words (documentation):           %d\n", docWords)
	return nil
}

// countGoLines returns the non-blank line counts of production and test Go
// files under root.
func countGoLines(root string) (prod, test int, err error) {
	err = walkFiles(root, func(path string, data []byte) {
		if filepath.Ext(path) != ".go" {
			return
		}
		n := 0
		for _, line := range bytes.Split(data, []byte("\n")) {
			if len(bytes.TrimSpace(line)) > 0 {
				n++
			}
		}
		if strings.HasSuffix(path, "_test.go") {
			test += n
		} else {
			prod += n
		}
	})
	return prod, test, err
}

// countDocWords counts whitespace-separated words in .md and .yaml files.
func countDocWords(root string) (int, error) {
	total := 0
	err := walkFiles(root, func(path string, data []byte) {
		switch filepath.Ext(path) {
		case ".md", ".yaml", ".yml":
			total += len(bytes.Fields(data))
		}
	})
	return total, err
}

// walkFiles calls fn with the contents of every regular file under root,
// skipping hidden and underscore-prefixed directories.
func walkFiles(root string, fn func(path string, data []byte)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		fn(path, data)
		return nil
	})
}
