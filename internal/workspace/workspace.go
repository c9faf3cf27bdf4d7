// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workspace allocates uniquely named source files next to the
// original document and removes them, with everything the toolchain derives
// from them, when a trial ends.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DerivedExts lists the files TeX, bibliography tools and dvips write next
// to a source file with the same stem.
var DerivedExts = []string{
	".log", ".aux", ".dvi", ".ps", ".pdf", ".xdv",
	".bcf", ".bbl", ".blg", ".run.xml",
	".out", ".toc", ".lof", ".lot", ".nav", ".snm",
	".fls", ".fdb_latexmk", ".synctex.gz",
}

// Separator joins a slot label and its token in file names.
const Separator = "__"

const maxAttempts = 8

var (
	unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9-]+`)
	slotStem    = regexp.MustCompile(`^[A-Za-z0-9-]+` + Separator + `[0-9a-f]{12}$`)
)

// Manager hands out slots in one directory. Slots must live in the same
// directory as the original document so relative \input and \includegraphics
// paths resolve the same way.
type Manager struct {
	dir      string
	keep     bool
	log      *zap.Logger
	newToken func() string
}

// New creates a manager for dir. With keep set, Release leaves every file in
// place for inspection.
func New(dir string, keep bool, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		dir:      dir,
		keep:     keep,
		log:      log.Named("workspace"),
		newToken: randomToken,
	}
}

// Dir returns the directory slots are created in.
func (m *Manager) Dir() string { return m.dir }

// Allocate writes text to a new file <label>__<token>.tex. The file is
// created exclusively, so a name can never be shared with another slot or
// with an existing file.
func (m *Manager) Allocate(label, text string) (*Slot, error) {
	label = sanitize(label)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		stem := label + Separator + m.newToken()
		path := filepath.Join(m.dir, stem+".tex")

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", path, err)
		}

		slot := &Slot{dir: m.dir, stem: stem, keep: m.keep, log: m.log}
		if _, err := f.WriteString(text); err != nil {
			f.Close()
			_ = slot.remove()
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			_ = slot.remove()
			return nil, fmt.Errorf("closing %s: %w", path, err)
		}
		return slot, nil
	}
	return nil, fmt.Errorf("no free name for %q in %s after %d attempts", label, m.dir, maxAttempts)
}

// Slot is one allocated source file and the files derived from it.
type Slot struct {
	dir  string
	stem string
	keep bool
	log  *zap.Logger
}

// Source returns the path of the .tex file.
func (s *Slot) Source() string { return s.Artifact(".tex") }

// Stem returns the file name without extension.
func (s *Slot) Stem() string { return s.stem }

// Artifact returns the path of the derived file with extension ext.
func (s *Slot) Artifact(ext string) string {
	return filepath.Join(s.dir, s.stem+ext)
}

// PagesDir returns the directory rasterized pages of this slot go to.
func (s *Slot) PagesDir() string {
	return filepath.Join(s.dir, "."+s.stem+"-pages")
}

// Release deletes the source, its derived files and its page directory.
// Files that do not exist are skipped. Other failures are collected and
// returned together; the caller decides whether they matter.
func (s *Slot) Release() error {
	if s.keep {
		s.log.Debug("keeping trial files", zap.String("stem", s.stem))
		return nil
	}
	return s.remove()
}

func (s *Slot) remove() error {
	var errs []error
	for _, ext := range append([]string{".tex"}, DerivedExts...) {
		if err := os.Remove(s.Artifact(ext)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(s.PagesDir()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func sanitize(label string) string {
	label = strings.Trim(unsafeLabel.ReplaceAllString(label, "_"), "_")
	if label == "" {
		return "doc"
	}
	return label
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// IsLeftover reports whether name is a file or pages directory a slot
// created. Tooling uses it to sweep up after interrupted runs.
func IsLeftover(name string) bool {
	if strings.HasPrefix(name, ".") && strings.HasSuffix(name, "-pages") {
		return slotStem.MatchString(strings.TrimSuffix(name[1:], "-pages"))
	}
	for _, ext := range append([]string{".tex"}, DerivedExts...) {
		if stem, ok := strings.CutSuffix(name, ext); ok && slotStem.MatchString(stem) {
			return true
		}
	}
	return false
}
