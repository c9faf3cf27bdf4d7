// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package trial

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pkgprune/pkg/types"
)

// Report is the result of one run.
type Report struct {
	// Source is the path of the checked document.
	Source string `json:"source" yaml:"source"`

	// Mode is the comparison mode used.
	Mode types.ComparisonMode `json:"mode" yaml:"mode"`

	// Outcomes holds one entry per trial, ordered by line and position in
	// the declaration.
	Outcomes []types.TrialOutcome `json:"outcomes" yaml:"outcomes"`

	// Removable lists, sorted and without duplicates, every package with at
	// least one occurrence proven safe to remove.
	Removable []string `json:"removable" yaml:"removable"`

	safe map[string]bool
}

func newReport(source string, mode types.ComparisonMode) *Report {
	return &Report{Source: source, Mode: mode, safe: make(map[string]bool)}
}

// add folds one outcome in. The result does not depend on the order outcomes
// arrive in.
func (r *Report) add(out types.TrialOutcome) {
	r.Outcomes = append(r.Outcomes, out)
	if out.Verdict == types.VerdictSafe {
		r.safe[out.Module] = true
	}
}

func (r *Report) finish() {
	slices.SortStableFunc(r.Outcomes, func(a, b types.TrialOutcome) int {
		return cmp.Or(
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.Occurrence, b.Occurrence),
			cmp.Compare(a.Module, b.Module),
		)
	})
	r.Removable = make([]string, 0, len(r.safe))
	for name := range r.safe {
		r.Removable = append(r.Removable, name)
	}
	slices.Sort(r.Removable)
}

// Counts returns how many trials ended with each verdict.
func (r *Report) Counts() map[types.Verdict]int {
	counts := make(map[types.Verdict]int)
	for _, o := range r.Outcomes {
		counts[o.Verdict]++
	}
	return counts
}

// Total returns the number of trials run.
func (r *Report) Total() int { return len(r.Outcomes) }

// WriteSummary prints the removable packages, or that there are none.
func (r *Report) WriteSummary(w io.Writer) {
	if len(r.Removable) == 0 {
		fmt.Fprintln(w, "There are no safe to remove packages")
		return
	}
	fmt.Fprintf(w, "The following %d package(s) are safe to remove in %s: %s\n",
		len(r.Removable), filepath.Base(r.Source), strings.Join(r.Removable, ","))
}

// WriteFile saves the report as JSON when path ends in .json, YAML otherwise.
func (r *Report) WriteFile(path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(r, "", "  ")
	default:
		data, err = yaml.Marshal(r)
	}
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}
