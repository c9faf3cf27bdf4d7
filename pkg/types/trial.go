// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// Verdict is the classification a finished trial assigns to a package.
type Verdict string

const (
	VerdictSafe        Verdict = "safe-to-remove"
	VerdictDiffers     Verdict = "output-differs"
	VerdictBuildFailed Verdict = "build-failed"
)

// TrialState is the lifecycle position of a single trial.
type TrialState string

const (
	TrialPending   TrialState = "pending"
	TrialBuilding  TrialState = "building"
	TrialComparing TrialState = "comparing"
	TrialSafe      TrialState = "safe"
	TrialUnsafe    TrialState = "unsafe"
	TrialFailed    TrialState = "failed"
)

// IsTerminal reports whether no further transition is possible from s.
func (s TrialState) IsTerminal() bool {
	switch s {
	case TrialSafe, TrialUnsafe, TrialFailed:
		return true
	default:
		return false
	}
}

// Next validates the transition s -> to and returns to.
func (s TrialState) Next(to TrialState) (TrialState, error) {
	ok := false
	switch s {
	case TrialPending:
		ok = to == TrialBuilding
	case TrialBuilding:
		ok = to == TrialComparing || to == TrialFailed
	case TrialComparing:
		ok = to == TrialSafe || to == TrialUnsafe
	}
	if !ok {
		return s, fmt.Errorf("disallowed trial transition: %s -> %s", s, to)
	}
	return to, nil
}

// Verdict maps a terminal state to the verdict reported for it.
func (s TrialState) Verdict() Verdict {
	switch s {
	case TrialSafe:
		return VerdictSafe
	case TrialUnsafe:
		return VerdictDiffers
	default:
		return VerdictBuildFailed
	}
}

// TrialOutcome is the terminal result of one trial. Workers create it once
// and hand it to the orchestrator; it is not modified afterwards.
type TrialOutcome struct {
	// Module is the package name that was removed.
	Module string `json:"module" yaml:"module"`

	// Line is the line of the declaration the name was removed from.
	Line int `json:"line" yaml:"line"`

	// Occurrence is the index of the name within its declaration.
	Occurrence int `json:"occurrence" yaml:"occurrence"`

	// Verdict is the classification.
	Verdict Verdict `json:"verdict" yaml:"verdict"`

	// Message carries a diagnostic for non-safe verdicts.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// Elapsed is the wall-clock time the trial took.
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}
