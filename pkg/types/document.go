// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// SourceDocument is the text of a LaTeX source file and the path it was
// read from. It owns no external resources and is never mutated.
type SourceDocument struct {
	// Path is the filesystem path the text was read from.
	Path string `json:"path" yaml:"path"`

	// Text is the full file content.
	Text string `json:"-" yaml:"-"`
}

// Declaration is one \usepackage statement found in a SourceDocument.
// Offsets are byte offsets into the owning document's Text.
type Declaration struct {
	// Path identifies the owning document.
	Path string `json:"path" yaml:"path"`

	// Line is the 1-based line on which the statement starts.
	Line int `json:"line" yaml:"line"`

	// Start and End delimit the whole statement, End exclusive.
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`

	// NamesStart and NamesEnd delimit the text between the braces.
	NamesStart int `json:"names_start" yaml:"names_start"`
	NamesEnd   int `json:"names_end" yaml:"names_end"`

	// Raw is the statement text exactly as written.
	Raw string `json:"raw" yaml:"raw"`

	// Names holds the comma-separated entries of the name list in source
	// order, whitespace included. Duplicates are kept.
	Names []string `json:"names" yaml:"names"`

	// Commented is set when the statement starts after a comment marker on
	// its line. Commented declarations never produce variants.
	Commented bool `json:"commented" yaml:"commented"`
}

// Variant is a full document text with exactly one package name removed
// from one declaration.
type Variant struct {
	// Module is the trimmed package name that was removed.
	Module string `json:"module" yaml:"module"`

	// Occurrence is the index of the name within its declaration.
	Occurrence int `json:"occurrence" yaml:"occurrence"`

	// Line is the line of the declaration the name was removed from.
	Line int `json:"line" yaml:"line"`

	// Text is the resulting document text.
	Text string `json:"-" yaml:"-"`
}

// BuildResult describes one run of the compile sequence.
type BuildResult struct {
	// OK is true when the final compile pass exited cleanly and the
	// artifact exists.
	OK bool `json:"ok" yaml:"ok"`

	// ArtifactPath is the produced .pdf, .dvi or .xdv file. Empty unless OK.
	ArtifactPath string `json:"artifact_path,omitempty" yaml:"artifact_path,omitempty"`

	// Passes counts the external invocations that were run.
	Passes int `json:"passes" yaml:"passes"`

	// Diagnostic explains a failed build.
	Diagnostic string `json:"diagnostic,omitempty" yaml:"diagnostic,omitempty"`
}
