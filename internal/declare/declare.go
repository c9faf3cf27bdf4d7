// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package declare locates \usepackage statements in LaTeX source text.
// Everything outside those statements is treated as opaque text; the only
// other syntax it understands is the % comment marker and the
// \begin{document} line that ends the preamble.
package declare

import (
	"iter"
	"regexp"
	"strings"

	"github.com/pdiddy/pkgprune/pkg/types"
)

// usepackagePattern matches \usepackage with an optional [options] list and
// a brace-delimited name list. Group 1 is the name list. Names may contain
// alphanumerics, hyphens and whitespace, so a list can span lines.
var usepackagePattern = regexp.MustCompile(`\\usepackage\s*(?:\[[^\]]*\])?\s*\{([a-zA-Z0-9,\s-]+)\}`)

const beginDocument = `\begin{document}`

// Scan returns every \usepackage statement in the preamble of doc, in
// source order, commented ones included with Commented set. The sequence is
// lazy and may be ranged over any number of times.
func Scan(doc types.SourceDocument) iter.Seq[types.Declaration] {
	return func(yield func(types.Declaration) bool) {
		text := doc.Text[:preambleEnd(doc.Text)]
		line, lineAt := 1, 0
		for pos := 0; pos < len(text); {
			m := usepackagePattern.FindStringSubmatchIndex(text[pos:])
			if m == nil {
				return
			}
			for i := range m {
				m[i] += pos
			}
			start, end := m[0], m[1]

			line += strings.Count(text[lineAt:start], "\n")
			lineAt = start

			d := types.Declaration{
				Path:       doc.Path,
				Line:       line,
				Start:      start,
				End:        end,
				NamesStart: m[2],
				NamesEnd:   m[3],
				Raw:        text[start:end],
				Names:      strings.Split(text[m[2]:m[3]], ","),
				Commented:  isCommented(doc.Text, start),
			}
			if !yield(d) {
				return
			}
			pos = end
		}
	}
}

// Declarations is Scan without commented statements. Only these produce
// candidate variants.
func Declarations(doc types.SourceDocument) iter.Seq[types.Declaration] {
	return func(yield func(types.Declaration) bool) {
		for d := range Scan(doc) {
			if d.Commented {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

// TrimName strips the whitespace kept around a name in Declaration.Names.
func TrimName(name string) string {
	return strings.TrimSpace(name)
}

// CommentStart returns the offset within line of the first % that is not
// escaped by an odd run of backslashes, or len(line) if there is none.
func CommentStart(line string) int {
	for i := 0; i < len(line); i++ {
		if line[i] != '%' {
			continue
		}
		slashes := 0
		for j := i - 1; j >= 0 && line[j] == '\\'; j-- {
			slashes++
		}
		if slashes%2 == 0 {
			return i
		}
	}
	return len(line)
}

// isCommented reports whether offset lies after the comment marker of its line.
func isCommented(text string, offset int) bool {
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	lineEnd := len(text)
	if i := strings.IndexByte(text[offset:], '\n'); i >= 0 {
		lineEnd = offset + i
	}
	return offset-lineStart > CommentStart(text[lineStart:lineEnd])
}

// preambleEnd returns the offset of the first uncommented \begin{document},
// or len(text) when the document has none.
func preambleEnd(text string) int {
	for pos := 0; pos < len(text); {
		i := strings.Index(text[pos:], beginDocument)
		if i < 0 {
			break
		}
		at := pos + i
		if !isCommented(text, at) {
			return at
		}
		pos = at + len(beginDocument)
	}
	return len(text)
}
