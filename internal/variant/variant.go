// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package variant produces candidate documents with one package import
// removed. Generation is pure: the input document is never modified and each
// variant is a new string.
package variant

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/pdiddy/pkgprune/internal/declare"
	"github.com/pdiddy/pkgprune/pkg/types"
)

// ErrStale is returned when a declaration's spans do not match the document
// it is applied to.
var ErrStale = errors.New("declaration does not match document")

// Generate returns doc with name index of decl removed. When it is the only
// name in the list the whole statement goes, along with its line if nothing
// else is on it. Otherwise the name and one adjacent comma are removed: the
// preceding comma, or for the first name the following comma and the
// whitespace after it.
func Generate(doc types.SourceDocument, decl types.Declaration, index int) (types.Variant, error) {
	if decl.Commented {
		return types.Variant{}, fmt.Errorf("line %d: commented declaration has no variants", decl.Line)
	}
	if err := checkSpans(doc.Text, decl); err != nil {
		return types.Variant{}, err
	}
	if index < 0 || index >= len(decl.Names) {
		return types.Variant{}, fmt.Errorf("line %d: name index %d out of range [0,%d)", decl.Line, index, len(decl.Names))
	}
	name := declare.TrimName(decl.Names[index])
	if name == "" {
		return types.Variant{}, fmt.Errorf("line %d: name %d is blank", decl.Line, index)
	}

	var from, to int
	if countNames(decl.Names) == 1 {
		from, to = statementSpan(doc.Text, decl)
	} else {
		from, to = nameSpan(doc.Text, decl, index)
	}

	return types.Variant{
		Module:     name,
		Occurrence: index,
		Line:       decl.Line,
		Text:       doc.Text[:from] + doc.Text[to:],
	}, nil
}

// Candidates yields one variant per non-blank name of every uncommented
// declaration, in source order. Repeated names yield repeated variants.
func Candidates(doc types.SourceDocument) iter.Seq2[types.Variant, error] {
	return func(yield func(types.Variant, error) bool) {
		for d := range declare.Declarations(doc) {
			for i, n := range d.Names {
				if declare.TrimName(n) == "" {
					continue
				}
				if !yield(Generate(doc, d, i)) {
					return
				}
			}
		}
	}
}

func checkSpans(text string, d types.Declaration) error {
	if d.Start < 0 || d.Start > d.NamesStart || d.NamesStart > d.NamesEnd ||
		d.NamesEnd > d.End || d.End > len(text) {
		return fmt.Errorf("line %d: %w: span out of bounds", d.Line, ErrStale)
	}
	if text[d.Start:d.End] != d.Raw {
		return fmt.Errorf("line %d: %w: text changed", d.Line, ErrStale)
	}
	if strings.Join(d.Names, ",") != text[d.NamesStart:d.NamesEnd] {
		return fmt.Errorf("line %d: %w: name list changed", d.Line, ErrStale)
	}
	return nil
}

func countNames(names []string) int {
	n := 0
	for _, name := range names {
		if declare.TrimName(name) != "" {
			n++
		}
	}
	return n
}

// statementSpan covers the statement, widened to its whole line (line break
// included) when only whitespace surrounds it.
func statementSpan(text string, d types.Declaration) (int, int) {
	lineStart := strings.LastIndexByte(text[:d.Start], '\n') + 1
	lineEnd, next := len(text), len(text)
	if i := strings.IndexByte(text[d.End:], '\n'); i >= 0 {
		lineEnd = d.End + i
		next = lineEnd + 1
	}
	if strings.TrimSpace(text[lineStart:d.Start]) == "" && strings.TrimSpace(text[d.End:lineEnd]) == "" {
		return lineStart, next
	}
	return d.Start, d.End
}

// nameSpan covers entry index of a multi-name list and one adjacent comma.
// Entries after the first take the whitespace before their comma with them,
// so no doubled blanks remain.
func nameSpan(text string, d types.Declaration, index int) (int, int) {
	start := d.NamesStart
	for _, n := range d.Names[:index] {
		start += len(n) + 1
	}
	raw := d.Names[index]
	trimmedStart := start + len(raw) - len(strings.TrimLeftFunc(raw, isSpace))
	trimmedEnd := start + len(strings.TrimRightFunc(raw, isSpace))

	end := start + len(raw)

	if index > 0 {
		prev := d.Names[index-1]
		prevEnd := start - 1 - len(prev) + len(strings.TrimRightFunc(prev, isSpace))
		if index < len(d.Names)-1 {
			return prevEnd, end
		}
		// Trailing blanks before the closing brace go too, line breaks stay.
		if tail := text[trimmedEnd:end]; !strings.ContainsRune(tail, '\n') {
			return prevEnd, end
		}
		return prevEnd, trimmedEnd
	}
	if end < d.NamesEnd && text[end] == ',' {
		end++
	}
	for end < d.NamesEnd && isSpace(rune(text[end])) {
		end++
	}
	return trimmedStart, end
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v'
}
