// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package compare

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/pdiddy/pkgprune/pkg/types"
)

// ErrPattern is returned for a metadata strip rule that does not compile.
var ErrPattern = errors.New("invalid metadata pattern")

// chunkSize is the block size fed to the hasher.
const chunkSize = 64 * 1024

// DefaultPatterns are the volatile fields TeX engines embed in every build.
// Each field is its own rule; they are never merged into one expression.
var DefaultPatterns = []types.StripPattern{
	{
		// Trailer document identifier: /ID [<hex> <hex>]
		Name:    "pdf-id",
		Pattern: `/ID\s*\[\s*<[0-9A-Fa-f]*>\s*<[0-9A-Fa-f]*>\s*\]`,
	},
	{
		Name:        "pdf-creation-date",
		Pattern:     `/CreationDate\s*\(D:[^)]*\)`,
		Replacement: "/CreationDate ()",
	},
	{
		Name:        "pdf-mod-date",
		Pattern:     `/ModDate\s*\(D:[^)]*\)`,
		Replacement: "/ModDate ()",
	},
	{
		// DVI/XDV preamble comment written by TeX.
		Name:    "dvi-generated-at",
		Pattern: `TeX output [0-9]{4}\.[0-9]{2}\.[0-9]{2}:[0-9]{4}`,
	},
}

type stripRule struct {
	name        string
	regex       *regexp.Regexp
	replacement []byte
}

// Normalizer erases non-deterministic metadata from compiled artifacts.
// It is immutable after construction and safe for concurrent use.
type Normalizer struct {
	rules []stripRule
}

// NewNormalizer compiles DefaultPatterns followed by extra.
func NewNormalizer(extra []types.StripPattern) (*Normalizer, error) {
	n := &Normalizer{}
	for _, p := range append(append([]types.StripPattern{}, DefaultPatterns...), extra...) {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrPattern, p.Name, err)
		}
		if re.MatchString("") {
			return nil, fmt.Errorf("%w %q: matches the empty string", ErrPattern, p.Name)
		}
		n.rules = append(n.rules, stripRule{
			name:        p.Name,
			regex:       re,
			replacement: []byte(p.Replacement),
		})
	}
	return n, nil
}

// Rules returns the rule names in application order.
func (n *Normalizer) Rules() []string {
	names := make([]string, len(n.rules))
	for i, r := range n.rules {
		names[i] = r.name
	}
	return names
}

// Normalize applies every rule in order and returns the result.
func (n *Normalizer) Normalize(content []byte) []byte {
	result := content
	for _, r := range n.rules {
		result = r.regex.ReplaceAllLiteral(result, r.replacement)
	}
	return result
}

// Fingerprint returns the hex MD5 digest of the normalized content of r.
func (n *Normalizer) Fingerprint(r io.Reader) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading artifact: %w", err)
	}
	normalized := n.Normalize(content)

	h := md5.New()
	for len(normalized) > 0 {
		k := min(chunkSize, len(normalized))
		h.Write(normalized[:k])
		normalized = normalized[k:]
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FingerprintFile is Fingerprint over the file at path.
func (n *Normalizer) FingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()
	return n.Fingerprint(f)
}
