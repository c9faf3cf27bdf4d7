// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package compare

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pkgprune/pkg/types"
)

// pdfWith builds a minimal PDF-like body with the given volatile fields.
func pdfWith(body, created, modified, id string) []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.5\n%\xd0\xd4\xc5\xd8\n")
	b.WriteString("1 0 obj\n<< /Producer (pdfTeX-1.40.25) /CreationDate (D:" + created + ") /ModDate (D:" + modified + ") >>\nendobj\n")
	b.WriteString("2 0 obj\n(" + body + ")\nendobj\n")
	b.WriteString("trailer\n<< /Root 3 0 R /Info 1 0 R /ID [<" + id + "> <" + id + ">] >>\n%%EOF\n")
	return b.Bytes()
}

func TestNormalize(t *testing.T) {
	n, err := NewNormalizer(nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "creation date blanked",
			in:   "/CreationDate (D:20260101120000+01'00')",
			want: "/CreationDate ()",
		},
		{
			name: "mod date blanked",
			in:   "/ModDate (D:20260101120000Z)",
			want: "/ModDate ()",
		},
		{
			name: "document id removed",
			in:   "<< /ID [<0A1B2C> <0a1b2c>] >>",
			want: "<<  >>",
		},
		{
			name: "document id without spaces",
			in:   "/ID[<AB><CD>]",
			want: "",
		},
		{
			name: "dvi preamble timestamp removed",
			in:   "\xf7\x02 TeX output 2026.10.19:1432\x8b",
			want: "\xf7\x02 \x8b",
		},
		{
			name: "other content untouched",
			in:   "BT /F1 10 Tf (Hello) Tj ET",
			want: "BT /F1 10 Tf (Hello) Tj ET",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(n.Normalize([]byte(tt.in))))
		})
	}
}

func TestFingerprint_IgnoresVolatileMetadata(t *testing.T) {
	n, err := NewNormalizer(nil)
	require.NoError(t, err)

	a, err := n.Fingerprint(bytes.NewReader(pdfWith("Hello", "20260101120000Z", "20260101120000Z", "AAAA")))
	require.NoError(t, err)
	b, err := n.Fingerprint(bytes.NewReader(pdfWith("Hello", "20261019093000+02'00'", "20261019093001+02'00'", "BBBB")))
	require.NoError(t, err)
	c, err := n.Fingerprint(bytes.NewReader(pdfWith("Hellp", "20260101120000Z", "20260101120000Z", "AAAA")))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}

func TestFingerprint_LargeInputChunked(t *testing.T) {
	n, err := NewNormalizer(nil)
	require.NoError(t, err)

	big := bytes.Repeat([]byte("0123456789abcdef"), 3*chunkSize/16+7)
	first, err := n.Fingerprint(bytes.NewReader(big))
	require.NoError(t, err)
	second, err := n.Fingerprint(bytes.NewReader(big))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	big[len(big)-1] = 'X'
	changed, err := n.Fingerprint(bytes.NewReader(big))
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestFingerprintFile(t *testing.T) {
	n, err := NewNormalizer(nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "main.pdf")
	require.NoError(t, os.WriteFile(path, pdfWith("x", "1", "2", "FF"), 0o644))

	first, err := n.FingerprintFile(path)
	require.NoError(t, err)
	second, err := n.FingerprintFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = n.FingerprintFile(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestNewNormalizer_ExtraPatterns(t *testing.T) {
	n, err := NewNormalizer([]types.StripPattern{
		{Name: "xmp-create", Pattern: `<xmp:CreateDate>[^<]*</xmp:CreateDate>`},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pdf-id", "pdf-creation-date", "pdf-mod-date", "dvi-generated-at", "xmp-create"}, n.Rules())

	out := n.Normalize([]byte("a<xmp:CreateDate>2026-10-19T09:30:00Z</xmp:CreateDate>b"))
	assert.Equal(t, "ab", string(out))
}

func TestNewNormalizer_InvalidPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern types.StripPattern
		wantMsg string
	}{
		{
			name:    "does not compile",
			pattern: types.StripPattern{Name: "broken", Pattern: `(unclosed`},
			wantMsg: "broken",
		},
		{
			name:    "matches empty string",
			pattern: types.StripPattern{Name: "greedy", Pattern: `x*`},
			wantMsg: "empty string",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNormalizer([]types.StripPattern{tt.pattern})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrPattern))
			assert.True(t, strings.Contains(err.Error(), tt.wantMsg), err.Error())
		})
	}
}
