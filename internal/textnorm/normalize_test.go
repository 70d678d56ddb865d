package textnorm

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSubstitutesSmartCharacters(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"curly single quotes", "it’s ‘quoted’", "it's 'quoted'"},
		{"curly double quotes", "“hello”", `"hello"`},
		{"dashes", "a–b—c", "a-b-c"},
		{"non-breaking space", "1 250 kr", "1 250 kr"},
		{"acute accent", "déja´ vu", "déja' vu"},
		{"plain ascii untouched", "Totalt belopp: 1250.50 kr", "Totalt belopp: 1250.50 kr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeDropsNonPrintable(t *testing.T) {
	got := Normalize("abc\x00\x07def\nghi\tjkl")
	assert.Equal(t, "abcdef\nghi\tjkl", got)
}

func TestNormalizeIdempotent(t *testing.T) {
	samples := []string{
		"it’s a “test” – really—yes",
		"Förfallodag: 2025-08-15 kr",
		"plain text",
		"",
		"mixed\x01control’chars",
		"invalid \xff bytes",
	}
	for _, s := range samples {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", s)
	}
}

func TestNormalizeOutputNeverLonger(t *testing.T) {
	samples := []string{
		"“quoted”",
		"a\x00b",
		"svensk text åäö",
		strings.Repeat("–", 50),
		"abc\xff\xfedef",
		"\xc3\x28",             // overlong-ish: valid lead byte, bad continuation
		"trunc ö\xc3",          // multibyte sequence cut short
		"\xff\xff\xff",         // nothing but invalid bytes
		"mix ö\xffä\xfe end å", // valid multibyte around invalid bytes
	}
	for _, s := range samples {
		assert.LessOrEqual(t, len(Normalize(s)), len(s), "input %q", s)
	}
}

func TestNormalizeInvalidUTF8FallsBack(t *testing.T) {
	in := "abc\xff\xfedef"
	got := Normalize(in)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "abc??def", got)
	assert.LessOrEqual(t, len(got), len(in))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "åäö", TruncateRunes("åäöüé", 3))
	assert.Equal(t, "ab", TruncateRunes("ab", 10))
	assert.Equal(t, "", TruncateRunes("abc", 0))
	// never produces invalid UTF-8
	s := TruncateRunes("ööööö", 2)
	assert.True(t, utf8.ValidString(s))
	assert.Equal(t, "öö", s)
}

func TestHTMLToMarkdownStripsMarkup(t *testing.T) {
	got := HTMLToMarkdown("<p>Totalt belopp: <b>1250 kr</b></p>")
	assert.Contains(t, got, "Totalt belopp:")
	assert.NotContains(t, got, "<p>")
}
