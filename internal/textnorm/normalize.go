// Package textnorm cleans raw email and PDF text so it is safe to embed in a
// model prompt and to store as UTF-8.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// smartChars maps typographic characters to ASCII equivalents.
var smartChars = strings.NewReplacer(
	"´", "'", // acute accent
	"’", "'", // right single quotation mark
	"‘", "'", // left single quotation mark
	"“", `"`, // left double quotation mark
	"”", `"`, // right double quotation mark
	"–", "-", // en dash
	"—", "-", // em dash
	" ", " ", // non-breaking space
)

// Normalize cleans s for prompt embedding and UTF-8 storage. It never fails.
// Output is always valid UTF-8, never longer than the input in bytes, and
// contains none of the substituted typographic characters. Normalize is
// idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	// Invalid UTF-8 must be caught on the raw bytes: ranging over the string
	// would already have turned each bad byte into a 3-byte replacement rune.
	if !utf8.ValidString(s) {
		s = asciiFallback(s)
	}

	s = smartChars.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// asciiFallback maps every non-ASCII byte to '?', byte for byte, so the
// result is valid UTF-8 and exactly as long as the input.
func asciiFallback(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < utf8.RuneSelf {
			b.WriteByte(c)
		} else {
			b.WriteByte('?')
		}
	}
	return b.String()
}

// HTMLToMarkdown converts an HTML body to markdown. On conversion failure it
// degrades to a crude tag strip rather than returning an error: the result
// feeds Normalize either way.
func HTMLToMarkdown(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return stripTags(html)
	}
	return md
}

func stripTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TruncateRunes cuts s to at most max runes without splitting a multibyte
// sequence.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
