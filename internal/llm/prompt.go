package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zeroinbox/mailsift/internal/common"
	"github.com/zeroinbox/mailsift/internal/textnorm"
)

// placeholderRe matches the {name} slots used by prompt templates in config.
var placeholderRe = regexp.MustCompile(`\{([a-z_][a-z0-9_]*)\}`)

// Template is a prompt template with named {placeholder} slots. The required
// placeholder contract is checked once at load time so a misconfigured
// template fails the run at startup, not mid-batch.
type Template struct {
	text         string
	placeholders []string
}

// NewTemplate parses text and verifies every required placeholder is present.
func NewTemplate(text string, required []string) (*Template, error) {
	found := map[string]bool{}
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if !found[m[1]] {
			found[m[1]] = true
			names = append(names, m[1])
		}
	}
	for _, r := range required {
		if !found[r] {
			return nil, common.ConfigError(fmt.Sprintf("prompt template missing required placeholder {%s}", r))
		}
	}
	return &Template{text: text, placeholders: names}, nil
}

// Placeholders returns the distinct placeholder names in template order.
func (t *Template) Placeholders() []string {
	return append([]string(nil), t.placeholders...)
}

// Render substitutes vars into the template. A placeholder with no supplied
// value is an error; it is never silently dropped into the output.
func (t *Template) Render(vars map[string]string) (string, error) {
	for _, name := range t.placeholders {
		if _, ok := vars[name]; !ok {
			return "", common.ConfigError(fmt.Sprintf("no value supplied for placeholder {%s}", name))
		}
	}
	out := placeholderRe.ReplaceAllStringFunc(t.text, func(m string) string {
		name := m[1 : len(m)-1]
		return vars[name]
	})
	return out, nil
}

// EmailHeaderBlock formats the standard email context block substituted into
// extractor prompts. The body is truncated to bodyLimit runes; the PDF text,
// when present, to pdfLimit runes. Truncation never splits a multibyte rune.
func EmailHeaderBlock(subject, sender, date, body, pdfText string, bodyLimit, pdfLimit int) string {
	var b strings.Builder
	b.WriteString("Subject: ")
	b.WriteString(subject)
	b.WriteString("\nFrom: ")
	b.WriteString(sender)
	b.WriteString("\nDate: ")
	b.WriteString(date)
	b.WriteString("\nBody: ")
	b.WriteString(textnorm.TruncateRunes(body, bodyLimit))
	b.WriteString("\n")
	if pdfText != "" {
		b.WriteString("\n--- PDF ATTACHMENT CONTENT ---\n")
		b.WriteString(textnorm.TruncateRunes(pdfText, pdfLimit))
		b.WriteString("\n--- END PDF CONTENT ---\n")
	}
	return b.String()
}
