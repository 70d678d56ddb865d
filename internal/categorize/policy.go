// Package categorize assigns every email a (category, subcategory) pair from
// a closed, configured vocabulary. The policy is the last line of defense: no
// pair leaves this package unless it exists in the vocabulary.
package categorize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zeroinbox/mailsift/constants"
	"github.com/zeroinbox/mailsift/internal/config"
)

// Result is one categorization decision for one email.
type Result struct {
	EmailID     string
	Category    string
	Subcategory string
	Confidence  float64
	Reasoning   string
}

// Policy holds the valid (category, subcategory) combinations. Immutable after
// construction.
type Policy struct {
	categories    []string            // sorted
	subcategories map[string][]string // category -> sorted subcategory names
	descriptions  map[string]config.SubcategoryConfig
	valid         map[string]bool // "category/subcategory"
}

// NewPolicy builds the valid-combination set from the configured vocabulary.
func NewPolicy(cfg config.CategorizationConfig) *Policy {
	p := &Policy{
		subcategories: map[string][]string{},
		descriptions:  map[string]config.SubcategoryConfig{},
		valid:         map[string]bool{},
	}
	for cat, cc := range cfg.Categories {
		p.categories = append(p.categories, cat)
		for sub, sc := range cc.Subcategories {
			p.subcategories[cat] = append(p.subcategories[cat], sub)
			p.descriptions[pairKey(cat, sub)] = sc
			p.valid[pairKey(cat, sub)] = true
		}
		sort.Strings(p.subcategories[cat])
	}
	sort.Strings(p.categories)
	return p
}

// Categories returns the category names in sorted order.
func (p *Policy) Categories() []string {
	return append([]string(nil), p.categories...)
}

// Subcategories returns every subcategory name across all categories, sorted
// and deduplicated.
func (p *Policy) Subcategories() []string {
	seen := map[string]bool{}
	var out []string
	for _, subs := range p.subcategories {
		for _, s := range subs {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// IsValid reports whether the pair exists in the configured vocabulary.
func (p *Policy) IsValid(category, subcategory string) bool {
	return p.valid[pairKey(category, subcategory)]
}

// Enforce clamps a model-proposed result to the vocabulary. An invalid pair is
// replaced with the fallback category, never passed through.
func (p *Policy) Enforce(r Result) Result {
	if p.IsValid(r.Category, r.Subcategory) {
		return r
	}
	return Result{
		EmailID:     r.EmailID,
		Category:    constants.FallbackCategory,
		Subcategory: constants.FallbackSubcategory,
		Confidence:  constants.FallbackConfidence,
		Reasoning:   fmt.Sprintf("fallback: model proposed invalid pair %q/%q", r.Category, r.Subcategory),
	}
}

// VocabularyBlock renders the category tree for the prompt, one line per
// subcategory with its description and example keywords.
func (p *Policy) VocabularyBlock() string {
	var b strings.Builder
	for _, cat := range p.categories {
		b.WriteString(cat)
		b.WriteString(":\n")
		for _, sub := range p.subcategories[cat] {
			sc := p.descriptions[pairKey(cat, sub)]
			b.WriteString("  - ")
			b.WriteString(sub)
			if sc.Description != "" {
				b.WriteString(": ")
				b.WriteString(sc.Description)
			}
			if len(sc.Keywords) > 0 {
				b.WriteString(" (e.g. ")
				b.WriteString(strings.Join(sc.Keywords, ", "))
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func pairKey(category, subcategory string) string {
	return category + "/" + subcategory
}
