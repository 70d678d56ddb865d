package categorize

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/zeroinbox/mailsift/internal/llm"
	"github.com/zeroinbox/mailsift/internal/mail"
)

// Categorizer runs the model call for one email and enforces the vocabulary
// on whatever comes back. There is no gate: every fetched email gets a
// category.
type Categorizer struct {
	policy    *Policy
	schema    map[string]any
	client    llm.ChatClient
	maxTokens int
	bodyLimit int
	log       *slog.Logger
}

func NewCategorizer(policy *Policy, client llm.ChatClient, maxTokens, bodyLimit int, logger *slog.Logger) *Categorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Categorizer{
		policy:    policy,
		schema:    llm.BuildCategorizationJSONSchema(policy.Categories(), policy.Subcategories()),
		client:    client,
		maxTokens: maxTokens,
		bodyLimit: bodyLimit,
		log:       logger,
	}
}

// Categorize classifies one email. Model-call errors are returned to the
// caller; unusable responses degrade to the fallback pair so the email is
// still accounted for.
func (c *Categorizer) Categorize(ctx context.Context, e mail.RawEmail, content mail.NormalizedContent) (Result, error) {
	start := time.Now()

	completion, err := c.client.Complete(ctx, c.buildPrompt(e, content), c.maxTokens)
	if err != nil {
		return Result{}, err
	}

	parsed, reasoning := llm.ParseObject(completion, c.log)
	if err := llm.ValidateObject(c.schema, parsed); err != nil {
		// An off-vocabulary or malformed response is unusable; Enforce turns
		// the zeroed proposal into the fallback pair.
		c.log.Warn("categorize.schema_invalid", "email_id", e.SourceID, "error", err)
		parsed = map[string]any{}
	}
	proposed := Result{
		EmailID:     e.SourceID,
		Category:    stringField(parsed, "category"),
		Subcategory: stringField(parsed, "subcategory"),
		Confidence:  floatField(parsed, "confidence", 0),
		Reasoning:   stringField(parsed, "reasoning"),
	}
	if proposed.Reasoning == "" {
		proposed.Reasoning = reasoning.Before
	}

	result := c.policy.Enforce(proposed)
	if result.Category != proposed.Category || result.Subcategory != proposed.Subcategory {
		c.log.Warn("categorize.fallback",
			"email_id", e.SourceID,
			"proposed_category", proposed.Category,
			"proposed_subcategory", proposed.Subcategory,
		)
	}

	c.log.Info("categorize.ok",
		"email_id", e.SourceID,
		"category", result.Category,
		"subcategory", result.Subcategory,
		"confidence", result.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (c *Categorizer) buildPrompt(e mail.RawEmail, content mail.NormalizedContent) string {
	var b strings.Builder
	b.WriteString("Categorize this email into exactly one category and subcategory from the list below.\n\n")
	b.WriteString("Available categories:\n")
	b.WriteString(c.policy.VocabularyBlock())
	b.WriteString("\nEmail:\n")
	b.WriteString(llm.EmailHeaderBlock(e.Subject, e.Sender, e.DateString(), content.Body, "", c.bodyLimit, 0))
	b.WriteString("\nRespond with a JSON object: {\"category\": ..., \"subcategory\": ..., \"confidence\": 0.0-1.0, \"reasoning\": ...}. ")
	b.WriteString("Use only the listed category and subcategory names.")
	return b.String()
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func floatField(m map[string]any, key string, fallback float64) float64 {
	if f, ok := m[key].(float64); ok {
		return f
	}
	return fallback
}
