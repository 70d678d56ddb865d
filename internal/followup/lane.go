// Package followup implements the category-driven lanes that run after an
// email has been categorized: a summary of informational mail and a task
// breakdown of actionable mail. Unlike the extractors there is no content
// gate; a lane fires purely on the assigned category.
package followup

import (
	"context"
	"log/slog"
	"time"

	"github.com/zeroinbox/mailsift/constants"
	"github.com/zeroinbox/mailsift/internal/config"
	"github.com/zeroinbox/mailsift/internal/llm"
	"github.com/zeroinbox/mailsift/internal/mail"
)

// Lane is one follow-up pass. AppliesTo decides from the categorization
// result; Analyze performs exactly one model call and returns the row to
// persist. Model-call errors go back to the orchestrator; unusable responses
// degrade to a row with empty fields so the email is still accounted for.
type Lane interface {
	Scope() constants.Scope
	OutputFile() string
	AppliesTo(category string) bool
	Analyze(ctx context.Context, e mail.RawEmail, content mail.NormalizedContent) (map[string]string, error)
}

// FromConfig builds the enabled follow-up lanes in a fixed order.
func FromConfig(cfg *config.Config, client llm.ChatClient, logger *slog.Logger) []Lane {
	var lanes []Lane
	if cfg.Summaries.Enabled {
		lanes = append(lanes, NewSummaryLane(cfg.Summaries, cfg.Processing, client, cfg.LLM.MaxTokens, logger))
	}
	if cfg.Tasks.Enabled {
		lanes = append(lanes, NewTaskLane(cfg.Tasks, cfg.Processing, client, cfg.LLM.MaxTokens, logger))
	}
	return lanes
}

func categorySet(categories []string) map[string]bool {
	set := make(map[string]bool, len(categories))
	for _, c := range categories {
		set[c] = true
	}
	return set
}

func baseRow(e mail.RawEmail) map[string]string {
	return map[string]string{
		"email_id":             e.SourceID,
		"email_subject":        e.Subject,
		"email_sender":         e.Sender,
		"email_date":           e.DateString(),
		"processing_timestamp": time.Now().Format("2006-01-02 15:04:05"),
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
