package followup

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/zeroinbox/mailsift/constants"
	"github.com/zeroinbox/mailsift/internal/config"
	"github.com/zeroinbox/mailsift/internal/extract"
	"github.com/zeroinbox/mailsift/internal/llm"
	"github.com/zeroinbox/mailsift/internal/mail"
)

// taskPriorities is the closed priority vocabulary; anything else the model
// proposes is clamped to Medium.
var taskPriorities = map[string]string{
	"low":    "Low",
	"medium": "Medium",
	"high":   "High",
}

// TaskLane turns actionable emails into a what/who/when/priority breakdown.
type TaskLane struct {
	outputFile string
	categories map[string]bool
	client     llm.ChatClient
	maxTokens  int
	bodyLimit  int
	pdfLimit   int
	log        *slog.Logger
}

func NewTaskLane(cfg config.LaneConfig, proc config.ProcessingConfig, client llm.ChatClient, maxTokens int, logger *slog.Logger) *TaskLane {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskLane{
		outputFile: cfg.OutputFile,
		categories: categorySet(cfg.Categories),
		client:     client,
		maxTokens:  maxTokens,
		bodyLimit:  proc.BodyCharLimit,
		pdfLimit:   proc.PDFCharLimit,
		log:        logger,
	}
}

func (l *TaskLane) Scope() constants.Scope { return constants.ScopeTasks }
func (l *TaskLane) OutputFile() string     { return l.outputFile }

func (l *TaskLane) AppliesTo(category string) bool { return l.categories[category] }

func (l *TaskLane) Analyze(ctx context.Context, e mail.RawEmail, content mail.NormalizedContent) (map[string]string, error) {
	start := time.Now()

	completion, err := l.client.Complete(ctx, l.buildPrompt(e, content), l.maxTokens)
	if err != nil {
		return nil, err
	}

	parsed, reasoning := llm.ParseObject(completion, l.log)
	row := baseRow(e)
	row["action_required"] = stringField(parsed, "action_required")
	row["assigned_to"] = defaultString(stringField(parsed, "assigned_to"), "recipient")
	row["due_date"] = normalizeDueDate(stringField(parsed, "due_date"))
	row["priority"] = normalizePriority(stringField(parsed, "priority"))
	row["model_reasoning_before"] = stringField(parsed, "reasoning")
	if row["model_reasoning_before"] == "" {
		row["model_reasoning_before"] = reasoning.Before
	}

	l.log.Info("followup.task.ok",
		"email_id", e.SourceID,
		"action", row["action_required"],
		"priority", row["priority"],
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return row, nil
}

func (l *TaskLane) buildPrompt(e mail.RawEmail, content mail.NormalizedContent) string {
	var b strings.Builder
	b.WriteString("Extract the actionable task from this email: what needs to be done, ")
	b.WriteString("who should do it, by when, and how urgent it is.\n\n")
	b.WriteString(llm.EmailHeaderBlock(e.Subject, e.Sender, e.DateString(), content.Body, content.PDFText, l.bodyLimit, l.pdfLimit))
	b.WriteString("\nRespond with a JSON object: ")
	b.WriteString(`{"action_required": ..., "assigned_to": ..., "due_date": ..., "priority": "Low|Medium|High", "reasoning": ...}. `)
	b.WriteString(`Use "recipient" for assigned_to when no one specific is named, and "Not specified" for an unknown due date.`)
	return b.String()
}

// normalizeDueDate reuses the extractor date normalization; free text like
// "Not specified" passes through unchanged.
func normalizeDueDate(s string) string {
	if s == "" || strings.EqualFold(s, "not specified") {
		return "Not specified"
	}
	return extract.CleanDate(s)
}

func normalizePriority(s string) string {
	if p, ok := taskPriorities[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p
	}
	return "Medium"
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
