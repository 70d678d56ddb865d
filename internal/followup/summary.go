package followup

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/zeroinbox/mailsift/constants"
	"github.com/zeroinbox/mailsift/internal/config"
	"github.com/zeroinbox/mailsift/internal/llm"
	"github.com/zeroinbox/mailsift/internal/mail"
)

// SummaryLane condenses informational emails into a key-facts summary.
type SummaryLane struct {
	outputFile string
	categories map[string]bool
	client     llm.ChatClient
	maxTokens  int
	bodyLimit  int
	pdfLimit   int
	log        *slog.Logger
}

func NewSummaryLane(cfg config.LaneConfig, proc config.ProcessingConfig, client llm.ChatClient, maxTokens int, logger *slog.Logger) *SummaryLane {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryLane{
		outputFile: cfg.OutputFile,
		categories: categorySet(cfg.Categories),
		client:     client,
		maxTokens:  maxTokens,
		bodyLimit:  proc.BodyCharLimit,
		pdfLimit:   proc.PDFCharLimit,
		log:        logger,
	}
}

func (l *SummaryLane) Scope() constants.Scope { return constants.ScopeSummaries }
func (l *SummaryLane) OutputFile() string     { return l.outputFile }

func (l *SummaryLane) AppliesTo(category string) bool { return l.categories[category] }

func (l *SummaryLane) Analyze(ctx context.Context, e mail.RawEmail, content mail.NormalizedContent) (map[string]string, error) {
	start := time.Now()

	completion, err := l.client.Complete(ctx, l.buildPrompt(e, content), l.maxTokens)
	if err != nil {
		return nil, err
	}

	parsed, reasoning := llm.ParseObject(completion, l.log)
	row := baseRow(e)
	row["summary"] = stringField(parsed, "summary")
	row["model_reasoning_before"] = stringField(parsed, "reasoning")
	if row["model_reasoning_before"] == "" {
		row["model_reasoning_before"] = reasoning.Before
	}

	l.log.Info("followup.summary.ok",
		"email_id", e.SourceID,
		"summary_len", len(row["summary"]),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return row, nil
}

func (l *SummaryLane) buildPrompt(e mail.RawEmail, content mail.NormalizedContent) string {
	var b strings.Builder
	b.WriteString("Summarize the key information in this email. ")
	b.WriteString("Focus on factual content only: amounts, dates, names, actions. ")
	b.WriteString("For job emails list all positions; for payments include what, when, amount and payee.\n\n")
	b.WriteString(llm.EmailHeaderBlock(e.Subject, e.Sender, e.DateString(), content.Body, content.PDFText, l.bodyLimit, l.pdfLimit))
	b.WriteString("\nRespond with a JSON object: {\"summary\": ..., \"reasoning\": ...}.")
	return b.String()
}
