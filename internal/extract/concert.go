package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/zeroinbox/mailsift/constants"
	"github.com/zeroinbox/mailsift/internal/config"
	"github.com/zeroinbox/mailsift/internal/llm"
	"github.com/zeroinbox/mailsift/internal/mail"
)

// concertDefaultConfidence applies when the model omits a confidence value;
// concert announcements from ticket vendors are rarely ambiguous.
const concertDefaultConfidence = 0.8

// ConcertExtractor detects concert and event announcements. The gate requires
// both a concert keyword (subject or body) and a configured location mention.
// One email can yield several records: a vendor newsletter often lists
// multiple shows.
type ConcertExtractor struct {
	outputFile string
	keywords   []string
	locations  []string

	tmpl      *llm.Template
	client    llm.ChatClient
	maxTokens int
	bodyLimit int
	pdfLimit  int
	log       *slog.Logger
}

func NewConcertExtractor(cfg config.ExtractorConfig, proc config.ProcessingConfig, client llm.ChatClient, maxTokens int, logger *slog.Logger) (*ConcertExtractor, error) {
	tmpl, err := llm.NewTemplate(cfg.PromptTemplate, config.RequiredPlaceholders("concerts"))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConcertExtractor{
		outputFile: cfg.OutputFile,
		keywords:   cfg.AllKeywords(),
		locations:  cfg.Locations,
		tmpl:       tmpl,
		client:     client,
		maxTokens:  maxTokens,
		bodyLimit:  proc.BodyCharLimit,
		pdfLimit:   proc.PDFCharLimit,
		log:        logger,
	}, nil
}

func (x *ConcertExtractor) Name() string           { return "concerts" }
func (x *ConcertExtractor) Scope() constants.Scope { return constants.ScopeConcerts }
func (x *ConcertExtractor) OutputFile() string     { return x.outputFile }

func (x *ConcertExtractor) Gate(e mail.RawEmail, content mail.NormalizedContent) Candidate {
	cand := Candidate{EmailID: e.SourceID, Extractor: x.Name()}
	searchable := e.Subject + " " + content.Body

	if !matchesAny(searchable, x.keywords) {
		cand.Reasons = append(cand.Reasons, "no concert keyword in subject or body")
		return cand
	}
	cand.Reasons = append(cand.Reasons, "concert keyword matched")

	if !matchesAny(searchable, x.locations) {
		cand.Reasons = append(cand.Reasons, "no configured location mentioned")
		return cand
	}
	cand.Reasons = append(cand.Reasons, "location matched")

	cand.Accept = true
	return cand
}

// Extract runs one model call and returns one record per concert the model
// found, or a single rejected/failed record when it found none or the call
// broke.
func (x *ConcertExtractor) Extract(ctx context.Context, e mail.RawEmail, content mail.NormalizedContent, backup BackupWriter) []Record {
	start := time.Now()
	backupPath := writeBackup(backup, e, content, x.log)

	prompt, err := x.renderPrompt(e, content)
	if err != nil {
		return []Record{failedRecord(e, backupPath, err)}
	}

	completion, err := x.client.Complete(ctx, prompt, x.maxTokens)
	if err != nil {
		x.log.Error("extract.concert.model_failed", "email_id", e.SourceID, "error", err)
		return []Record{failedRecord(e, backupPath, err)}
	}

	items, reasoning := llm.ParseArray(completion, x.log)
	if len(items) == 0 {
		rec := newRecord(e, constants.StatusRejected)
		rec.BackupPath = backupPath
		rec.ReasoningBefore = reasoning.Before
		rec.ReasoningAfter = reasoning.After
		x.log.Info("extract.concert.rejected",
			"email_id", e.SourceID,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return []Record{rec}
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		rec := newRecord(e, constants.StatusAccepted)
		rec.BackupPath = backupPath
		rec.ReasoningBefore = reasoning.Before
		rec.ReasoningAfter = reasoning.After
		rec.Confidence = asFloat(item["confidence"], concertDefaultConfidence)
		rec.Fields = map[string]string{
			"artist": asString(item["artist"]),
			"venue":  asString(item["venue"]),
			"town":   asString(item["town"]),
			"date":   CleanDate(asString(item["date"])),
			"time":   asString(item["time"]),
			"price":  asString(item["price"]),
		}
		records = append(records, rec)
	}

	x.log.Info("extract.concert.accepted",
		"email_id", e.SourceID,
		"concerts", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return records
}

func (x *ConcertExtractor) renderPrompt(e mail.RawEmail, content mail.NormalizedContent) (string, error) {
	vars := map[string]string{
		"email_content": llm.EmailHeaderBlock(e.Subject, e.Sender, e.DateString(), content.Body, content.PDFText, x.bodyLimit, x.pdfLimit),
		"subject":       e.Subject,
		"sender":        e.Sender,
	}
	return x.tmpl.Render(vars)
}
