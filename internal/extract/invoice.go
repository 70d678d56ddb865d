package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zeroinbox/mailsift/constants"
	"github.com/zeroinbox/mailsift/internal/config"
	"github.com/zeroinbox/mailsift/internal/llm"
	"github.com/zeroinbox/mailsift/internal/mail"
)

// InvoiceExtractor detects invoices and payment requests. The gate requires an
// invoice keyword in the subject or sender plus at least one corroborating
// signal: a known business domain, an amount pattern in the body, or a PDF
// attachment when configured to count one.
type InvoiceExtractor struct {
	outputFile string
	keywords   []string
	domains    []string
	amountKws  []string
	acceptPDF  bool

	tmpl      *llm.Template
	client    llm.ChatClient
	maxTokens int
	bodyLimit int
	pdfLimit  int
	log       *slog.Logger
}

func NewInvoiceExtractor(cfg config.ExtractorConfig, proc config.ProcessingConfig, client llm.ChatClient, maxTokens int, logger *slog.Logger) (*InvoiceExtractor, error) {
	tmpl, err := llm.NewTemplate(cfg.PromptTemplate, config.RequiredPlaceholders("invoices"))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoiceExtractor{
		outputFile: cfg.OutputFile,
		keywords:   cfg.AllKeywords(),
		domains:    cfg.BusinessDomains,
		amountKws:  cfg.AllAmountKeywords(),
		acceptPDF:  cfg.AcceptPDF,
		tmpl:       tmpl,
		client:     client,
		maxTokens:  maxTokens,
		bodyLimit:  proc.BodyCharLimit,
		pdfLimit:   proc.PDFCharLimit,
		log:        logger,
	}, nil
}

func (x *InvoiceExtractor) Name() string           { return "invoices" }
func (x *InvoiceExtractor) Scope() constants.Scope { return constants.ScopeInvoices }
func (x *InvoiceExtractor) OutputFile() string     { return x.outputFile }

// Gate is a pure predicate over the email and its normalized content. No
// configured keywords means no acceptance, ever.
func (x *InvoiceExtractor) Gate(e mail.RawEmail, content mail.NormalizedContent) Candidate {
	cand := Candidate{EmailID: e.SourceID, Extractor: x.Name()}

	if !matchesAny(e.Subject+" "+e.Sender, x.keywords) {
		cand.Reasons = append(cand.Reasons, "no invoice keyword in subject or sender")
		return cand
	}
	cand.Reasons = append(cand.Reasons, "invoice keyword matched")

	switch {
	case matchesDomain(e.Sender, x.domains):
		cand.Reasons = append(cand.Reasons, "sender matches business domain")
	case matchesAny(content.Body, x.amountKws):
		cand.Reasons = append(cand.Reasons, "amount pattern in body")
	case x.acceptPDF && hasPDF(e):
		cand.Reasons = append(cand.Reasons, "pdf attachment present")
	default:
		cand.Reasons = append(cand.Reasons, "no corroborating signal")
		return cand
	}

	cand.Accept = true
	return cand
}

// Extract runs one model call and returns exactly one record: accepted when
// the model reports an invoice, rejected when it does not or the response is
// unusable, failed when the call itself errored.
func (x *InvoiceExtractor) Extract(ctx context.Context, e mail.RawEmail, content mail.NormalizedContent, backup BackupWriter) []Record {
	start := time.Now()
	backupPath := writeBackup(backup, e, content, x.log)

	prompt, err := x.renderPrompt(e, content)
	if err != nil {
		return []Record{failedRecord(e, backupPath, err)}
	}

	completion, err := x.client.Complete(ctx, prompt, x.maxTokens)
	if err != nil {
		x.log.Error("extract.invoice.model_failed", "email_id", e.SourceID, "error", err)
		return []Record{failedRecord(e, backupPath, err)}
	}

	parsed, reasoning := llm.ParseObject(completion, x.log)
	rec := newRecord(e, constants.StatusRejected)
	rec.BackupPath = backupPath
	rec.ReasoningBefore = reasoning.Before
	rec.ReasoningAfter = reasoning.After

	if len(parsed) == 0 {
		rec.ReasoningBefore = "No parseable JSON object in model response"
		return []Record{rec}
	}
	if err := llm.ValidateObject(llm.BuildInvoiceJSONSchema(), parsed); err != nil {
		x.log.Warn("extract.invoice.schema_invalid", "email_id", e.SourceID, "error", err)
		rec.ReasoningAfter = joinNonEmpty(rec.ReasoningAfter, fmt.Sprintf("schema validation failed: %v", err))
		return []Record{rec}
	}

	isInvoice, _ := parsed["is_invoice"].(bool)
	if !isInvoice {
		x.log.Info("extract.invoice.rejected",
			"email_id", e.SourceID,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return []Record{rec}
	}

	rec.Status = constants.StatusAccepted
	rec.Confidence = asFloat(parsed["confidence"], 0)
	rec.Fields = map[string]string{
		"vendor":         asString(parsed["vendor"]),
		"invoice_number": asString(parsed["invoice_number"]),
		"amount":         CleanAmount(asString(parsed["amount"])),
		"currency":       normalizeCurrency(asString(parsed["currency"])),
		"due_date":       CleanDate(asString(parsed["due_date"])),
		"invoice_date":   CleanDate(asString(parsed["invoice_date"])),
		"ocr":            asString(parsed["ocr"]),
		"description":    asString(parsed["description"]),
	}

	x.log.Info("extract.invoice.accepted",
		"email_id", e.SourceID,
		"vendor", rec.Fields["vendor"],
		"amount", rec.Fields["amount"],
		"confidence", rec.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return []Record{rec}
}

func (x *InvoiceExtractor) renderPrompt(e mail.RawEmail, content mail.NormalizedContent) (string, error) {
	vars := map[string]string{
		"email_content": llm.EmailHeaderBlock(e.Subject, e.Sender, e.DateString(), content.Body, content.PDFText, x.bodyLimit, x.pdfLimit),
		"subject":       e.Subject,
		"sender":        e.Sender,
	}
	return x.tmpl.Render(vars)
}

func normalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return "SEK"
	}
	return c
}

func hasPDF(e mail.RawEmail) bool {
	for _, a := range e.Attachments {
		if a.IsPDF() {
			return true
		}
	}
	return false
}

func writeBackup(backup BackupWriter, e mail.RawEmail, content mail.NormalizedContent, logger *slog.Logger) string {
	if backup == nil {
		return ""
	}
	path, err := backup.WriteEmail(e, content)
	if err != nil {
		logger.Warn("extract.backup_failed", "email_id", e.SourceID, "error", err)
		return ""
	}
	return path
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// json numbers decode as float64; keep integral values clean
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asFloat(v any, fallback float64) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return fallback
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " | ")
}
