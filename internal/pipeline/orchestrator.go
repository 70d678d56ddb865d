// Package pipeline wires the mail source, gates, extractors, categorizer and
// ledger into one sequential batch run.
package pipeline

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/zeroinbox/mailsift/constants"
	"github.com/zeroinbox/mailsift/internal/categorize"
	"github.com/zeroinbox/mailsift/internal/common"
	"github.com/zeroinbox/mailsift/internal/extract"
	"github.com/zeroinbox/mailsift/internal/followup"
	"github.com/zeroinbox/mailsift/internal/ledger"
	"github.com/zeroinbox/mailsift/internal/mail"
)

// Stats are the batch counters. A run always reports them, even when it
// aborts early.
type Stats struct {
	Fetched     int
	Processed   int
	Skipped     int
	Accepted    int
	Rejected    int
	Failed      int
	Categorized int
	FollowedUp  int
}

// Orchestrator runs one batch: fetch, then per email and per lane gate,
// extract, categorize, persist. Per-item failures are logged and counted but
// never abort the batch; only a fatal fetch error or context cancellation
// does.
type Orchestrator struct {
	source      mail.Source
	pdf         *mail.PDFTextExtractor
	store       *ledger.Ledger
	extractors  []extract.Extractor
	categorizer *categorize.Categorizer // nil when the lane is disabled
	followups   []followup.Lane
	backupDir   string
	callDelay   time.Duration
	log         *slog.Logger

	lastCall time.Time
}

func NewOrchestrator(
	source mail.Source,
	pdf *mail.PDFTextExtractor,
	store *ledger.Ledger,
	extractors []extract.Extractor,
	categorizer *categorize.Categorizer,
	followups []followup.Lane,
	backupDir string,
	callDelay time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		source:      source,
		pdf:         pdf,
		store:       store,
		extractors:  extractors,
		categorizer: categorizer,
		followups:   followups,
		backupDir:   backupDir,
		callDelay:   callDelay,
		log:         logger,
	}
}

// Run executes one batch for the query. A transient fetch failure ends the
// run with zero counts and no error; anything fatal is returned alongside the
// counts gathered so far.
func (o *Orchestrator) Run(ctx context.Context, q mail.Query) (Stats, error) {
	start := time.Now()
	var stats Stats

	emails, err := o.source.Fetch(ctx, q)
	if err != nil {
		if common.IsTransient(err) {
			o.log.Warn("pipeline.fetch_transient", "error", err)
			return stats, nil
		}
		return stats, err
	}
	stats.Fetched = len(emails)
	if len(emails) == 0 {
		o.log.Info("pipeline.done", "fetched", 0, "elapsed_ms", time.Since(start).Milliseconds())
		return stats, nil
	}

	session, err := NewSession(o.backupDir, o.log)
	if err != nil {
		return stats, err
	}
	defer session.Close()
	o.log.Info("pipeline.start", "fetched", stats.Fetched, "backup_dir", session.Dir())

	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		o.processEmail(ctx, email, session, &stats)
		stats.Processed++
	}

	o.log.Info("pipeline.done",
		"fetched", stats.Fetched,
		"processed", stats.Processed,
		"skipped", stats.Skipped,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"failed", stats.Failed,
		"categorized", stats.Categorized,
		"followed_up", stats.FollowedUp,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return stats, nil
}

// processEmail runs every lane over one email. Failures inside a lane are
// contained here.
func (o *Orchestrator) processEmail(ctx context.Context, email mail.RawEmail, session *Session, stats *Stats) {
	pdfText := ""
	if o.pdf != nil {
		pdfText = o.pdf.ExtractFirst(ctx, email)
	}
	content := mail.NormalizeEmail(email, pdfText)
	o.log.Debug("pipeline.email", "email_id", email.SourceID, "content_len", content.Length())

	for _, x := range o.extractors {
		if ctx.Err() != nil {
			return
		}
		done, err := o.store.IsProcessed(ctx, email.SourceID, x.Scope())
		if err != nil {
			o.log.Error("pipeline.ledger_lookup_failed", "email_id", email.SourceID, "scope", string(x.Scope()), "error", err)
			stats.Failed++
			continue
		}
		if done {
			stats.Skipped++
			continue
		}

		cand := x.Gate(email, content)
		o.log.Debug("pipeline.gate",
			"email_id", email.SourceID,
			"extractor", cand.Extractor,
			"accept", cand.Accept,
			"reasons", cand.Reasons,
		)
		if !cand.Accept {
			continue
		}

		o.pause(ctx)
		records := x.Extract(ctx, email, content, session)
		rows := make([]map[string]string, 0, len(records))
		for _, rec := range records {
			rows = append(rows, rec.Row())
			switch rec.Status {
			case constants.StatusAccepted:
				stats.Accepted++
			case constants.StatusRejected:
				stats.Rejected++
			case constants.StatusFailed:
				stats.Failed++
			}
		}
		if err := o.store.Persist(ctx, email.SourceID, x.Scope(), rows); err != nil {
			o.log.Error("pipeline.persist_failed", "email_id", email.SourceID, "scope", string(x.Scope()), "error", err)
			stats.Failed++
		}
	}

	category, ok := o.categorizeEmail(ctx, email, content, stats)
	if ok {
		o.followUpEmail(ctx, email, content, category, stats)
	}
}

// categorizeEmail returns the category assigned to the email and whether one
// is available. A replayed email recovers its category from the ledger so the
// follow-up lanes still see it.
func (o *Orchestrator) categorizeEmail(ctx context.Context, email mail.RawEmail, content mail.NormalizedContent, stats *Stats) (string, bool) {
	if o.categorizer == nil || ctx.Err() != nil {
		return "", false
	}
	done, err := o.store.IsProcessed(ctx, email.SourceID, constants.ScopeCategories)
	if err != nil {
		o.log.Error("pipeline.ledger_lookup_failed", "email_id", email.SourceID, "scope", string(constants.ScopeCategories), "error", err)
		stats.Failed++
		return "", false
	}
	if done {
		stats.Skipped++
		rows, err := o.store.FindRows(ctx, email.SourceID, constants.ScopeCategories)
		if err != nil || len(rows) == 0 {
			return "", false
		}
		return rows[0]["category"], true
	}

	o.pause(ctx)
	result, err := o.categorizer.Categorize(ctx, email, content)
	if err != nil {
		o.log.Error("pipeline.categorize_failed", "email_id", email.SourceID, "error", err)
		stats.Failed++
		return "", false
	}

	row := map[string]string{
		"email_id":               email.SourceID,
		"email_subject":          email.Subject,
		"email_sender":           email.Sender,
		"email_date":             email.DateString(),
		"category":               result.Category,
		"subcategory":            result.Subcategory,
		"confidence":             strconv.FormatFloat(result.Confidence, 'f', -1, 64),
		"model_reasoning_before": result.Reasoning,
		"processing_timestamp":   time.Now().Format("2006-01-02 15:04:05"),
	}
	if err := o.store.Persist(ctx, email.SourceID, constants.ScopeCategories, []map[string]string{row}); err != nil {
		o.log.Error("pipeline.persist_failed", "email_id", email.SourceID, "scope", string(constants.ScopeCategories), "error", err)
		stats.Failed++
		return "", false
	}
	stats.Categorized++
	return result.Category, true
}

// followUpEmail runs every lane whose trigger categories match. A lane failure
// leaves no ledger mark, so the email is retried for that lane on the next
// run.
func (o *Orchestrator) followUpEmail(ctx context.Context, email mail.RawEmail, content mail.NormalizedContent, category string, stats *Stats) {
	for _, lane := range o.followups {
		if ctx.Err() != nil {
			return
		}
		if !lane.AppliesTo(category) {
			continue
		}
		done, err := o.store.IsProcessed(ctx, email.SourceID, lane.Scope())
		if err != nil {
			o.log.Error("pipeline.ledger_lookup_failed", "email_id", email.SourceID, "scope", string(lane.Scope()), "error", err)
			stats.Failed++
			continue
		}
		if done {
			stats.Skipped++
			continue
		}

		o.pause(ctx)
		row, err := lane.Analyze(ctx, email, content)
		if err != nil {
			o.log.Error("pipeline.followup_failed", "email_id", email.SourceID, "scope", string(lane.Scope()), "error", err)
			stats.Failed++
			continue
		}
		if err := o.store.Persist(ctx, email.SourceID, lane.Scope(), []map[string]string{row}); err != nil {
			o.log.Error("pipeline.persist_failed", "email_id", email.SourceID, "scope", string(lane.Scope()), "error", err)
			stats.Failed++
			continue
		}
		stats.FollowedUp++
	}
}

// pause enforces the fixed delay between consecutive model calls. The first
// call of a batch never waits.
func (o *Orchestrator) pause(ctx context.Context) {
	if o.callDelay <= 0 || o.lastCall.IsZero() {
		o.lastCall = time.Now()
		return
	}
	wait := o.callDelay - time.Since(o.lastCall)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	o.lastCall = time.Now()
}
