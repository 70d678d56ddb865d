// Package extract implements the per-domain email extractors: the cheap gate
// that decides whether an email is worth a model call, the model round-trip,
// and the field normalization that turns a completion into a record.
package extract

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/zeroinbox/mailsift/constants"
	"github.com/zeroinbox/mailsift/internal/mail"
)

// Candidate is the gate decision for one (email, extractor) pair. Produced
// once, never mutated.
type Candidate struct {
	EmailID   string
	Extractor string
	Accept    bool
	Reasons   []string
}

// Record is the single output of one extractor pass over one email. Every
// gated email produces at least one record, whatever happened: downstream
// auditing requires a row per email considered.
type Record struct {
	EmailID   string
	Subject   string
	Sender    string
	EmailDate string

	Status constants.RecordStatus
	Fields map[string]string // domain payload, empty for rejected/failed

	Confidence      float64
	ReasoningBefore string
	ReasoningAfter  string

	BackupPath      string
	HumanEvaluation string // populated by the downstream review process
	HumanFeedback   string

	ProcessedAt time.Time
}

// newRecord stamps the shared email metadata onto a fresh record.
func newRecord(e mail.RawEmail, status constants.RecordStatus) Record {
	return Record{
		EmailID:     e.SourceID,
		Subject:     e.Subject,
		Sender:      e.Sender,
		EmailDate:   e.DateString(),
		Status:      status,
		Fields:      map[string]string{},
		ProcessedAt: time.Now(),
	}
}

// Row flattens the record into the column map the ledger stores and exports.
// Domain fields keep their own names; heterogeneous shapes (accepted vs
// rejected vs failed) share one table through the exporter's column union.
func (r Record) Row() map[string]string {
	row := map[string]string{
		"email_id":               r.EmailID,
		"email_subject":          r.Subject,
		"email_sender":           r.Sender,
		"email_date":             r.EmailDate,
		"email_backup_path":      r.BackupPath,
		"status":                 string(r.Status),
		"extracted":              strconv.FormatBool(r.Status == constants.StatusAccepted),
		"confidence":             formatConfidence(r.Confidence),
		"model_reasoning_before": r.ReasoningBefore,
		"model_reasoning_after":  r.ReasoningAfter,
		"human_evaluation":       r.HumanEvaluation,
		"human_feedback":         r.HumanFeedback,
		"processing_timestamp":   r.ProcessedAt.Format("2006-01-02 15:04:05"),
	}
	for k, v := range r.Fields {
		row[k] = v
	}
	return row
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}

// BackupWriter persists a per-email backup for audit reference. The session
// implementing it is owned by the orchestrator and scoped to one batch.
type BackupWriter interface {
	WriteEmail(email mail.RawEmail, content mail.NormalizedContent) (path string, err error)
}

// Extractor is one domain pipeline (invoices, concerts). Gate must be a pure
// function over its inputs; Extract performs exactly one model call and
// always returns at least one record.
type Extractor interface {
	Name() string
	Scope() constants.Scope
	OutputFile() string
	Gate(e mail.RawEmail, content mail.NormalizedContent) Candidate
	Extract(ctx context.Context, e mail.RawEmail, content mail.NormalizedContent, backup BackupWriter) []Record
}

// failedRecord builds the uniform FAILED record used when the model call or
// the surrounding processing errored.
func failedRecord(e mail.RawEmail, backupPath string, err error) Record {
	rec := newRecord(e, constants.StatusFailed)
	rec.BackupPath = backupPath
	rec.ReasoningBefore = fmt.Sprintf("Processing failed: %v", err)
	return rec
}
