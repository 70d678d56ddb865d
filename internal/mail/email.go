// Package mail defines the raw email model and the mail source contract the
// pipeline consumes.
package mail

import (
	"context"
	"strings"
	"time"

	"github.com/zeroinbox/mailsift/internal/textnorm"
)

// Attachment is one MIME part attached to an email.
type Attachment struct {
	Filename string
	MIMEType string
	Size     int64
	Content  []byte
}

// IsPDF reports whether the attachment looks like a PDF by MIME type or
// extension.
func (a Attachment) IsPDF() bool {
	if strings.EqualFold(a.MIMEType, "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(a.Filename), ".pdf")
}

// RawEmail is one fetched message. Immutable once fetched; extractors receive
// it by value and never mutate it.
type RawEmail struct {
	SourceID    string // unique per mail source
	Sender      string
	Subject     string
	ReceivedAt  time.Time
	Body        string // plaintext body if present
	HTMLBody    string // html body if present
	Attachments []Attachment
}

// DateString formats the received timestamp the way records store it.
func (e RawEmail) DateString() string {
	if e.ReceivedAt.IsZero() {
		return ""
	}
	return e.ReceivedAt.Format("2006-01-02 15:04:05")
}

// NormalizedContent is the prompt-safe derivation of a RawEmail.
type NormalizedContent struct {
	Body    string
	PDFText string
}

// Length is the combined content length in bytes.
func (n NormalizedContent) Length() int {
	return len(n.Body) + len(n.PDFText)
}

// NormalizeEmail cleans the email body (preferring plaintext, converting HTML
// to markdown otherwise) and the supplied PDF text. Normalization is
// idempotent, so re-deriving from already-clean text is harmless.
func NormalizeEmail(e RawEmail, pdfText string) NormalizedContent {
	body := e.Body
	if strings.TrimSpace(body) == "" && e.HTMLBody != "" {
		body = textnorm.HTMLToMarkdown(e.HTMLBody)
	}
	return NormalizedContent{
		Body:    textnorm.Normalize(body),
		PDFText: textnorm.Normalize(pdfText),
	}
}

// Query selects which emails a Source fetches.
type Query struct {
	Keywords []string
	Since    time.Time
	Before   time.Time
	Max      int
}

// Source yields a batch of raw emails for a query. Implementations must
// distinguish transient failures (wrap common.ErrTransientFetch) from fatal
// ones so the orchestrator can skip-and-continue versus abort.
type Source interface {
	Fetch(ctx context.Context, q Query) ([]RawEmail, error)
}
