package mail

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		slog.Error("exec failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10), // cap at 8KB
		)
	} else {
		slog.Debug("exec ok",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// PDFTextExtractor pulls text from the first PDF attachment of an email by
// shelling out to pdftotext.
type PDFTextExtractor struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	runner    Runner
	log       *slog.Logger
}

func NewPDFTextExtractor(pdftotext string, logger *slog.Logger) *PDFTextExtractor {
	if pdftotext == "" {
		pdftotext = "pdftotext"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFTextExtractor{Pdftotext: pdftotext, runner: execRunner{}, log: logger}
}

// ExtractFirst returns the text of the first PDF attachment, or "" when the
// email carries none. Extraction failures degrade to empty text with a warn
// log; an unreadable PDF must not fail the email.
func (e *PDFTextExtractor) ExtractFirst(ctx context.Context, email RawEmail) string {
	var pdf *Attachment
	for i := range email.Attachments {
		if email.Attachments[i].IsPDF() {
			pdf = &email.Attachments[i]
			break
		}
	}
	if pdf == nil {
		return ""
	}

	tmp, err := os.CreateTemp("", "mailsift-*.pdf")
	if err != nil {
		e.log.Warn("pdftext.tempfile_failed", "email_id", email.SourceID, "error", err)
		return ""
	}
	defer func() {
		if rerr := os.Remove(tmp.Name()); rerr != nil {
			e.log.Warn("pdftext.cleanup_failed", "path", tmp.Name(), "error", rerr)
		}
	}()
	if _, err := tmp.Write(pdf.Content); err != nil {
		_ = tmp.Close()
		e.log.Warn("pdftext.write_failed", "email_id", email.SourceID, "error", err)
		return ""
	}
	if err := tmp.Close(); err != nil {
		e.log.Warn("pdftext.close_failed", "email_id", email.SourceID, "error", err)
		return ""
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", tmp.Name(), "-")
	if err != nil {
		e.log.Warn("pdftext.extract_failed",
			"email_id", email.SourceID,
			"filename", filepath.Base(pdf.Filename),
			"error", err,
			"stderr", truncate(string(errb), 1<<10),
		)
		return ""
	}

	text := string(out)
	pages := 1 + strings.Count(text, "\f")
	e.log.Debug("pdftext.ok",
		"email_id", email.SourceID,
		"filename", filepath.Base(pdf.Filename),
		"pages", pages,
		"bytes", len(text),
	)
	return text
}
