package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/zeroinbox/mailsift/internal/mail"
)

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Session owns the per-batch backup directory. The orchestrator opens one at
// batch start and closes it on every exit path; extractors only see the
// BackupWriter interface.
type Session struct {
	dir    string
	serial int
	log    *slog.Logger
}

// NewSession creates a timestamped subdirectory under baseDir for this batch.
func NewSession(baseDir string, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(baseDir, time.Now().Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	logger.Debug("session.open", "dir", dir)
	return &Session{dir: dir, log: logger}, nil
}

// Dir returns the session backup directory.
func (s *Session) Dir() string { return s.dir }

// WriteEmail stores one email's normalized content for audit reference and
// returns the file path.
func (s *Session) WriteEmail(email mail.RawEmail, content mail.NormalizedContent) (string, error) {
	s.serial++
	name := fmt.Sprintf("%03d-%s.txt", s.serial, safeName(email.SourceID))
	path := filepath.Join(s.dir, name)

	var b strings.Builder
	b.WriteString("Message-ID: " + email.SourceID + "\n")
	b.WriteString("From: " + email.Sender + "\n")
	b.WriteString("Subject: " + email.Subject + "\n")
	b.WriteString("Date: " + email.DateString() + "\n\n")
	b.WriteString(content.Body)
	if content.PDFText != "" {
		b.WriteString("\n\n--- PDF TEXT ---\n")
		b.WriteString(content.PDFText)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return path, nil
}

// Close removes the session directory when nothing was written into it.
func (s *Session) Close() {
	if s.serial == 0 {
		if err := os.Remove(s.dir); err != nil {
			s.log.Debug("session.cleanup_skipped", "dir", s.dir, "error", err)
		}
		return
	}
	s.log.Debug("session.close", "dir", s.dir, "files", s.serial)
}

func safeName(id string) string {
	id = strings.Trim(id, "<>")
	id = unsafePathChars.ReplaceAllString(id, "_")
	if len(id) > 80 {
		id = id[:80]
	}
	return id
}
