package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"

	"github.com/zeroinbox/mailsift/internal/common"
)

// IMAPConfig holds connection settings for the IMAP source.
type IMAPConfig struct {
	Server   string // host:port, TLS
	Username string
	Password string
	Mailbox  string
}

// IMAPSource fetches emails over IMAP. One connection per Fetch call; the
// batch pipeline is sequential so pooling buys nothing here.
type IMAPSource struct {
	cfg IMAPConfig
	log *slog.Logger
}

func NewIMAPSource(cfg IMAPConfig, logger *slog.Logger) *IMAPSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &IMAPSource{cfg: cfg, log: logger}
}

// Fetch searches the mailbox and returns up to q.Max parsed emails, newest
// last. Connection and search failures are transient; authentication failures
// are fatal.
func (s *IMAPSource) Fetch(ctx context.Context, q Query) ([]RawEmail, error) {
	start := time.Now()
	s.log.Info("mail.fetch.start",
		"server", s.cfg.Server,
		"mailbox", s.cfg.Mailbox,
		"keywords", len(q.Keywords),
		"max", q.Max,
	)

	c, err := client.DialTLS(s.cfg.Server, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", common.ErrTransientFetch, s.cfg.Server, err)
	}
	defer func() {
		if lerr := c.Logout(); lerr != nil {
			s.log.Warn("mail.fetch.logout_error", "error", lerr)
		}
	}()

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		// Bad credentials will not heal on retry.
		return nil, common.WrapError(err, "imap login")
	}
	if _, err := c.Select(s.cfg.Mailbox, true); err != nil {
		return nil, fmt.Errorf("%w: select %s: %v", common.ErrTransientFetch, s.cfg.Mailbox, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := buildCriteria(q)
	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", common.ErrTransientFetch, err)
	}
	if len(seqNums) == 0 {
		s.log.Info("mail.fetch.empty", "elapsed_ms", time.Since(start).Milliseconds())
		return nil, nil
	}
	if q.Max > 0 && len(seqNums) > q.Max {
		// Keep the newest messages; sequence numbers grow with arrival order.
		seqNums = seqNums[len(seqNums)-q.Max:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var emails []RawEmail
	for msg := range messages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		email, perr := s.parseMessage(msg, section)
		if perr != nil {
			s.log.Warn("mail.fetch.parse_failed", "seq", msg.SeqNum, "error", perr)
			continue
		}
		emails = append(emails, email)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: fetch: %v", common.ErrTransientFetch, err)
	}

	s.log.Info("mail.fetch.ok",
		"fetched", len(emails),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return emails, nil
}

func buildCriteria(q Query) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	if !q.Since.IsZero() {
		criteria.Since = q.Since
	}
	if !q.Before.IsZero() {
		criteria.Before = q.Before
	}
	if kw := orKeywords(q.Keywords); kw != nil {
		criteria.Or = kw.Or
		criteria.Text = kw.Text
	}
	return criteria
}

// orKeywords folds N keywords into nested OR pairs, the shape IMAP SEARCH
// expects.
func orKeywords(keywords []string) *imap.SearchCriteria {
	if len(keywords) == 0 {
		return nil
	}
	first := imap.NewSearchCriteria()
	first.Text = []string{keywords[0]}
	if len(keywords) == 1 {
		return first
	}
	rest := orKeywords(keywords[1:])
	or := imap.NewSearchCriteria()
	or.Or = [][2]*imap.SearchCriteria{{first, rest}}
	return or
}

func (s *IMAPSource) parseMessage(msg *imap.Message, section *imap.BodySectionName) (RawEmail, error) {
	body := msg.GetBody(section)
	if body == nil {
		return RawEmail{}, fmt.Errorf("message %d has no body section", msg.SeqNum)
	}
	env, err := enmime.ReadEnvelope(body)
	if err != nil {
		return RawEmail{}, fmt.Errorf("parse mime: %w", err)
	}

	email := RawEmail{
		Body:     env.Text,
		HTMLBody: env.HTML,
	}
	if msg.Envelope != nil {
		email.SourceID = msg.Envelope.MessageId
		email.Subject = msg.Envelope.Subject
		email.ReceivedAt = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			email.Sender = msg.Envelope.From[0].Address()
		}
	}
	if email.SourceID == "" {
		email.SourceID = fmt.Sprintf("%s-seq-%d", s.cfg.Mailbox, msg.SeqNum)
	}

	for _, part := range env.Attachments {
		email.Attachments = append(email.Attachments, Attachment{
			Filename: part.FileName,
			MIMEType: part.ContentType,
			Size:     int64(len(part.Content)),
			Content:  part.Content,
		})
	}
	return email, nil
}
