package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeroinbox/mailsift/constants"
	"github.com/zeroinbox/mailsift/internal/categorize"
	"github.com/zeroinbox/mailsift/internal/common"
	"github.com/zeroinbox/mailsift/internal/config"
	"github.com/zeroinbox/mailsift/internal/extract"
	"github.com/zeroinbox/mailsift/internal/followup"
	"github.com/zeroinbox/mailsift/internal/ledger"
	"github.com/zeroinbox/mailsift/internal/mail"
)

type stubSource struct {
	emails []mail.RawEmail
	err    error
}

func (s stubSource) Fetch(context.Context, mail.Query) ([]mail.RawEmail, error) {
	return s.emails, s.err
}

type stubClient struct {
	response string
	err      error
	calls    int
}

func (s *stubClient) Complete(context.Context, string, int) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func invoiceExtractor(t *testing.T, client *stubClient) extract.Extractor {
	t.Helper()
	cfg := config.ExtractorConfig{
		Enabled:        true,
		Keywords:       map[string][]string{"swedish": {"faktura"}},
		AmountPatterns: map[string][]string{"swedish": {"kr"}},
		PromptTemplate: "Decide if this is an invoice.\n{email_content}",
	}
	proc := config.ProcessingConfig{BodyCharLimit: 2000, PDFCharLimit: 3000}
	x, err := extract.NewInvoiceExtractor(cfg, proc, client, 1500, nil)
	require.NoError(t, err)
	return x
}

func openLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func invoiceEmail(id string) mail.RawEmail {
	return mail.RawEmail{
		SourceID:   id,
		Sender:     "billing@example.se",
		Subject:    "Din faktura",
		ReceivedAt: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC),
		Body:       "Att betala: 500 kr",
	}
}

func newTestOrchestrator(t *testing.T, source mail.Source, store *ledger.Ledger, extractors []extract.Extractor, cat *categorize.Categorizer, lanes ...followup.Lane) *Orchestrator {
	t.Helper()
	return NewOrchestrator(source, nil, store, extractors, cat, lanes, t.TempDir(), 0, nil)
}

func TestRunPersistsAcceptedRecord(t *testing.T) {
	client := &stubClient{response: `{"is_invoice": true, "vendor": "Elbolaget", "amount": "500 kr"}`}
	store := openLedger(t)
	o := newTestOrchestrator(t, stubSource{emails: []mail.RawEmail{invoiceEmail("m1")}}, store, []extract.Extractor{invoiceExtractor(t, client)}, nil)

	stats, err := o.Run(context.Background(), mail.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fetched)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Accepted)
	assert.Equal(t, 0, stats.Failed)

	rows, err := store.Rows(context.Background(), constants.ScopeInvoices)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Elbolaget", rows[0]["vendor"])
	assert.Equal(t, "500.0", rows[0]["amount"])
}

func TestRunSkipsProcessedEmails(t *testing.T) {
	client := &stubClient{response: `{"is_invoice": true, "vendor": "Elbolaget"}`}
	store := openLedger(t)
	source := stubSource{emails: []mail.RawEmail{invoiceEmail("m1")}}
	o := newTestOrchestrator(t, source, store, []extract.Extractor{invoiceExtractor(t, client)}, nil)

	_, err := o.Run(context.Background(), mail.Query{})
	require.NoError(t, err)
	require.Equal(t, 1, client.calls)

	// Replay of the same batch spends no model call and adds no rows.
	stats, err := o.Run(context.Background(), mail.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Accepted)
	assert.Equal(t, 1, client.calls)

	rows, err := store.Rows(context.Background(), constants.ScopeInvoices)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRunGateRejectionSpendsNoCall(t *testing.T) {
	client := &stubClient{response: `{"is_invoice": true}`}
	store := openLedger(t)
	e := mail.RawEmail{SourceID: "m2", Subject: "Lunch?", Sender: "friend@example.com", Body: "tomorrow at noon"}
	o := newTestOrchestrator(t, stubSource{emails: []mail.RawEmail{e}}, store, []extract.Extractor{invoiceExtractor(t, client)}, nil)

	stats, err := o.Run(context.Background(), mail.Query{})
	require.NoError(t, err)
	assert.Equal(t, 0, client.calls)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Accepted+stats.Rejected+stats.Failed)
}

func TestRunModelFailureYieldsFailedRecord(t *testing.T) {
	client := &stubClient{err: errors.New("api unreachable")}
	store := openLedger(t)
	o := newTestOrchestrator(t, stubSource{emails: []mail.RawEmail{invoiceEmail("m3")}}, store, []extract.Extractor{invoiceExtractor(t, client)}, nil)

	stats, err := o.Run(context.Background(), mail.Query{})
	require.NoError(t, err, "a per-item failure never aborts the batch")
	assert.Equal(t, 1, stats.Failed)

	// The failure is persisted, not silently dropped.
	rows, err := store.Rows(context.Background(), constants.ScopeInvoices)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, string(constants.StatusFailed), rows[0]["status"])
}

func TestRunTransientFetchEndsQuietly(t *testing.T) {
	store := openLedger(t)
	source := stubSource{err: common.WrapError(common.ErrTransientFetch, "dial tcp: connection refused")}
	o := newTestOrchestrator(t, source, store, nil, nil)

	stats, err := o.Run(context.Background(), mail.Query{})
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestRunFatalFetchAborts(t *testing.T) {
	store := openLedger(t)
	source := stubSource{err: errors.New("imap login: authentication failed")}
	o := newTestOrchestrator(t, source, store, nil, nil)

	_, err := o.Run(context.Background(), mail.Query{})
	assert.Error(t, err)
}

type fakeLane struct {
	scope    constants.Scope
	category string
	row      map[string]string
	err      error
	calls    int
}

func (l *fakeLane) Scope() constants.Scope          { return l.scope }
func (l *fakeLane) OutputFile() string              { return "" }
func (l *fakeLane) AppliesTo(category string) bool  { return category == l.category }
func (l *fakeLane) Analyze(context.Context, mail.RawEmail, mail.NormalizedContent) (map[string]string, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.row, nil
}

func testCategorizer(t *testing.T, response string) *categorize.Categorizer {
	t.Helper()
	policy := categorize.NewPolicy(config.CategorizationConfig{
		Enabled: true,
		Categories: map[string]config.CategoryConfig{
			"Economy":     {Subcategories: map[string]config.SubcategoryConfig{"Invoices": {}}},
			"Information": {Subcategories: map[string]config.SubcategoryConfig{"News": {}}},
			"Other":       {Subcategories: map[string]config.SubcategoryConfig{"Rest": {}}},
		},
	})
	return categorize.NewCategorizer(policy, &stubClient{response: response}, 500, 2000, nil)
}

func TestRunCategorizesEveryEmail(t *testing.T) {
	catClient := &stubClient{response: `{"category": "Economy", "subcategory": "Invoices", "confidence": 0.9}`}
	policy := categorize.NewPolicy(config.CategorizationConfig{
		Enabled: true,
		Categories: map[string]config.CategoryConfig{
			"Economy": {Subcategories: map[string]config.SubcategoryConfig{"Invoices": {}}},
			"Other":   {Subcategories: map[string]config.SubcategoryConfig{"Rest": {}}},
		},
	})
	cat := categorize.NewCategorizer(policy, catClient, 500, 2000, nil)

	store := openLedger(t)
	emails := []mail.RawEmail{invoiceEmail("m1"), {SourceID: "m2", Subject: "Hello", Sender: "a@b.se"}}
	o := newTestOrchestrator(t, stubSource{emails: emails}, store, nil, cat)

	stats, err := o.Run(context.Background(), mail.Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Categorized)

	rows, err := store.Rows(context.Background(), constants.ScopeCategories)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Economy", rows[0]["category"])
}

func TestRunFollowUpPersistsRow(t *testing.T) {
	cat := testCategorizer(t, `{"category": "Information", "subcategory": "News", "confidence": 0.9}`)
	lane := &fakeLane{scope: constants.ScopeSummaries, category: "Information", row: map[string]string{"email_id": "m1", "summary": "three jobs"}}
	store := openLedger(t)
	o := newTestOrchestrator(t, stubSource{emails: []mail.RawEmail{invoiceEmail("m1")}}, store, nil, cat, lane)

	stats, err := o.Run(context.Background(), mail.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Categorized)
	assert.Equal(t, 1, stats.FollowedUp)
	assert.Equal(t, 1, lane.calls)

	rows, err := store.Rows(context.Background(), constants.ScopeSummaries)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "three jobs", rows[0]["summary"])
}

func TestRunFollowUpSkipsOtherCategories(t *testing.T) {
	cat := testCategorizer(t, `{"category": "Economy", "subcategory": "Invoices", "confidence": 0.9}`)
	lane := &fakeLane{scope: constants.ScopeSummaries, category: "Information"}
	store := openLedger(t)
	o := newTestOrchestrator(t, stubSource{emails: []mail.RawEmail{invoiceEmail("m1")}}, store, nil, cat, lane)

	stats, err := o.Run(context.Background(), mail.Query{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FollowedUp)
	assert.Equal(t, 0, lane.calls)
}

func TestRunFollowUpRecoversCategoryOnReplay(t *testing.T) {
	store := openLedger(t)
	source := stubSource{emails: []mail.RawEmail{invoiceEmail("m1")}}

	// First run categorizes without any lanes configured.
	first := newTestOrchestrator(t, source, store, nil, testCategorizer(t, `{"category": "Information", "subcategory": "News", "confidence": 0.9}`))
	_, err := first.Run(context.Background(), mail.Query{})
	require.NoError(t, err)

	// A later run with a lane enabled reuses the stored category.
	lane := &fakeLane{scope: constants.ScopeSummaries, category: "Information", row: map[string]string{"email_id": "m1"}}
	second := newTestOrchestrator(t, source, store, nil, testCategorizer(t, `{}`), lane)
	stats, err := second.Run(context.Background(), mail.Query{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Categorized)
	assert.Equal(t, 1, stats.FollowedUp)
	assert.Equal(t, 1, lane.calls)
}

func TestRunFollowUpFailureIsRetriedNextRun(t *testing.T) {
	store := openLedger(t)
	source := stubSource{emails: []mail.RawEmail{invoiceEmail("m1")}}
	cat := testCategorizer(t, `{"category": "Information", "subcategory": "News", "confidence": 0.9}`)
	lane := &fakeLane{scope: constants.ScopeSummaries, category: "Information", err: errors.New("api unreachable")}
	o := newTestOrchestrator(t, source, store, nil, cat, lane)

	stats, err := o.Run(context.Background(), mail.Query{})
	require.NoError(t, err, "a lane failure never aborts the batch")
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.FollowedUp)

	// No ledger mark was left, so the next run tries the lane again.
	lane.err = nil
	lane.row = map[string]string{"email_id": "m1"}
	stats, err = o.Run(context.Background(), mail.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FollowedUp)
	assert.Equal(t, 2, lane.calls)
}
