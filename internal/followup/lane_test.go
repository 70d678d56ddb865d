package followup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeroinbox/mailsift/constants"
	"github.com/zeroinbox/mailsift/internal/config"
	"github.com/zeroinbox/mailsift/internal/mail"
)

type stubClient struct {
	response string
	err      error
	prompts  []string
}

func (s *stubClient) Complete(_ context.Context, prompt string, _ int) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func processingConfig() config.ProcessingConfig {
	return config.ProcessingConfig{BodyCharLimit: 2000, PDFCharLimit: 3000}
}

func infoEmail() mail.RawEmail {
	return mail.RawEmail{
		SourceID:   "<jobs-week34@example>",
		Sender:     "noreply@jobboard.se",
		Subject:    "3 nya jobb som matchar din profil",
		ReceivedAt: time.Date(2025, 8, 18, 7, 0, 0, 0, time.UTC),
		Body:       "Backend-utvecklare hos Spotify. Gopher wanted hos Einride. Plattformsingenjör hos Klarna.",
	}
}

func actionEmail() mail.RawEmail {
	return mail.RawEmail{
		SourceID:   "<reminder-4711@example>",
		Sender:     "noreply@skatteverket.se",
		Subject:    "Påminnelse: deklarera senast 2 maj",
		ReceivedAt: time.Date(2025, 4, 20, 9, 0, 0, 0, time.UTC),
		Body:       "Du har inte lämnat in din deklaration. Sista dag är 02/05/2025.",
	}
}

func TestSummaryLaneAppliesTo(t *testing.T) {
	l := NewSummaryLane(config.LaneConfig{Categories: []string{"Information", "Work"}}, processingConfig(), &stubClient{}, 1000, nil)

	assert.True(t, l.AppliesTo("Information"))
	assert.True(t, l.AppliesTo("Work"))
	assert.False(t, l.AppliesTo("Economy"))
	assert.False(t, l.AppliesTo(""))
	assert.Equal(t, constants.ScopeSummaries, l.Scope())
}

func TestSummaryLaneAnalyze(t *testing.T) {
	client := &stubClient{response: "Condensing the listings.\n```json\n" +
		`{"summary": "Three open positions: backend developer at Spotify, Go engineer at Einride, platform engineer at Klarna.", "reasoning": "job listing digest"}` +
		"\n```"}
	l := NewSummaryLane(config.LaneConfig{Categories: []string{"Information"}}, processingConfig(), client, 1000, nil)

	e := infoEmail()
	row, err := l.Analyze(context.Background(), e, mail.NormalizeEmail(e, ""))
	require.NoError(t, err)

	assert.Equal(t, e.SourceID, row["email_id"])
	assert.Contains(t, row["summary"], "Spotify")
	assert.Equal(t, "job listing digest", row["model_reasoning_before"])

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "3 nya jobb")
}

func TestSummaryLaneUnparseableResponse(t *testing.T) {
	client := &stubClient{response: "This email lists three jobs, nothing structured to return."}
	l := NewSummaryLane(config.LaneConfig{Categories: []string{"Information"}}, processingConfig(), client, 1000, nil)

	e := infoEmail()
	row, err := l.Analyze(context.Background(), e, mail.NormalizeEmail(e, ""))
	require.NoError(t, err, "an unusable response still yields a row")
	assert.Equal(t, "", row["summary"])
	assert.Equal(t, e.SourceID, row["email_id"])
}

func TestSummaryLaneModelError(t *testing.T) {
	client := &stubClient{err: errors.New("api unreachable")}
	l := NewSummaryLane(config.LaneConfig{Categories: []string{"Information"}}, processingConfig(), client, 1000, nil)

	e := infoEmail()
	_, err := l.Analyze(context.Background(), e, mail.NormalizeEmail(e, ""))
	assert.Error(t, err)
}

func TestTaskLaneAnalyze(t *testing.T) {
	client := &stubClient{response: `{"action_required": "File the annual tax declaration", "assigned_to": "", "due_date": "02/05/2025", "priority": "HIGH", "reasoning": "hard deadline from a government agency"}`}
	l := NewTaskLane(config.LaneConfig{Categories: []string{"Action"}}, processingConfig(), client, 1000, nil)

	e := actionEmail()
	row, err := l.Analyze(context.Background(), e, mail.NormalizeEmail(e, ""))
	require.NoError(t, err)

	assert.Equal(t, "File the annual tax declaration", row["action_required"])
	assert.Equal(t, "recipient", row["assigned_to"], "empty assignee defaults to recipient")
	assert.Equal(t, "2025-02-05", row["due_date"], "slash dates are read in US order")
	assert.Equal(t, "High", row["priority"], "priority is clamped to the Low/Medium/High vocabulary")
	assert.Equal(t, constants.ScopeTasks, l.Scope())
}

func TestTaskLaneDefaults(t *testing.T) {
	client := &stubClient{response: `{"action_required": "Reply to the thread", "due_date": "Not specified", "priority": "urgent!!"}`}
	l := NewTaskLane(config.LaneConfig{Categories: []string{"Action"}}, processingConfig(), client, 1000, nil)

	e := actionEmail()
	row, err := l.Analyze(context.Background(), e, mail.NormalizeEmail(e, ""))
	require.NoError(t, err)

	assert.Equal(t, "Not specified", row["due_date"])
	assert.Equal(t, "Medium", row["priority"], "unknown priority clamps to Medium")
	assert.Equal(t, "recipient", row["assigned_to"])
}

func TestFromConfigBuildsEnabledLanes(t *testing.T) {
	cfg := &config.Config{
		Summaries: config.LaneConfig{Enabled: true, Categories: []string{"Information"}},
		Tasks:     config.LaneConfig{Enabled: false},
	}
	lanes := FromConfig(cfg, &stubClient{}, nil)
	require.Len(t, lanes, 1)
	assert.Equal(t, constants.ScopeSummaries, lanes[0].Scope())
}
