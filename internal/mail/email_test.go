package mail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttachmentIsPDF(t *testing.T) {
	assert.True(t, Attachment{MIMEType: "application/pdf"}.IsPDF())
	assert.True(t, Attachment{MIMEType: "APPLICATION/PDF"}.IsPDF())
	assert.True(t, Attachment{Filename: "Faktura_2025.PDF", MIMEType: "application/octet-stream"}.IsPDF())
	assert.False(t, Attachment{Filename: "photo.jpg", MIMEType: "image/jpeg"}.IsPDF())
}

func TestNormalizeEmailPrefersPlaintext(t *testing.T) {
	e := RawEmail{Body: "plain body", HTMLBody: "<p>html body</p>"}
	content := NormalizeEmail(e, "")
	assert.Equal(t, "plain body", content.Body)
}

func TestNormalizeEmailFallsBackToHTML(t *testing.T) {
	e := RawEmail{Body: "  \n ", HTMLBody: "<p>Din <b>faktura</b> är klar</p>"}
	content := NormalizeEmail(e, "")
	assert.Contains(t, content.Body, "faktura")
	assert.NotContains(t, content.Body, "<p>")
}

func TestNormalizeEmailIsIdempotent(t *testing.T) {
	e := RawEmail{Body: "Det “smarta” priset – 1 250 kr"}
	once := NormalizeEmail(e, "")
	twice := NormalizeEmail(RawEmail{Body: once.Body}, once.PDFText)
	assert.Equal(t, once, twice)
}

func TestDateString(t *testing.T) {
	e := RawEmail{ReceivedAt: time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)}
	assert.Equal(t, "2025-01-15 09:30:00", e.DateString())
	assert.Equal(t, "", RawEmail{}.DateString())
}

func TestOrKeywordsShape(t *testing.T) {
	assert.Nil(t, orKeywords(nil))

	single := orKeywords([]string{"faktura"})
	assert.Equal(t, []string{"faktura"}, single.Text)
	assert.Empty(t, single.Or)

	pair := orKeywords([]string{"faktura", "invoice"})
	if assert.Len(t, pair.Or, 1) {
		assert.Equal(t, []string{"faktura"}, pair.Or[0][0].Text)
		assert.Equal(t, []string{"invoice"}, pair.Or[0][1].Text)
	}
}
