package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractText_PrefersPlainText(t *testing.T) {
	env := &Envelope{TextBody: "plain wins", HTMLBody: "<p>html loses</p>"}
	assert.Equal(t, "plain wins", ExtractText(env))
}

func TestExtractText_FallsBackToHTML(t *testing.T) {
	env := &Envelope{HTMLBody: "<h1>Big   Sale</h1><p>Up to 50% off &amp; free shipping</p>"}
	text := ExtractText(env)
	assert.Contains(t, text, "Big Sale")
	assert.Contains(t, text, "50% off & free shipping")
	assert.NotContains(t, text, "<p>")
}

func TestExtractText_BlankBodiesYieldEmpty(t *testing.T) {
	assert.Equal(t, "", ExtractText(&Envelope{}))
	assert.Equal(t, "", ExtractText(&Envelope{TextBody: "   ", HTMLBody: " \n "}))
}

func TestExtractText_RawMIMEFallback(t *testing.T) {
	raw := []byte("From: a@x.com\r\n" +
		"To: feedback@mailsage.io\r\n" +
		"Subject: test\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"body from raw mime\r\n")
	env := &Envelope{RawMIME: raw}
	assert.Contains(t, ExtractText(env), "body from raw mime")
}

func TestExtractText_MalformedRawMIMEDegradesToEmpty(t *testing.T) {
	env := &Envelope{RawMIME: []byte("\x00\x01 not a mime message")}
	assert.Equal(t, "", ExtractText(env))
}

func TestDetectAttachments(t *testing.T) {
	assert.Empty(t, DetectAttachments(&Envelope{}))

	env := &Envelope{Attachments: []AttachmentRef{
		{URL: "https://files.example.com/a.png", Filename: "a.png", ContentType: "image/png"},
		{URL: "", Filename: "dropped.png"},
		{URL: "https://files.example.com/b.pdf"},
	}}
	refs := DetectAttachments(env)
	assert.Len(t, refs, 2)
	assert.Equal(t, "a.png", refs[0].Filename)
	assert.Equal(t, "attachment", refs[1].Filename, "missing filename gets a placeholder")
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "  Hello   world  \n\n\n\nSecond\tparagraph  \n"
	assert.Equal(t, "Hello world\n\nSecond paragraph", normalizeWhitespace(in))
}
