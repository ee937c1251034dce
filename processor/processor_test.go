package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsage/mailsage/analysis"
	"github.com/mailsage/mailsage/content"
	"github.com/mailsage/mailsage/db"
	"github.com/mailsage/mailsage/delivery"
	"github.com/mailsage/mailsage/pkg/dedupe"
	"github.com/mailsage/mailsage/whitelist"
)

type fakeAnalyzer struct {
	result *analysis.Result
	err    error
	calls  int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, pkg *content.Package) (*analysis.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Analyze(ctx context.Context, pkg *content.Package) (*analysis.Result, error) {
	panic("analyzer blew up")
}

type sentEmail struct {
	To      string
	Subject string
	Text    string
}

type fakeSender struct {
	result delivery.EmailResult
	sent   []sentEmail
}

func (f *fakeSender) SendWithRetry(ctx context.Context, to, subject, text, html string, attachments []delivery.Attachment) delivery.EmailResult {
	f.sent = append(f.sent, sentEmail{To: to, Subject: subject, Text: text})
	return f.result
}

type fakeRecorder struct {
	saved chan db.AnalysisRecord
}

func (f *fakeRecorder) SaveAnalysis(rec db.AnalysisRecord) {
	f.saved <- rec
}

func deliveredResult() delivery.EmailResult {
	return delivery.EmailResult{Delivered: true, MessageID: "msg-1", Attempts: 1}
}

func testWhitelist() *whitelist.Service {
	return whitelist.NewServiceFromLists([]string{"user@acme.com"}, []string{"acme.com"})
}

func testExtractor() *content.Extractor {
	return content.NewExtractor(content.NewDownloader(time.Second), nil, 1024)
}

func TestProcess_UnauthorizedSenderShortCircuits(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	sender := &fakeSender{result: deliveredResult()}
	p := New(testWhitelist(), testExtractor(), analyzer, sender, nil, nil, 0)

	outcome := p.Process(context.Background(), &content.Envelope{
		From:     "mallory@evil.com",
		Subject:  "please review",
		TextBody: "campaign text",
	})

	assert.Equal(t, OutcomeUnauthorized, outcome)
	assert.Equal(t, 0, analyzer.calls, "unauthorized events must not reach extraction or analysis")
	assert.Empty(t, sender.sent, "unauthorized events must not trigger any email")
}

func TestProcess_SuccessDeliversFeedback(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &analysis.Result{
		Feedback: "**SUBJECT (7/10):** decent",
		Usage:    &analysis.TokenUsage{PromptTokens: 10, TotalTokens: 40},
	}}
	sender := &fakeSender{result: deliveredResult()}
	recorder := &fakeRecorder{saved: make(chan db.AnalysisRecord, 1)}
	p := New(testWhitelist(), testExtractor(), analyzer, sender, recorder, nil, 0)

	outcome := p.Process(context.Background(), &content.Envelope{
		From:     "user@acme.com",
		Subject:  "Spring campaign draft",
		TextBody: "Don't miss our spring sale!",
	})

	assert.Equal(t, OutcomeHandled, outcome)
	assert.Equal(t, 1, analyzer.calls)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "user@acme.com", sender.sent[0].To)
	assert.Equal(t, "Re: Spring campaign draft", sender.sent[0].Subject)
	assert.Equal(t, "**SUBJECT (7/10):** decent", sender.sent[0].Text)

	select {
	case rec := <-recorder.saved:
		assert.Equal(t, "user@acme.com", rec.Sender)
		assert.Equal(t, string(content.ClassificationTextOnly), rec.Classification)
		assert.Equal(t, 40, rec.TotalTokens)
		assert.Equal(t, "msg-1", rec.MessageID)
	case <-time.After(2 * time.Second):
		t.Fatal("analysis record was never persisted")
	}
}

func TestProcess_EmptyContentSendsExplanatoryEmail(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	sender := &fakeSender{result: deliveredResult()}
	p := New(testWhitelist(), testExtractor(), analyzer, sender, nil, nil, 0)

	outcome := p.Process(context.Background(), &content.Envelope{
		From:    "user@acme.com",
		Subject: "empty",
	})

	assert.Equal(t, OutcomeHandled, outcome, "classified failures are acked, not retried upstream")
	assert.Equal(t, 0, analyzer.calls)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Re: empty", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Text, "could not complete the analysis")
	assert.Contains(t, sender.sent[0].Text, "Mailsage team")
}

func TestProcess_AnalysisErrorSendsExplanatoryEmail(t *testing.T) {
	analyzer := &fakeAnalyzer{err: &analysis.Error{
		Code:        analysis.ErrCodeTimeout,
		UserMessage: "The analysis took too long to complete.",
	}}
	sender := &fakeSender{result: deliveredResult()}
	p := New(testWhitelist(), testExtractor(), analyzer, sender, nil, nil, 0)

	outcome := p.Process(context.Background(), &content.Envelope{
		From:     "user@acme.com",
		Subject:  "big campaign",
		TextBody: "lots of copy",
	})

	assert.Equal(t, OutcomeHandled, outcome)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "The analysis took too long to complete.")
}

func TestProcess_UnclassifiedAnalysisErrorIsInternal(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("mystery failure")}
	sender := &fakeSender{result: deliveredResult()}
	p := New(testWhitelist(), testExtractor(), analyzer, sender, nil, nil, 0)

	outcome := p.Process(context.Background(), &content.Envelope{
		From:     "user@acme.com",
		TextBody: "copy",
	})

	assert.Equal(t, OutcomeInternalError, outcome)
	assert.Empty(t, sender.sent, "unclassified failures must not produce an explanatory email")
}

func TestProcess_PanicRecoversToInternalError(t *testing.T) {
	sender := &fakeSender{result: deliveredResult()}
	p := New(testWhitelist(), testExtractor(), panickingAnalyzer{}, sender, nil, nil, 0)

	outcome := p.Process(context.Background(), &content.Envelope{
		From:     "user@acme.com",
		TextBody: "copy",
	})

	assert.Equal(t, OutcomeInternalError, outcome)
}

func TestProcess_DeliveryFailureStillAcks(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &analysis.Result{Feedback: "fine"}}
	sender := &fakeSender{result: delivery.EmailResult{
		Delivered: false,
		Attempts:  2,
		Err:       &delivery.Error{Kind: delivery.ErrKindStatus, StatusCode: 503},
	}}
	p := New(testWhitelist(), testExtractor(), analyzer, sender, nil, nil, 0)

	outcome := p.Process(context.Background(), &content.Envelope{
		From:     "user@acme.com",
		TextBody: "copy",
	})

	assert.Equal(t, OutcomeHandled, outcome, "feedback was produced; delivery failure does not change the ack")
}

func TestProcess_DuplicateEventIsSuppressed(t *testing.T) {
	cache := dedupe.New(time.Minute, time.Minute, 100)
	defer cache.Stop(context.Background())

	analyzer := &fakeAnalyzer{result: &analysis.Result{Feedback: "fine"}}
	sender := &fakeSender{result: deliveredResult()}
	p := New(testWhitelist(), testExtractor(), analyzer, sender, nil, cache, 0)

	env := &content.Envelope{
		From:     "user@acme.com",
		Subject:  "same campaign",
		TextBody: "identical body",
	}

	assert.Equal(t, OutcomeHandled, p.Process(context.Background(), env))
	assert.Equal(t, OutcomeHandled, p.Process(context.Background(), env))

	assert.Equal(t, 1, analyzer.calls, "the duplicate must not be re-analyzed")
	assert.Len(t, sender.sent, 1, "the duplicate must not trigger a second email")
}

func TestReplySubject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Spring sale draft", "Re: Spring sale draft"},
		{"Re: Spring sale draft", "Re: Spring sale draft"},
		{"RE: already a reply", "RE: already a reply"},
		{"   ", "Your email campaign feedback"},
		{"", "Your email campaign feedback"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, replySubject(tt.in), "subject=%q", tt.in)
	}
}
