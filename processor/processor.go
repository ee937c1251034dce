// Package processor orchestrates one inbound email event through
// authorization, content extraction, analysis and feedback delivery.
package processor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mailsage/mailsage/analysis"
	"github.com/mailsage/mailsage/content"
	"github.com/mailsage/mailsage/db"
	"github.com/mailsage/mailsage/delivery"
	"github.com/mailsage/mailsage/helpers"
	"github.com/mailsage/mailsage/logger"
	"github.com/mailsage/mailsage/pkg/dedupe"
	"github.com/mailsage/mailsage/pkg/metrics"
	"github.com/mailsage/mailsage/whitelist"
)

// State names the stages of the per-request state machine, used for logging
// and for attributing failures to a stage.
type State string

const (
	StateReceived    State = "received"
	StateAuthorizing State = "authorizing"
	StateExtracting  State = "extracting"
	StateAnalyzing   State = "analyzing"
	StateDelivering  State = "delivering"
	StateCompleted   State = "completed"
	StateError       State = "error"
)

// Outcome is what the webhook handler turns into an HTTP response.
type Outcome int

const (
	// OutcomeHandled acknowledges the event: analysis succeeded, or a
	// classified failure was converted into an explanatory email.
	OutcomeHandled Outcome = iota
	// OutcomeUnauthorized rejects the sender with the fixed denial response.
	OutcomeUnauthorized
	// OutcomeInternalError signals an unclassified failure so the upstream
	// webhook sender's retry policy can re-deliver the event.
	OutcomeInternalError
)

// Analyzer runs the analysis stage. *analysis.Client satisfies it; tests
// substitute fakes.
type Analyzer interface {
	Analyze(ctx context.Context, pkg *content.Package) (*analysis.Result, error)
}

// Sender delivers outbound email with bounded retry.
type Sender interface {
	SendWithRetry(ctx context.Context, to, subject, text, html string, attachments []delivery.Attachment) delivery.EmailResult
}

// Recorder persists final analysis records. Failures must never surface.
type Recorder interface {
	SaveAnalysis(rec db.AnalysisRecord)
}

// Processor sequences the pipeline for one webhook event at a time.
// Independent events share nothing except the atomically swapped whitelist
// and the dedupe cache.
type Processor struct {
	whitelist  *whitelist.Service
	extractor  *content.Extractor
	analyzer   Analyzer
	sender     Sender
	recorder   Recorder      // nil disables persistence
	dedupe     *dedupe.Cache // nil disables duplicate suppression
	softBudget time.Duration
}

// New wires a processor. recorder and dedupeCache may be nil.
func New(wl *whitelist.Service, extractor *content.Extractor, analyzer Analyzer, sender Sender,
	recorder Recorder, dedupeCache *dedupe.Cache, softBudget time.Duration) *Processor {
	return &Processor{
		whitelist:  wl,
		extractor:  extractor,
		analyzer:   analyzer,
		sender:     sender,
		recorder:   recorder,
		dedupe:     dedupeCache,
		softBudget: softBudget,
	}
}

// Process runs one envelope through the state machine and reports how the
// webhook should respond. The envelope has already been decoded; payload
// shape violations are the HTTP layer's problem.
func (p *Processor) Process(ctx context.Context, env *content.Envelope) (outcome Outcome) {
	start := time.Now()
	state := StateReceived
	sender := helpers.MaskAddress(env.From)

	defer func() {
		elapsed := time.Since(start)
		metrics.WebhookDuration.Observe(elapsed.Seconds())
		if p.softBudget > 0 && elapsed > p.softBudget {
			// The budget is advisory: exceeding it warns but never cancels
			// in-flight work.
			logger.Warn("Request exceeded soft time budget",
				"sender", sender, "elapsed", elapsed, "budget", p.softBudget, "state", state)
		}
	}()

	// An unclassified panic anywhere in the pipeline is not converted into
	// an explanatory email; it surfaces as an internal failure so the
	// upstream sender retries.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Unclassified failure while processing webhook",
				"sender", sender, "state", state, "panic", r, "stack", string(debug.Stack()))
			metrics.WebhooksTotal.WithLabelValues("internal_error").Inc()
			outcome = OutcomeInternalError
		}
	}()

	state = StateAuthorizing
	if !p.whitelist.IsAuthorized(env.From) {
		// Reject before any content work. Logs distinguish the reason; the
		// external response never does.
		logger.Info("Rejected unauthorized sender", "sender", sender)
		metrics.UnauthorizedSendersTotal.Inc()
		metrics.WebhooksTotal.WithLabelValues("unauthorized").Inc()
		return OutcomeUnauthorized
	}

	var dedupeKey string
	if p.dedupe != nil {
		dedupeKey = dedupe.Key(env.From, env.Subject, env.TextBody+env.HTMLBody)
		if entry, seen := p.dedupe.Seen(dedupeKey); seen {
			logger.Info("Duplicate event suppressed",
				"sender", sender, "first_seen", entry.CreatedAt, "message_id", entry.MessageID)
			metrics.WebhooksTotal.WithLabelValues("duplicate").Inc()
			return OutcomeHandled
		}
	}

	state = StateExtracting
	pkg, pctx, err := p.extractor.Build(ctx, env)
	if err != nil {
		return p.handleClassified(ctx, env, state, err)
	}

	logger.Info("Content extracted",
		"sender", sender,
		"classification", pkg.Classification,
		"images", len(pkg.Images),
		"documents", len(pkg.Documents),
		"attachments", pctx.AttachmentCount)

	state = StateAnalyzing
	result, err := p.analyzer.Analyze(ctx, pkg)
	if err != nil {
		return p.handleClassified(ctx, env, state, err)
	}

	state = StateDelivering
	subject := replySubject(env.Subject)
	res := p.sender.SendWithRetry(ctx, env.From, subject, result.Feedback, "", nil)
	if !res.Delivered {
		// The feedback was produced; a failed delivery is logged by the
		// delivery service and does not change the webhook response.
		logger.Error("Feedback email could not be delivered",
			"sender", sender, "attempts", res.Attempts, "error", res.Err)
	}

	if p.dedupe != nil {
		p.dedupe.Record(dedupeKey, res.MessageID)
	}
	if p.recorder != nil {
		rec := db.AnalysisRecord{
			Sender:         env.From,
			Subject:        env.Subject,
			Classification: string(pkg.Classification),
			ImageCount:     len(pkg.Images),
			DocumentCount:  len(pkg.Documents),
			FeedbackLength: len(result.Feedback),
			Duration:       time.Since(start),
			MessageID:      res.MessageID,
		}
		if result.Usage != nil {
			rec.PromptTokens = result.Usage.PromptTokens
			rec.TotalTokens = result.Usage.TotalTokens
		}
		go p.recorder.SaveAnalysis(rec)
	}

	state = StateCompleted
	logger.Info("Webhook completed",
		"sender", sender,
		"classification", pkg.Classification,
		"delivered", res.Delivered,
		"elapsed", time.Since(start))
	metrics.WebhooksTotal.WithLabelValues("completed").Inc()
	return OutcomeHandled
}

// handleClassified converts a classified content or analysis error into an
// explanatory email and acknowledges the webhook. The explanatory email's
// own delivery failure is logged only. Unclassified errors surface as
// internal failures instead.
func (p *Processor) handleClassified(ctx context.Context, env *content.Envelope, state State, err error) Outcome {
	sender := helpers.MaskAddress(env.From)

	code, userMessage, classified := classify(err)
	if !classified {
		logger.Error("Unclassified failure while processing webhook",
			"sender", sender, "state", state, "error", err)
		metrics.WebhooksTotal.WithLabelValues("internal_error").Inc()
		return OutcomeInternalError
	}

	logger.Info("Classified failure, sending explanatory email",
		"sender", sender, "state", state, "code", code, "error", err)

	subject := replySubject(env.Subject)
	body := explanatoryBody(userMessage)
	res := p.sender.SendWithRetry(ctx, env.From, subject, body, "", nil)
	if !res.Delivered {
		logger.Error("Explanatory email could not be delivered",
			"sender", sender, "code", code, "attempts", res.Attempts, "error", res.Err)
	}

	// The event was handled: the sender was authorized and the failure was
	// explained (or at least an explanation was attempted). Always ack.
	metrics.WebhooksTotal.WithLabelValues("handled_error").Inc()
	return OutcomeHandled
}

// classify extracts the machine code and safe user message from a classified
// content or analysis error.
func classify(err error) (code, userMessage string, ok bool) {
	var cErr *content.Error
	if errors.As(err, &cErr) {
		return string(cErr.Code), cErr.UserMessage, true
	}
	var aErr *analysis.Error
	if errors.As(err, &aErr) {
		return string(aErr.Code), aErr.UserMessage, true
	}
	return "", "", false
}

// replySubject prefixes the inbound subject for the feedback email.
func replySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "Your email campaign feedback"
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// explanatoryBody templates the user-facing message of a classified failure.
// Internal diagnostics never appear here.
func explanatoryBody(userMessage string) string {
	return fmt.Sprintf(`Hi,

We received your email but could not complete the analysis.

%s

If the problem persists, reply to this email and we will take a look.

— The Mailsage team
`, userMessage)
}
