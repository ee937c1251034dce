// Package delivery sends feedback emails through a transactional email
// provider's REST API with one-shot bounded retry.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mailsage/mailsage/helpers"
	"github.com/mailsage/mailsage/logger"
	"github.com/mailsage/mailsage/pkg/metrics"
	"github.com/mailsage/mailsage/pkg/retry"
)

// ErrorKind classifies a delivery failure.
type ErrorKind string

const (
	ErrKindTimeout   ErrorKind = "timeout"
	ErrKindTransport ErrorKind = "transport"
	ErrKindStatus    ErrorKind = "status"
)

// Error is a classified delivery failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("delivery %s error (HTTP %d): %s", e.Kind, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("delivery %s error: %s", e.Kind, e.Detail)
}

// ClassifyRetryable reports whether a delivery error is transient: timeouts,
// transport failures and 5xx provider responses are retryable; 4xx responses
// are permanent.
func ClassifyRetryable(err error) bool {
	var dErr *Error
	if !errors.As(err, &dErr) {
		return true // Unclassified failures get the benefit of the doubt.
	}
	switch dErr.Kind {
	case ErrKindTimeout, ErrKindTransport:
		return true
	case ErrKindStatus:
		return dErr.StatusCode >= 500
	}
	return false
}

// Attachment is one outbound email attachment.
type Attachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"` // base64
}

// sendRequest is the provider's request document.
type sendRequest struct {
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	Text        string       `json:"text"`
	HTML        string       `json:"html,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// sendResponse is the provider's success reply.
type sendResponse struct {
	ID string `json:"id"`
}

// EmailResult reports the outcome of a delivery, including retries.
type EmailResult struct {
	Delivered bool
	MessageID string
	Attempts  int
	Err       error
}

// Service sends email through the provider endpoint.
type Service struct {
	endpoint   string
	apiKey     string
	from       string
	timeout    time.Duration
	backoff    time.Duration
	httpClient *http.Client
}

// NewService creates a delivery service.
func NewService(endpoint, apiKey, from string, timeout, backoff time.Duration) *Service {
	return &Service{
		endpoint:   endpoint,
		apiKey:     apiKey,
		from:       from,
		timeout:    timeout,
		backoff:    backoff,
		httpClient: &http.Client{},
	}
}

// Send performs a single bounded-timeout POST to the provider. Success
// yields the provider message id; failure yields a classified error.
func (s *Service) Send(ctx context.Context, to, subject, text, html string, attachments []Attachment) (string, error) {
	body, err := json.Marshal(sendRequest{
		From:        s.from,
		To:          []string{to},
		Subject:     subject,
		Text:        text,
		HTML:        html,
		Attachments: attachments,
	})
	if err != nil {
		return "", &Error{Kind: ErrKindTransport, Detail: fmt.Sprintf("failed to encode request: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: ErrKindTransport, Detail: fmt.Sprintf("failed to build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	metrics.DeliveryAttemptsTotal.Inc()

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &Error{Kind: ErrKindTimeout, Detail: fmt.Sprintf("send timed out after %v", s.timeout)}
		}
		return "", &Error{Kind: ErrKindTransport, Detail: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: ErrKindTransport, Detail: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{
			Kind:       ErrKindStatus,
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("provider returned HTTP %d: %s", resp.StatusCode, truncate(string(raw), 256)),
		}
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Error{Kind: ErrKindTransport, Detail: fmt.Sprintf("failed to decode provider response: %v", err)}
	}

	return parsed.ID, nil
}

// SendWithRetry attempts a send, and on a retryable failure waits a fixed
// backoff and tries exactly once more. Non-retryable failures return
// immediately. Total attempts are bounded at 2.
func (s *Service) SendWithRetry(ctx context.Context, to, subject, text, html string, attachments []Attachment) EmailResult {
	start := time.Now()
	attempts := 0
	var messageID string

	cfg := retry.BackoffConfig{
		InitialInterval: s.backoff,
		MaxInterval:     s.backoff,
		Multiplier:      1.0,
		Jitter:          false,
		MaxRetries:      1,
	}

	err := retry.WithRetry(ctx, func() error {
		attempts++
		id, sendErr := s.Send(ctx, to, subject, text, html, attachments)
		if sendErr != nil {
			if !ClassifyRetryable(sendErr) {
				return retry.Stop(sendErr)
			}
			return sendErr
		}
		messageID = id
		return nil
	}, cfg)

	elapsed := time.Since(start)
	masked := helpers.MaskAddress(to)

	if err != nil {
		logger.Error("Email delivery failed permanently",
			"to", masked, "attempts", attempts, "duration", elapsed, "error", err)
		metrics.DeliveriesTotal.WithLabelValues("failure").Inc()
		return EmailResult{Delivered: false, Attempts: attempts, Err: err}
	}

	if attempts > 1 {
		logger.Info("Email delivered on retry",
			"to", masked, "message_id", messageID, "attempts", attempts, "duration", elapsed)
		metrics.DeliveriesTotal.WithLabelValues("success_retry").Inc()
	} else {
		logger.Info("Email delivered",
			"to", masked, "message_id", messageID, "attempts", attempts, "duration", elapsed)
		metrics.DeliveriesTotal.WithLabelValues("success").Inc()
	}

	return EmailResult{Delivered: true, MessageID: messageID, Attempts: attempts}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
