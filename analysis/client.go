// Package analysis builds multimodal chat-completion requests from a content
// package and parses the endpoint's response into feedback text.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mailsage/mailsage/content"
	"github.com/mailsage/mailsage/logger"
	"github.com/mailsage/mailsage/pkg/metrics"
)

// systemPrompt is the analysis persona and output contract.
const systemPrompt = `You are an expert email marketing analyst specializing in retail e-commerce campaigns.
Analyze the email campaign provided and give detailed, actionable feedback following this structure:

**LIFECYCLE CONTEXT:** Identify the campaign stage (Welcome, Abandoned Cart, Re-engagement, etc.) and relevant industry benchmarks.
**SUBJECT (X/10):** Score and analyze the subject line effectiveness.
**BODY (X/10):** Score and analyze the email body content and messaging.
**CTA (X/10):** Score and analyze the call-to-action placement and effectiveness.
**TECHNICAL/GDPR (X/10):** Score technical implementation and compliance.
**CONVERSION IMPACT:** Estimate conversion rate improvements with specific metrics.
**ACTIONS:** Provide numbered, specific recommendations with quantified impact.
**TRANSFERABLE LESSONS:** Extract behavioral psychology principles that apply across campaigns.

Base your analysis on the campaign copy, visual elements, design choices, and overall email effectiveness.`

// ChatRequest is the chat-completion request document.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

// ChatMessage is one request message. System content is a plain string;
// user content is an ordered array of blocks.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentBlock is one element of a user message's content array.
type ContentBlock struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *ImageURL      `json:"image_url,omitempty"`
	Document *DocumentBlock `json:"document,omitempty"`
}

// ImageURL carries a base64 data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// DocumentBlock carries a base64-encoded document.
type DocumentBlock struct {
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// chatResponse is the endpoint's reply shape.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *TokenUsage `json:"usage,omitempty"`
}

// TokenUsage is the optional token accounting metadata in a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a parsed analysis response.
type Result struct {
	Feedback string
	Usage    *TokenUsage
}

// Client invokes the multimodal analysis endpoint.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	timeout    time.Duration
	maxTokens  int
	httpClient *http.Client
}

// NewClient creates an analysis client.
func NewClient(endpoint, model, apiKey string, timeout time.Duration, maxTokens int) *Client {
	return &Client{
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
		timeout:    timeout,
		maxTokens:  maxTokens,
		httpClient: &http.Client{},
	}
}

// BuildRequest assembles the chat-completion request for a content package.
// The user content array places every image and document block before the
// trailing instructional text block; the endpoint requires media to precede
// the instruction, so the ordering is a contract, not a preference.
func (c *Client) BuildRequest(pkg *content.Package) *ChatRequest {
	blocks := make([]ContentBlock, 0, len(pkg.Images)+len(pkg.Documents)+1)

	for _, img := range pkg.Images {
		blocks = append(blocks, ContentBlock{
			Type: "image_url",
			ImageURL: &ImageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Base64Payload),
			},
		})
	}

	for _, doc := range pkg.Documents {
		blocks = append(blocks, ContentBlock{
			Type: "document",
			Document: &DocumentBlock{
				Filename:  doc.Filename,
				MediaType: doc.MimeType,
				Data:      doc.Base64Payload,
			},
		})
	}

	blocks = append(blocks, ContentBlock{
		Type: "text",
		Text: buildInstruction(pkg),
	})

	return &ChatRequest{
		Model: c.model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: blocks},
		},
		MaxTokens:   c.maxTokens,
		Temperature: 0.7,
	}
}

// buildInstruction produces the trailing text block, embedding the campaign
// copy when the email carried text.
func buildInstruction(pkg *content.Package) string {
	var b strings.Builder

	switch pkg.Classification {
	case content.ClassificationTextOnly:
		b.WriteString("Analyze this email marketing campaign copy and provide detailed feedback following the structure specified in the system prompt.\n\n")
	case content.ClassificationScreenshot:
		b.WriteString("Analyze this email marketing campaign screenshot and provide detailed feedback following the structure specified in the system prompt.")
	default:
		b.WriteString("Analyze this email marketing campaign (screenshot and copy below) and provide detailed feedback following the structure specified in the system prompt.\n\n")
	}

	if strings.TrimSpace(pkg.Text) != "" {
		b.WriteString("--- CAMPAIGN COPY ---\n")
		b.WriteString(pkg.Text)
	}
	return b.String()
}

// Invoke performs one HTTP call under the configured timeout. Failures
// classify into exactly three kinds: timeout, transport error, and non-2xx
// status (carrying status code and body).
func (c *Client) Invoke(ctx context.Context, req *ChatRequest) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, newError(ErrCodeNetworkError,
			"We could not reach the analysis service. Please try again later.",
			fmt.Sprintf("failed to encode request: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newError(ErrCodeNetworkError,
			"We could not reach the analysis service. Please try again later.",
			fmt.Sprintf("failed to build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	elapsed := time.Since(start)
	metrics.AnalysisDuration.Observe(elapsed.Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.AnalysisRequestsTotal.WithLabelValues("timeout").Inc()
			return nil, newError(ErrCodeTimeout,
				"The analysis took too long to complete. Please try again with a smaller email or fewer attachments.",
				fmt.Sprintf("analysis call timed out after %v", c.timeout))
		}
		metrics.AnalysisRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, newError(ErrCodeNetworkError,
			"We could not reach the analysis service. Please try again later.",
			fmt.Sprintf("transport error: %v", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.AnalysisRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, newError(ErrCodeNetworkError,
			"We could not reach the analysis service. Please try again later.",
			fmt.Sprintf("failed to read response body: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.AnalysisRequestsTotal.WithLabelValues("http_error").Inc()
		return nil, &Error{
			Code:        ErrCodeHTTPError,
			UserMessage: "The analysis service returned an error. Please try again later.",
			Detail:      fmt.Sprintf("analysis endpoint returned HTTP %d: %s", resp.StatusCode, truncate(string(raw), 512)),
			StatusCode:  resp.StatusCode,
		}
	}

	result, err := ParseResponse(raw)
	if err != nil {
		metrics.AnalysisRequestsTotal.WithLabelValues("invalid_response").Inc()
		return nil, err
	}

	metrics.AnalysisRequestsTotal.WithLabelValues("success").Inc()
	if result.Usage != nil {
		metrics.AnalysisTokensTotal.WithLabelValues("prompt").Add(float64(result.Usage.PromptTokens))
		metrics.AnalysisTokensTotal.WithLabelValues("completion").Add(float64(result.Usage.CompletionTokens))
	}

	logger.Info("Analysis completed",
		"duration", elapsed,
		"feedback_len", len(result.Feedback),
		"model", c.model)

	return result, nil
}

// Analyze builds the request for a content package and invokes the endpoint.
func (c *Client) Analyze(ctx context.Context, pkg *content.Package) (*Result, error) {
	return c.Invoke(ctx, c.BuildRequest(pkg))
}

// ParseResponse validates the response shape: at least one completion choice
// with non-blank text. Missing fields, empty arrays and blank text all
// collapse into one invalid-response error kind.
func ParseResponse(raw []byte) (*Result, error) {
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, newError(ErrCodeInvalidResponse,
			"The analysis service returned an unexpected response. Please try again later.",
			fmt.Sprintf("failed to decode response: %v", err))
	}

	if len(parsed.Choices) == 0 {
		return nil, newError(ErrCodeInvalidResponse,
			"The analysis service returned an unexpected response. Please try again later.",
			"response contained no choices")
	}

	feedback := parsed.Choices[0].Message.Content
	if strings.TrimSpace(feedback) == "" {
		return nil, newError(ErrCodeInvalidResponse,
			"The analysis service returned an unexpected response. Please try again later.",
			"response choice contained blank content")
	}

	return &Result{Feedback: feedback, Usage: parsed.Usage}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
