package content

import (
	"strings"

	"github.com/k3a/html2text"

	"github.com/mailsage/mailsage/helpers"
	"github.com/mailsage/mailsage/logger"
)

// ExtractText derives the text body of an envelope. Non-blank plain text
// wins; otherwise the HTML body is converted to plain text; otherwise the
// optional raw MIME message is parsed as a last resort. Returns "" when the
// email carried no usable text.
func ExtractText(env *Envelope) string {
	if strings.TrimSpace(env.TextBody) != "" {
		return strings.TrimSpace(env.TextBody)
	}

	if strings.TrimSpace(env.HTMLBody) != "" {
		return normalizeWhitespace(html2text.HTML2Text(env.HTMLBody))
	}

	if len(env.RawMIME) > 0 {
		text, err := helpers.ExtractTextFromRaw(env.RawMIME)
		if err != nil {
			// A malformed MIME payload degrades to empty text; the package
			// validation stage decides whether the request is still viable.
			logger.Warn("Failed to parse raw MIME body", "error", err)
			return ""
		}
		return normalizeWhitespace(text)
	}

	return ""
}

// DetectAttachments returns the envelope's attachment references that carry
// enough metadata to be fetched. Missing or empty lists yield an empty slice.
func DetectAttachments(env *Envelope) []AttachmentRef {
	if len(env.Attachments) == 0 {
		return nil
	}
	refs := make([]AttachmentRef, 0, len(env.Attachments))
	for _, ref := range env.Attachments {
		if ref.URL == "" {
			logger.Debug("Skipping attachment without download URL", "filename", ref.Filename)
			continue
		}
		if ref.Filename == "" {
			ref.Filename = "attachment"
		}
		refs = append(refs, ref)
	}
	return refs
}

// normalizeWhitespace collapses runs of horizontal whitespace within lines,
// trims each line, and squeezes blank-line runs, preserving paragraph
// structure for the analysis prompt.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
