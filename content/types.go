// Package content extracts, downloads, validates and categorizes the mixed
// content of one inbound email event so it can be submitted for analysis.
package content

// Envelope is the immutable parsed inbound webhook event for one email.
type Envelope struct {
	From        string          `json:"from"`
	To          []string        `json:"to"`
	Subject     string          `json:"subject"`
	TextBody    string          `json:"text,omitempty"`
	HTMLBody    string          `json:"html,omitempty"`
	RawMIME     []byte          `json:"raw_mime,omitempty"` // base64 in JSON, optional full RFC 822 message
	Attachments []AttachmentRef `json:"attachments,omitempty"`
}

// AttachmentRef points at one attachment of the inbound email. URL is either
// an https download location hosted by the webhook provider or an inline
// "data:" payload.
type AttachmentRef struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// Classification describes what kind of content an email carried.
type Classification string

const (
	ClassificationEmpty      Classification = "empty"
	ClassificationTextOnly   Classification = "text-only"
	ClassificationScreenshot Classification = "screenshot-only"
	ClassificationHybrid     Classification = "hybrid"
)

// EncodedImage is one validated, base64-encoded image attachment.
type EncodedImage struct {
	Filename      string
	MimeType      string
	Base64Payload string
}

// EncodedDocument is one validated, base64-encoded document attachment.
type EncodedDocument struct {
	Filename      string
	MimeType      string
	Base64Payload string
}

// Package bundles the extracted content of one email, ready for analysis.
type Package struct {
	Classification Classification
	Text           string
	Images         []EncodedImage
	Documents      []EncodedDocument
}

// ProcessingContext accumulates per-request attempt and failure counts,
// split by failure category. It exists only to pick the right user-facing
// error when a request produced no usable content, and is discarded with
// the request.
type ProcessingContext struct {
	AttachmentCount int
	DownloadedCount int
	DownloadErrors  int
	FormatFailures  int
	SizeFailures    int
	ValidCount      int
}
