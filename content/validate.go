package content

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/mailsage/mailsage/logger"
	"github.com/mailsage/mailsage/pkg/metrics"
)

// mimeAliases folds known aliases onto their canonical form.
var mimeAliases = map[string]string{
	"image/jpg": "image/jpeg",
}

var supportedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

var supportedDocumentTypes = map[string]struct{}{
	"application/pdf": {},
}

// CanonicalMimeType normalizes a declared MIME type: lowercased, parameters
// stripped, known aliases folded. An empty declaration falls back to content
// sniffing.
func CanonicalMimeType(declared string, data []byte) string {
	mt := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "" || mt == "application/octet-stream" {
		mt = strings.ToLower(http.DetectContentType(data))
		if i := strings.Index(mt, ";"); i >= 0 {
			mt = strings.TrimSpace(mt[:i])
		}
	}
	if canonical, ok := mimeAliases[mt]; ok {
		return canonical
	}
	return mt
}

// IsSupportedImage reports whether mimeType is an accepted image type.
func IsSupportedImage(mimeType string) bool {
	_, ok := supportedImageTypes[mimeType]
	return ok
}

// IsSupportedDocument reports whether mimeType is an accepted document type.
func IsSupportedDocument(mimeType string) bool {
	_, ok := supportedDocumentTypes[mimeType]
	return ok
}

// Validate applies the two independent checks on a downloaded attachment:
// supported MIME type and size ceiling. Each failure is logged with its
// specific reason and counted by category in pctx, so the package validation
// stage can later tell format failures from size failures.
func Validate(dl Downloaded, maxBytes int64, pctx *ProcessingContext) (mimeType string, ok bool) {
	mimeType = CanonicalMimeType(dl.Ref.ContentType, dl.Data)

	formatOK := IsSupportedImage(mimeType) || IsSupportedDocument(mimeType)
	if !formatOK {
		logger.Warn("Attachment rejected: unsupported format",
			"filename", dl.Ref.Filename, "mime_type", mimeType)
		metrics.AttachmentValidationFailures.WithLabelValues("format").Inc()
		pctx.FormatFailures++
	}

	sizeOK := int64(len(dl.Data)) <= maxBytes
	if !sizeOK {
		logger.Warn("Attachment rejected: size limit exceeded",
			"filename", dl.Ref.Filename, "size", len(dl.Data), "limit", maxBytes)
		metrics.AttachmentValidationFailures.WithLabelValues("size").Inc()
		pctx.SizeFailures++
	}

	if !formatOK || !sizeOK {
		return mimeType, false
	}

	pctx.ValidCount++
	return mimeType, true
}

// EncodeImage base64-encodes a validated image attachment.
func EncodeImage(filename, mimeType string, data []byte) EncodedImage {
	return EncodedImage{
		Filename:      filename,
		MimeType:      mimeType,
		Base64Payload: base64.StdEncoding.EncodeToString(data),
	}
}

// EncodeDocument base64-encodes a validated document attachment.
func EncodeDocument(filename, mimeType string, data []byte) EncodedDocument {
	return EncodedDocument{
		Filename:      filename,
		MimeType:      mimeType,
		Base64Payload: base64.StdEncoding.EncodeToString(data),
	}
}
