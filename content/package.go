package content

import "strings"

// Categorize classifies a package from its parts. The classification is a
// pure function of (text non-blank?, any images or documents?).
func Categorize(text string, images []EncodedImage, documents []EncodedDocument) Classification {
	hasText := strings.TrimSpace(text) != ""
	hasMedia := len(images) > 0 || len(documents) > 0

	switch {
	case hasText && hasMedia:
		return ClassificationHybrid
	case hasMedia:
		return ClassificationScreenshot
	case hasText:
		return ClassificationTextOnly
	default:
		return ClassificationEmpty
	}
}

// ValidatePackage succeeds silently when the package has usable content.
// Otherwise it returns exactly one classified error, chosen by a fixed
// priority order that determines the user-facing message when multiple
// failure types co-occurred:
//
//  1. attachments present, none downloaded      -> DOWNLOAD_FAILED
//  2. downloaded, none passed format validation -> INVALID_FORMAT
//  3. downloaded, none passed size validation   -> SIZE_EXCEEDED
//  4. no attachments and no text                -> NO_CONTENT
//
// Format failures outrank size failures when both occurred among the same
// downloaded set.
func ValidatePackage(pkg *Package, pctx *ProcessingContext) error {
	if pkg.Classification != ClassificationEmpty {
		return nil
	}

	if pctx.AttachmentCount > 0 && pctx.DownloadedCount == 0 {
		return newError(ErrCodeDownloadFailed,
			"We could not download any of the attachments in your email. Please try sending them again.",
			"all attachment downloads failed")
	}

	if pctx.DownloadedCount > 0 && pctx.FormatFailures > 0 && pctx.ValidCount == 0 {
		return newError(ErrCodeInvalidFormat,
			"None of the attachments were in a supported format. Please send PNG, JPEG, GIF or WebP images, or PDF documents.",
			"no downloaded attachment passed format validation")
	}

	if pctx.DownloadedCount > 0 && pctx.SizeFailures > 0 && pctx.ValidCount == 0 {
		return newError(ErrCodeSizeExceeded,
			"The attachments were too large to process. Please send files under the size limit.",
			"no downloaded attachment passed size validation")
	}

	return newError(ErrCodeNoContent,
		"Your email did not contain any content we could analyze. Please include the campaign text or a screenshot.",
		"no text and no attachments")
}
