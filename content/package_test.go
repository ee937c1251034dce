package content

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorize(t *testing.T) {
	img := EncodedImage{Filename: "s.png", MimeType: "image/png", Base64Payload: "AA=="}
	doc := EncodedDocument{Filename: "d.pdf", MimeType: "application/pdf", Base64Payload: "AA=="}

	tests := []struct {
		name      string
		text      string
		images    []EncodedImage
		documents []EncodedDocument
		want      Classification
	}{
		{"empty", "", nil, nil, ClassificationEmpty},
		{"whitespace-only text behaves as empty", "  \n\t ", nil, nil, ClassificationEmpty},
		{"text only", "hi", nil, nil, ClassificationTextOnly},
		{"screenshot only", "", []EncodedImage{img}, nil, ClassificationScreenshot},
		{"hybrid", "hi", []EncodedImage{img}, nil, ClassificationHybrid},
		{"document counts as media", "", nil, []EncodedDocument{doc}, ClassificationScreenshot},
		{"whitespace text with image is screenshot only", "   ", []EncodedImage{img}, nil, ClassificationScreenshot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.text, tt.images, tt.documents))
		})
	}
}

func emptyPackage() *Package {
	return &Package{Classification: ClassificationEmpty}
}

func assertContentError(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var cErr *Error
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, code, cErr.Code)
	assert.NotEmpty(t, cErr.UserMessage)
}

func TestValidatePackage_PriorityOrder(t *testing.T) {
	t.Run("usable package succeeds silently", func(t *testing.T) {
		pkg := &Package{Classification: ClassificationTextOnly, Text: "hi"}
		assert.NoError(t, ValidatePackage(pkg, &ProcessingContext{}))
	})

	t.Run("all downloads failed", func(t *testing.T) {
		pctx := &ProcessingContext{AttachmentCount: 3, DownloadedCount: 0, DownloadErrors: 3}
		assertContentError(t, ValidatePackage(emptyPackage(), pctx), ErrCodeDownloadFailed)
	})

	t.Run("downloaded but nothing passed format validation", func(t *testing.T) {
		pctx := &ProcessingContext{AttachmentCount: 2, DownloadedCount: 2, FormatFailures: 2}
		assertContentError(t, ValidatePackage(emptyPackage(), pctx), ErrCodeInvalidFormat)
	})

	t.Run("format failures win over size failures", func(t *testing.T) {
		pctx := &ProcessingContext{AttachmentCount: 2, DownloadedCount: 2, FormatFailures: 1, SizeFailures: 1}
		assertContentError(t, ValidatePackage(emptyPackage(), pctx), ErrCodeInvalidFormat)
	})

	t.Run("downloaded but nothing passed size validation", func(t *testing.T) {
		pctx := &ProcessingContext{AttachmentCount: 1, DownloadedCount: 1, SizeFailures: 1}
		assertContentError(t, ValidatePackage(emptyPackage(), pctx), ErrCodeSizeExceeded)
	})

	t.Run("no attachments and no text", func(t *testing.T) {
		assertContentError(t, ValidatePackage(emptyPackage(), &ProcessingContext{}), ErrCodeNoContent)
	})
}
