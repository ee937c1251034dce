package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalMimeType(t *testing.T) {
	tests := []struct {
		declared string
		want     string
	}{
		{"image/png", "image/png"},
		{"IMAGE/PNG", "image/png"},
		{"image/jpg", "image/jpeg"}, // alias folded to canonical
		{"image/jpeg; charset=binary", "image/jpeg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalMimeType(tt.declared, nil), "declared=%s", tt.declared)
	}
}

func TestCanonicalMimeType_SniffsWhenUndeclared(t *testing.T) {
	pngHeader := []byte("\x89PNG\r\n\x1a\n0000000000")
	assert.Equal(t, "image/png", CanonicalMimeType("", pngHeader))
	assert.Equal(t, "image/png", CanonicalMimeType("application/octet-stream", pngHeader))
}

func TestValidate_FormatAndSizeAreIndependent(t *testing.T) {
	maxBytes := int64(16)

	t.Run("supported and small passes", func(t *testing.T) {
		pctx := &ProcessingContext{}
		dl := Downloaded{Ref: AttachmentRef{Filename: "a.png", ContentType: "image/png"}, Data: []byte("ok")}
		mt, ok := Validate(dl, maxBytes, pctx)
		assert.True(t, ok)
		assert.Equal(t, "image/png", mt)
		assert.Equal(t, 1, pctx.ValidCount)
	})

	t.Run("unsupported format counted as format failure", func(t *testing.T) {
		pctx := &ProcessingContext{}
		dl := Downloaded{Ref: AttachmentRef{Filename: "a.zip", ContentType: "application/zip"}, Data: []byte("ok")}
		_, ok := Validate(dl, maxBytes, pctx)
		assert.False(t, ok)
		assert.Equal(t, 1, pctx.FormatFailures)
		assert.Equal(t, 0, pctx.SizeFailures)
	})

	t.Run("oversized counted as size failure", func(t *testing.T) {
		pctx := &ProcessingContext{}
		dl := Downloaded{Ref: AttachmentRef{Filename: "a.png", ContentType: "image/png"}, Data: []byte(strings.Repeat("x", 32))}
		_, ok := Validate(dl, maxBytes, pctx)
		assert.False(t, ok)
		assert.Equal(t, 0, pctx.FormatFailures)
		assert.Equal(t, 1, pctx.SizeFailures)
	})

	t.Run("bad format and oversized counted in both categories", func(t *testing.T) {
		pctx := &ProcessingContext{}
		dl := Downloaded{Ref: AttachmentRef{Filename: "a.zip", ContentType: "application/zip"}, Data: []byte(strings.Repeat("x", 32))}
		_, ok := Validate(dl, maxBytes, pctx)
		assert.False(t, ok)
		assert.Equal(t, 1, pctx.FormatFailures)
		assert.Equal(t, 1, pctx.SizeFailures)
		assert.Equal(t, 0, pctx.ValidCount)
	})
}

func TestEncodeImage(t *testing.T) {
	img := EncodeImage("a.png", "image/png", []byte{1, 2, 3})
	assert.Equal(t, "a.png", img.Filename)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, "AQID", img.Base64Payload)
}
