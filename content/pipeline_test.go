package content

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inlineRef(filename, mimeType string, data []byte) AttachmentRef {
	return AttachmentRef{
		URL:         "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		Filename:    filename,
		ContentType: mimeType,
	}
}

func TestExtractorBuild_TextOnly(t *testing.T) {
	e := NewExtractor(NewDownloader(time.Second), nil, 1024)

	pkg, pctx, err := e.Build(context.Background(), &Envelope{TextBody: "Check this draft"})
	require.NoError(t, err)
	assert.Equal(t, ClassificationTextOnly, pkg.Classification)
	assert.Equal(t, "Check this draft", pkg.Text)
	assert.Equal(t, 0, pctx.AttachmentCount)
}

func TestExtractorBuild_HybridWithImage(t *testing.T) {
	e := NewExtractor(NewDownloader(time.Second), nil, 1024)

	env := &Envelope{
		TextBody:    "see screenshot",
		Attachments: []AttachmentRef{inlineRef("shot.png", "image/png", []byte("png-bytes"))},
	}
	pkg, pctx, err := e.Build(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, ClassificationHybrid, pkg.Classification)
	require.Len(t, pkg.Images, 1)
	assert.Equal(t, "shot.png", pkg.Images[0].Filename)
	assert.Equal(t, 1, pctx.ValidCount)
}

func TestExtractorBuild_DocumentRasterizedIntoImages(t *testing.T) {
	r := &fakeRasterizer{pages: []PageImage{{PageNumber: 1, MimeType: "image/png", Data: []byte{1}}}}
	e := NewExtractor(NewDownloader(time.Second), r, 1024)

	env := &Envelope{
		Attachments: []AttachmentRef{inlineRef("deck.pdf", "application/pdf", []byte("%PDF-1.4"))},
	}
	pkg, _, err := e.Build(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, pkg.Documents, 1)
	require.Len(t, pkg.Images, 1, "rasterized page should join the image list")
	assert.Equal(t, ClassificationScreenshot, pkg.Classification)
}

func TestExtractorBuild_NoContentError(t *testing.T) {
	e := NewExtractor(NewDownloader(time.Second), nil, 1024)

	_, _, err := e.Build(context.Background(), &Envelope{})
	var cErr *Error
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, ErrCodeNoContent, cErr.Code)
}

func TestExtractorBuild_AllDownloadsFailed(t *testing.T) {
	e := NewExtractor(NewDownloader(50*time.Millisecond), nil, 1024)

	env := &Envelope{
		Attachments: []AttachmentRef{
			{URL: "http://127.0.0.1:1/nope.png", Filename: "nope.png", ContentType: "image/png"},
		},
	}
	_, pctx, err := e.Build(context.Background(), env)
	var cErr *Error
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, ErrCodeDownloadFailed, cErr.Code)
	assert.Equal(t, 1, pctx.DownloadErrors)
}

func TestExtractorBuild_UnsupportedFormatError(t *testing.T) {
	e := NewExtractor(NewDownloader(time.Second), nil, 1024)

	env := &Envelope{
		Attachments: []AttachmentRef{inlineRef("archive.zip", "application/zip", []byte("PK\x03\x04zip-bytes"))},
	}
	_, _, err := e.Build(context.Background(), env)
	var cErr *Error
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, ErrCodeInvalidFormat, cErr.Code)
}

func TestExtractorBuild_OversizedAttachmentError(t *testing.T) {
	e := NewExtractor(NewDownloader(time.Second), nil, 4)

	env := &Envelope{
		Attachments: []AttachmentRef{inlineRef("big.png", "image/png", []byte("way-more-than-four-bytes"))},
	}
	_, _, err := e.Build(context.Background(), env)
	var cErr *Error
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, ErrCodeSizeExceeded, cErr.Code)
}
