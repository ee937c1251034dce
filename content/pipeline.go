package content

import (
	"context"

	"github.com/mailsage/mailsage/logger"
)

// Extractor runs the full extraction pipeline for one envelope: text
// derivation, concurrent attachment download, validation, document
// rasterization and encoding.
type Extractor struct {
	downloader *Downloader
	rasterizer Rasterizer
	maxBytes   int64
}

// NewExtractor wires an extraction pipeline.
func NewExtractor(downloader *Downloader, rasterizer Rasterizer, maxBytes int64) *Extractor {
	return &Extractor{
		downloader: downloader,
		rasterizer: rasterizer,
		maxBytes:   maxBytes,
	}
}

// Build produces the categorized content package for one envelope. The
// returned ProcessingContext carries the failure counts ValidatePackage
// needs; Build itself only fails through the classified error returned by
// ValidatePackage.
func (e *Extractor) Build(ctx context.Context, env *Envelope) (*Package, *ProcessingContext, error) {
	pctx := &ProcessingContext{}

	text := ExtractText(env)
	refs := DetectAttachments(env)

	var images []EncodedImage
	var documents []EncodedDocument

	if len(refs) > 0 {
		downloaded := e.downloader.DownloadAll(ctx, refs, pctx)

		for _, dl := range downloaded {
			mimeType, ok := Validate(dl, e.maxBytes, pctx)
			if !ok {
				continue
			}

			if IsSupportedImage(mimeType) {
				images = append(images, EncodeImage(dl.Ref.Filename, mimeType, dl.Data))
				continue
			}

			// Supported document: keep the original and rasterize pages so
			// the analysis endpoint can see its visual layout. A rasterizer
			// failure drops only the page images, never the request.
			documents = append(documents, EncodeDocument(dl.Ref.Filename, mimeType, dl.Data))
			if e.rasterizer != nil {
				images = append(images, ConvertDocumentToImages(ctx, e.rasterizer, dl.Ref.Filename, dl.Data)...)
			}
		}
	}

	pkg := &Package{
		Classification: Categorize(text, images, documents),
		Text:           text,
		Images:         images,
		Documents:      documents,
	}

	logger.Debug("Content package built",
		"classification", pkg.Classification,
		"text_len", len(pkg.Text),
		"images", len(pkg.Images),
		"documents", len(pkg.Documents),
		"download_errors", pctx.DownloadErrors,
		"format_failures", pctx.FormatFailures,
		"size_failures", pctx.SizeFailures)

	if err := ValidatePackage(pkg, pctx); err != nil {
		return nil, pctx, err
	}
	return pkg, pctx, nil
}
