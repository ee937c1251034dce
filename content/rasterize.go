package content

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/mailsage/mailsage/logger"
	"github.com/mailsage/mailsage/pkg/metrics"
)

// PageImage is one rasterized page of a document.
type PageImage struct {
	PageNumber int
	MimeType   string
	Data       []byte
}

// Rasterizer converts a document into one raster image per page. It is a
// boundary collaborator so tests can substitute a fake.
type Rasterizer interface {
	Rasterize(ctx context.Context, data []byte) ([]PageImage, error)
}

// CommandRasterizer shells out to an external rasterizer (pdftoppm by
// default) in a scratch directory that is removed on every exit path.
type CommandRasterizer struct {
	Command  string
	Timeout  time.Duration
	MaxPages int
}

// NewCommandRasterizer creates a rasterizer around the given binary.
func NewCommandRasterizer(command string, timeout time.Duration, maxPages int) *CommandRasterizer {
	return &CommandRasterizer{Command: command, Timeout: timeout, MaxPages: maxPages}
}

// Rasterize writes the document to a temp file, invokes the external command
// and collects the page images it produced, capped at MaxPages.
func (r *CommandRasterizer) Rasterize(ctx context.Context, data []byte) ([]PageImage, error) {
	tmpDir, err := os.MkdirTemp("", "mailsage-raster-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	docPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(docPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	outPrefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(ctx, r.Command,
		"-png",
		"-r", "150",
		"-l", strconv.Itoa(r.MaxPages),
		docPath, outPrefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s failed: %w (output: %s)", r.Command, err, string(out))
	}

	pages, err := filepath.Glob(outPrefix + "*.png")
	if err != nil {
		return nil, err
	}
	sort.Strings(pages)

	images := make([]PageImage, 0, len(pages))
	for i, p := range pages {
		if i >= r.MaxPages {
			break
		}
		pageData, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read rendered page: %w", err)
		}
		images = append(images, PageImage{
			PageNumber: i + 1,
			MimeType:   "image/png",
			Data:       pageData,
		})
	}
	return images, nil
}

// ConvertDocumentToImages rasterizes a document attachment into encoded page
// images. Any failure drops the document silently from the package: the
// result is an empty list plus a warning log, never a request failure.
func ConvertDocumentToImages(ctx context.Context, r Rasterizer, filename string, data []byte) []EncodedImage {
	pages, err := r.Rasterize(ctx, data)
	if err != nil {
		logger.Warn("Document rasterization failed, dropping document",
			"filename", filename, "error", err)
		metrics.DocumentsRasterizedTotal.WithLabelValues("failure").Inc()
		return nil
	}

	metrics.DocumentsRasterizedTotal.WithLabelValues("success").Inc()

	images := make([]EncodedImage, 0, len(pages))
	for _, page := range pages {
		images = append(images, EncodeImage(
			fmt.Sprintf("%s.page-%d.png", filename, page.PageNumber),
			page.MimeType,
			page.Data,
		))
	}
	return images
}
