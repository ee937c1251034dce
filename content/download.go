package content

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mailsage/mailsage/logger"
	"github.com/mailsage/mailsage/pkg/metrics"
)

// Downloaded pairs an attachment reference with its fetched bytes.
type Downloaded struct {
	Ref  AttachmentRef
	Data []byte
}

// Downloader fetches attachment payloads with a bounded per-attachment
// timeout. Inline "data:" URLs are decoded locally without a network call.
type Downloader struct {
	client  *http.Client
	timeout time.Duration
}

// NewDownloader creates a downloader with the given per-attachment timeout.
func NewDownloader(timeout time.Duration) *Downloader {
	return &Downloader{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// DownloadAll fetches every attachment concurrently. Each attachment gets an
// independent timeout; one failure never cancels its siblings. Failures are
// counted in pctx and logged, successes are returned in input order with
// failed slots dropped.
func (d *Downloader) DownloadAll(ctx context.Context, refs []AttachmentRef, pctx *ProcessingContext) []Downloaded {
	if len(refs) == 0 {
		return nil
	}

	pctx.AttachmentCount = len(refs)

	results := make([]*Downloaded, len(refs))
	var mu sync.Mutex

	g := new(errgroup.Group)
	for i, ref := range refs {
		g.Go(func() error {
			data, err := d.fetch(ctx, ref)
			if err != nil {
				logger.Warn("Attachment download failed",
					"filename", ref.Filename, "error", err)
				metrics.AttachmentDownloadsTotal.WithLabelValues("failure").Inc()
				mu.Lock()
				pctx.DownloadErrors++
				mu.Unlock()
				return nil
			}
			metrics.AttachmentDownloadsTotal.WithLabelValues("success").Inc()
			mu.Lock()
			pctx.DownloadedCount++
			mu.Unlock()
			results[i] = &Downloaded{Ref: ref, Data: data}
			return nil
		})
	}
	// Workers never return errors; failures are isolated per attachment.
	_ = g.Wait()

	downloaded := make([]Downloaded, 0, len(refs))
	for _, r := range results {
		if r != nil {
			downloaded = append(downloaded, *r)
		}
	}
	return downloaded
}

func (d *Downloader) fetch(ctx context.Context, ref AttachmentRef) ([]byte, error) {
	if strings.HasPrefix(ref.URL, "data:") {
		return decodeDataURL(ref.URL)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("download timed out after %v", d.timeout)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// decodeDataURL decodes an inline "data:<mime>;base64,<payload>" URL.
func decodeDataURL(url string) ([]byte, error) {
	comma := strings.Index(url, ",")
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URL")
	}
	meta := url[len("data:"):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("data URL must be base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(url[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return data, nil
}
