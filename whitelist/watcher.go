package whitelist

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mailsage/mailsage/logger"
	"github.com/mailsage/mailsage/pkg/metrics"
)

// Watcher reloads a Service's allowlist when the backing file changes.
//
// Change events restart a single debounce timer; only the timer's expiry
// triggers a reload, so a burst of writes from an editor or config
// management run collapses into one reload attempt. A failed reload is
// logged and the previous whitelist stays active.
type Watcher struct {
	service  *Service
	debounce time.Duration
}

// NewWatcher creates a watcher for the service's allowlist file.
func NewWatcher(service *Service, debounce time.Duration) *Watcher {
	return &Watcher{service: service, debounce: debounce}
}

// Run watches until ctx is cancelled. The parent directory is watched rather
// than the file itself because editors and atomic writers replace the file,
// which would drop an inode-level watch.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	dir := filepath.Dir(w.service.path)
	if err := fsw.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(w.service.path)
	logger.Info("Watching allowlist file", "path", target, "debounce", w.debounce)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// Restart the single debounce slot.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timerC:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			logger.Debug("Allowlist change detected, reload pending", "op", event.Op.String())

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Allowlist watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	wl, err := w.service.Reload()
	if err != nil {
		// Keep serving the previous snapshot. A missing or invalid file is
		// only fatal at startup.
		logger.Error("Allowlist reload failed, keeping previous whitelist", "error", err)
		metrics.WhitelistReloadsTotal.WithLabelValues("failure").Inc()
		return
	}

	logger.Info("Allowlist reloaded",
		"addresses", wl.AddressCount(),
		"domains", wl.DomainCount())
	metrics.WhitelistReloadsTotal.WithLabelValues("success").Inc()
}
