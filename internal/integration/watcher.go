package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits after the last inbox change
// before triggering a pass.
const DefaultDebounce = 500 * time.Millisecond

// InboxWatcher triggers a callback whenever report files appear or change in
// the inbox directory. Bursts of events are collapsed into one call.
type InboxWatcher struct {
	dir      string
	debounce time.Duration
	logger   *zap.Logger
}

// NewInboxWatcher creates a watcher over dir. A zero debounce uses
// DefaultDebounce.
func NewInboxWatcher(dir string, debounce time.Duration, logger *zap.Logger) *InboxWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboxWatcher{dir: dir, debounce: debounce, logger: logger}
}

// Watch blocks until ctx is cancelled, calling onChange after each settled
// burst of create/write/rename events on *.json files. Calls never overlap.
// An error from onChange is logged and watching continues.
func (w *InboxWatcher) Watch(ctx context.Context, onChange func(context.Context) error) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating inbox directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating inbox watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching inbox", zap.String("dir", w.dir))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			w.logger.Debug("inbox event", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", zap.Error(err))

		case <-timer.C:
			if err := onChange(ctx); err != nil {
				w.logger.Error("inbox pass failed", zap.Error(err))
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !strings.HasSuffix(ev.Name, ".json") {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0
}
