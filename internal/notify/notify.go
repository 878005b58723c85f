// Package notify implements the cross-process change signal: a one-way,
// payload-free, best-effort broadcast meaning "state changed, re-read
// and re-reconcile".
package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/onelife/shieldd/internal/domain"
)

const signalFileName = "change.signal"

// debounceWindow coalesces bursts of signals into one wake-up. Signals
// are hints, not a source of truth, so coalescing is always safe.
const debounceWindow = 100 * time.Millisecond

// FileSignal broadcasts through a signal file in the shared data
// directory. Posting rewrites the file; subscribers watch it with
// fsnotify. Delivery may be coalesced, duplicated, or dropped -
// subscribers must also re-reconcile on their own triggers.
type FileSignal struct {
	dir    string
	path   string
	logger *zap.Logger
}

// NewFileSignal creates a notifier rooted in the shared data directory.
func NewFileSignal(dir string, logger *zap.Logger) *FileSignal {
	return &FileSignal{
		dir:    dir,
		path:   filepath.Join(dir, signalFileName),
		logger: logger,
	}
}

// Post writes a fresh nonce to the signal file. The caller must flush
// the state store first so a reader never observes the signal before
// the write is durable.
func (n *FileSignal) Post() error {
	if err := os.MkdirAll(n.dir, 0700); err != nil {
		return err
	}
	nonce := fmt.Sprintf("%d.%d\n", time.Now().UnixNano(), os.Getpid())
	return os.WriteFile(n.path, []byte(nonce), 0600)
}

// Subscribe invokes fn on every observed signal until ctx is done. It
// blocks for the life of the subscription.
func (n *FileSignal) Subscribe(ctx context.Context, fn func()) error {
	if err := os.MkdirAll(n.dir, 0700); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: the file may not exist yet,
	// and directory watches survive its recreation.
	if err := watcher.Add(n.dir); err != nil {
		return err
	}

	// Debounce timer, armed on each matching event.
	debounce := time.NewTimer(debounceWindow)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != n.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce.Reset(debounceWindow)

		case <-debounce.C:
			fn()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			n.logger.Warn("signal watcher error", zap.Error(err))
		}
	}
}

// Ensure FileSignal implements domain.ChangeNotifier.
var _ domain.ChangeNotifier = (*FileSignal)(nil)
