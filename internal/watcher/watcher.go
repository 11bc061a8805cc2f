// Package watcher watches the session directory and triggers token reloads
// when another process rewrites the persisted credential blobs. It supports
// cross-platform fsnotify event handling.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// reloadDebounce is a short delay so that an atomic replace (write temp file
// then rename) produces one reload instead of one per event.
const reloadDebounce = 150 * time.Millisecond

// Watcher observes credential files inside a session directory and invokes a
// reload callback when one of them changes on disk.
type Watcher struct {
	sessionDir string
	fileNames  map[string]struct{}
	reload     func()

	mu          sync.Mutex
	reloadTimer *time.Timer
	watcher     *fsnotify.Watcher
}

// New creates a watcher over sessionDir. reload fires after any of fileNames
// (base names, e.g. "tokens.blob") is created or written.
func New(sessionDir string, fileNames []string, reload func()) *Watcher {
	names := make(map[string]struct{}, len(fileNames))
	for _, name := range fileNames {
		names[name] = struct{}{}
	}
	return &Watcher{sessionDir: sessionDir, fileNames: names, reload: reload}
}

// Start begins watching until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = fsWatcher.Add(w.sessionDir); err != nil {
		_ = fsWatcher.Close()
		return err
	}
	w.mu.Lock()
	w.watcher = fsWatcher
	w.mu.Unlock()

	go w.run(ctx, fsWatcher)
	log.Debugf("watching session dir: %s", w.sessionDir)
	return nil
}

// Stop terminates the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reloadTimer != nil {
		w.reloadTimer.Stop()
		w.reloadTimer = nil
	}
	if w.watcher != nil {
		_ = w.watcher.Close()
		w.watcher = nil
	}
}

func (w *Watcher) run(ctx context.Context, fsWatcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warnf("session watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	if _, watched := w.fileNames[filepath.Base(event.Name)]; !watched {
		return
	}
	log.Debugf("session file changed: %s (%s)", filepath.Base(event.Name), event.Op)
	w.scheduleReload()
}

// scheduleReload debounces bursts of events into a single callback.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reloadTimer != nil {
		w.reloadTimer.Stop()
	}
	w.reloadTimer = time.AfterFunc(reloadDebounce, w.reload)
}
