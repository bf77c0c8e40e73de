// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

// Package watch turns filesystem change notifications on a source tree into
// coalesced synchronization triggers.
package watch

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mirrorsync/mirrorsync/pkg/fs"
)

// Watcher watches a directory tree recursively and emits a tick on Triggers
// after each burst of changes. Bursts closer together than the debounce
// window collapse into a single tick.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	debounce time.Duration
	logger   fs.Logger
	triggers chan struct{}
	done     chan struct{}
}

func NewWatcher(root string, debounce time.Duration, logger fs.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  w,
		root:     root,
		debounce: debounce,
		logger:   logger,
		triggers: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Triggers returns the channel ticks are delivered on. The channel has a
// buffer of one; a pending tick already covers any changes that arrive
// before it is consumed.
func (w *Watcher) Triggers() <-chan struct{} {
	return w.triggers
}

// Start begins watching every directory under the root and launches the
// event loop.
func (w *Watcher) Start() error {
	err := filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				if w.logger != nil {
					_ = w.logger.Log("Cannot watch directory", map[string]interface{}{
						"path": path,
						"err":  err.Error(),
					})
				}
			}
		}
		return nil
	})
	if err != nil {
		_ = w.watcher.Close() // silently close the notification handle
		return err
	}
	go w.eventLoop()
	return nil
}

func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
			if !pending {
				pending = true
			} else if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			pending = false
			select {
			case w.triggers <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				_ = w.logger.Log("Watcher error", map[string]interface{}{
					"err": err.Error(),
				})
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// a directory created after Start must be watched too
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.watcher.Add(event.Name)
		}
	}
}
