// Package watch reloads the catalog when dataset files change on disk.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls OnChange once per quiet period after any CSV under Dir
// is created, written, removed or renamed.
type Watcher struct {
	Dir      string
	Debounce time.Duration
	OnChange func(ctx context.Context, files []string)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending map[string]struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

func New(dir string, onChange func(ctx context.Context, files []string)) *Watcher {
	return &Watcher{
		Dir:      dir,
		Debounce: DefaultDebounce,
		OnChange: onChange,
		pending:  make(map[string]struct{}),
	}
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.Dir); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	log.Info("watching datasets", "dir", w.Dir, "debounce", w.Debounce)
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		log.Error("closing watcher", "error", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			log.Debug("dataset changed", "file", ev.Name, "op", ev.Op.String())
			w.mu.Lock()
			w.pending[filepath.Base(ev.Name)] = struct{}{}
			w.mu.Unlock()
			timer.Reset(w.Debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error("watcher error", "error", err)
		case <-timer.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	files := make([]string, 0, len(w.pending))
	for f := range w.pending {
		files = append(files, f)
	}
	clear(w.pending)
	w.mu.Unlock()

	if len(files) == 0 || w.OnChange == nil {
		return
	}
	w.OnChange(ctx, files)
}

func relevant(ev fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(ev.Name), ".csv") {
		return false
	}
	return ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) ||
		ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename)
}
