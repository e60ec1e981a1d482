// Package watcher observes the ebook drop folder and reports files that
// have finished arriving. Events are debounced: a file being copied in
// produces a stream of writes, and the watcher emits a single event only
// after the file has settled.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event reports one settled file in the watched folder.
type Event struct {
	// Path is the absolute path of the file.
	Path string
	// Size is the file size at settle time.
	Size int64
	// ModTime is the file's last modification time.
	ModTime time.Time
}

// Watcher wraps fsnotify with per-file settle timers and an extension
// filter, so consumers see "an ebook arrived" rather than raw write events.
type Watcher struct {
	opts   Options
	logger *slog.Logger

	fw     *fsnotify.Watcher
	events chan Event

	mu      sync.Mutex
	pending map[string]*time.Timer

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a watcher for the given folder. The folder must exist.
func New(path string, opts Options, logger *slog.Logger) (*Watcher, error) {
	opts.setDefaults()

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &os.PathError{Op: "watch", Path: path, Err: os.ErrInvalid}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, err
	}

	return &Watcher{
		opts:    opts,
		logger:  logger,
		fw:      fw,
		events:  make(chan Event, 16),
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}, nil
}

// Events returns the channel of settled-file events. Closed on Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins processing filesystem notifications.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
}

// Stop halts the watcher and closes the event channel. Pending settle
// timers are dropped; an interrupted copy is picked up on the next start
// by the caller's folder sweep.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.events)
	defer w.fw.Close() //nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			w.dropPending()
			return

		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// handle arms or re-arms the settle timer for a written file. Each new
// write pushes the timer back, so the event fires only once the file has
// been quiet for the settle delay.
func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
			w.forget(event.Name)
		}
		return
	}
	if w.ignored(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[event.Name]; ok {
		timer.Reset(w.opts.SettleDelay)
		return
	}

	path := event.Name
	w.pending[path] = time.AfterFunc(w.opts.SettleDelay, func() {
		w.settle(ctx, path)
	})
}

// settle emits the event for a file whose writes have gone quiet.
func (w *Watcher) settle(ctx context.Context, path string) {
	w.forget(path)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		// Deleted mid-copy, or a directory we don't care about.
		return
	}

	select {
	case w.events <- Event{Path: path, Size: info.Size(), ModTime: info.ModTime()}:
	case <-ctx.Done():
	}
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) dropPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

// ignored filters hidden files, temp files, and extensions the caller
// does not want.
func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	for _, pattern := range w.opts.IgnorePatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}

	if len(w.opts.Extensions) == 0 {
		return false
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(base)), ".")
	for _, want := range w.opts.Extensions {
		if ext == want {
			return false
		}
	}
	return true
}
