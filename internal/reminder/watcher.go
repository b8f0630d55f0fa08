package reminder

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher hot-reloads the reminder store when its backing file is edited
// behind the runtime's back. The store's own atomic writes land as renames
// in the same directory; Reload compares content, so self-inflicted events
// are cheap no-ops.
type Watcher struct {
	logger    zerolog.Logger
	watcher   *fsnotify.Watcher
	scheduler *Scheduler
	path      string
	debounce  time.Duration

	mu    sync.Mutex
	timer *time.Timer

	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher starts watching the scheduler's store file. The directory is
// watched, not the file: editors and atomic writers replace the inode.
func NewWatcher(scheduler *Scheduler, logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	path := scheduler.store.Path()
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		logger:    logger.With().Str("component", "reminder-watcher").Logger(),
		watcher:   fsw,
		scheduler: scheduler,
		path:      path,
		debounce:  200 * time.Millisecond,
		done:      make(chan struct{}),
	}
	go w.watchLoop()

	w.logger.Info().Str("path", path).Msg("Watching reminder file for external edits")
	return w, nil
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Reminder watcher error")
		}
	}
}

// scheduleReload coalesces event bursts from editors that write in several
// steps into one reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.scheduler.Reload)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
