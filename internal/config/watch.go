package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/runlace/core/pkg/types"
)

// Watcher reloads project configuration whenever its file changes on disk,
// so a session picks up edits without a restart.
type Watcher struct {
	watcher   *fsnotify.Watcher
	directory string
	onReload  func(*types.Config)
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
}

// NewWatcher watches a project's .lace config directory. onReload is
// invoked with the freshly reloaded config whenever a watched file changes.
func NewWatcher(directory string, onReload func(*types.Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	configDir := directory + "/.lace"
	if err := w.Add(configDir); err != nil {
		w.Close()
		return nil, nil // no project config directory yet, nothing to watch
	}
	return &Watcher{
		watcher:   w,
		directory: directory,
		onReload:  onReload,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start runs the watch loop until Stop is called.
func (w *Watcher) Start() {
	go func() {
		defer close(w.doneCh)
		for {
			select {
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				cfg, err := Load(w.directory)
				if err != nil {
					log.Warn().Err(err).Msg("config reload failed")
					continue
				}
				w.onReload(cfg)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher error")
			case <-w.stopCh:
				return
			}
		}
	}()
}

// Stop halts the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopCh:
		return
	default:
		close(w.stopCh)
	}
	w.watcher.Close()
	<-w.doneCh
}
