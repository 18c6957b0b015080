// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package aiops

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debounce window for filesystem event storms: editors typically emit
// several write events per save.
const watchDebounce = 200 * time.Millisecond

// ConfigWatcher watches the config file and pushes reloaded model and
// requirement data into the running service.
type ConfigWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewConfigWatcher creates a watcher for the given config file path.
func NewConfigWatcher(path string, logger *log.Logger) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ConfigWatcher{
		path:    path,
		watcher: w,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Watch starts the event loop, invoking onReload after each debounced
// change to the config file. It returns immediately; Stop shuts the
// loop down.
func (cw *ConfigWatcher) Watch(onReload func(Config)) error {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return fmt.Errorf("config watcher already running")
	}
	cw.running = true
	cw.mu.Unlock()

	// Watch the directory, not the file: editors replace files on save,
	// which drops the watch on the old inode.
	dir := filepath.Dir(cw.path)
	if err := cw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go cw.loop(onReload)
	cw.logger.Printf("watching config file %s for changes", cw.path)
	return nil
}

func (cw *ConfigWatcher) loop(onReload func(Config)) {
	defer close(cw.doneCh)

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-cw.stopCh:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(cw.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				debounce.Reset(watchDebounce)
			}
			debounceCh = debounce.C

		case <-debounceCh:
			debounceCh = nil
			cw.reload(onReload)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Printf("ERROR: config watcher: %v", err)
		}
	}
}

func (cw *ConfigWatcher) reload(onReload func(Config)) {
	config, err := LoadConfig(cw.path)
	if err != nil {
		// A bad file keeps the previous config in effect.
		cw.logger.Printf("ERROR: config reload skipped: %v", err)
		return
	}
	cw.logger.Printf("config file changed, reloading %d models", len(config.Models))
	onReload(config)
}

// Stop shuts down the watcher and waits for the event loop to exit.
func (cw *ConfigWatcher) Stop() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if !cw.running {
		return
	}
	cw.running = false
	close(cw.stopCh)
	cw.watcher.Close()
	<-cw.doneCh
}
