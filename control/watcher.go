// File: control/watcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay coalesces the burst of events editors produce on save.
const settleDelay = 10 * time.Millisecond

// Watcher reloads a settings file whenever it changes and passes the
// result to the hooks. Files that fail to load are logged and ignored.
type Watcher struct {
	path    string
	hooks   *ReloadHooks
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// WatchSettings starts watching path.
func WatchSettings(path string, hooks *ReloadHooks) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{
		path:    path,
		hooks:   hooks,
		watcher: fw,
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warningf("watch %s: %s", w.path, err)
		case _, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.settle()
			w.reload()
			// editors replace the file by rename
			w.watcher.Add(w.path)
		}
	}
}

func (w *Watcher) settle() {
	for {
		time.Sleep(settleDelay)
		select {
		case _, ok := <-w.watcher.Events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (w *Watcher) reload() {
	s, err := LoadSettings(w.path)
	if err != nil {
		log.Errorf("reload: %s", err)
		return
	}
	log.Infof("reloaded %s", w.path)
	w.hooks.TriggerSync(s)
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
