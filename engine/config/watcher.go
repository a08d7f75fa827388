package config

import (
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/framekeeper/engine/core"
)

// Watcher reloads a configuration file when it changes on disk. Only
// files that parse and validate are published; the rest are reported on
// Errors and the previous configuration stays in effect.
type Watcher struct {
	path     string
	fsnotify *fsnotify.Watcher

	reloads chan *EngineConfig
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// Watch starts watching path. The directory is watched rather than the
// file so that editors replacing the file are seen too.
func Watch(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create config watcher")
	}
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, errors.Wrapf(err, "watch %s", abs)
	}
	w := &Watcher{
		path:     abs,
		fsnotify: fsWatch,
		reloads:  make(chan *EngineConfig, 1),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.start()
	return w, nil
}

// Reloads delivers the most recent valid configuration. A reload that is
// not consumed before the next one is replaced by it.
func (w *Watcher) Reloads() <-chan *EngineConfig {
	return w.reloads
}

func (w *Watcher) Errors() <-chan error {
	return w.errors
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.fsnotify.Close()
	})
	return err
}

func (w *Watcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				core.LogWarn("config reload rejected: %s", err)
				w.publishError(err)
				continue
			}
			core.LogInfo("config %s reloaded", w.path)
			w.publish(cfg)

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("config watcher: %s", err)
			w.publishError(err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) publish(cfg *EngineConfig) {
	for {
		select {
		case w.reloads <- cfg:
			return
		default:
		}
		// Drop the stale pending reload.
		select {
		case <-w.reloads:
		default:
		}
	}
}

func (w *Watcher) publishError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}
