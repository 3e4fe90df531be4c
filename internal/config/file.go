package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML overlay onto cfg. A missing path is not an
// error: the node may run on env vars and defaults alone.
func LoadFromFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Watcher reloads the mutable subset of Config whenever the backing
// file changes on disk, the way the teacher's gateway watches TLS
// material: every fsnotify write or create event triggers a reload (no
// debouncing), and a bad intermediate write never fails the process.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	log     *zap.Logger
}

// NewWatcher starts watching the file at path itself (not its
// directory). A no-op Watcher is returned when path is empty.
func NewWatcher(path string, log *zap.Logger) (*Watcher, error) {
	if path == "" {
		return &Watcher{log: log}, nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	return &Watcher{watcher: fw, path: path, log: log}, nil
}

// Run blocks, invoking onChange with the reloaded Mutable fields each
// time the file is written. It returns when stop is closed.
func (w *Watcher) Run(stop <-chan struct{}, onChange func(Mutable)) {
	if w.watcher == nil {
		<-stop
		return
	}
	defer w.watcher.Close()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reloaded := Default()
			if err := LoadFromFile(reloaded, w.path); err != nil {
				w.log.Warn("config: reload failed, keeping prior values", zap.Error(err))
				continue
			}
			onChange(reloaded.AsMutable())
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config: watcher error", zap.Error(err))
		}
	}
}
