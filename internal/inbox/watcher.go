package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Handler applies one turn. A returned error marks the file as failed.
type Handler func(ctx context.Context, t Turn) error

// Watcher applies the turn files of one directory, oldest first.
type Watcher struct {
	dir     string
	handle  Handler
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, handle Handler) *Watcher {
	return &Watcher{dir: dir, handle: handle, done: make(chan struct{})}
}

// Drain applies every turn file currently in the directory and returns how
// many were applied. Failed turns are renamed with a .failed suffix and
// left for inspection.
func (w *Watcher) Drain(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("inbox: read %s: %w", w.dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), turnExt) {
			names = append(names, e.Name())
		}
	}
	// Names start with the submit time, so lexical order is arrival order
	// for timestamps of equal width.
	slices.Sort(names)

	applied := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		if w.process(ctx, filepath.Join(w.dir, name)) {
			applied++
		}
	}
	return applied, nil
}

// Start drains existing turns, then applies new ones as they appear until
// ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("inbox: mkdir %s: %w", w.dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	// Watch before draining so a turn submitted in between is not missed.
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return fmt.Errorf("inbox: watch %s: %w", w.dir, err)
	}
	w.watcher = fw

	if _, err := w.Drain(ctx); err != nil {
		_ = fw.Close()
		return err
	}
	go w.loop(ctx)
	log.Info("watching inbox", "dir", w.dir)
	return nil
}

// Stop shuts the watcher down and waits for the current turn to finish.
func (w *Watcher) Stop() {
	if w.watcher == nil {
		return
	}
	_ = w.watcher.Close()
	<-w.done
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Rename into the directory is reported as Create.
			if evt.Op&fsnotify.Create != 0 && strings.HasSuffix(evt.Name, turnExt) {
				w.process(ctx, evt.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("inbox watcher error", "err", err)
		}
	}
}

// process applies one file and reports whether it succeeded.
func (w *Watcher) process(ctx context.Context, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		// Already consumed by a drain.
		return false
	}

	var t Turn
	err = json.Unmarshal(data, &t)
	if err == nil {
		err = t.Validate()
	}
	if err == nil {
		err = w.handle(ctx, t)
	}
	if err != nil {
		log.Error("inbox turn failed", "file", filepath.Base(path), "err", err)
		if rerr := os.Rename(path, path+failedExt); rerr != nil {
			log.Warn("inbox: cannot set aside failed turn", "file", filepath.Base(path), "err", rerr)
		}
		return false
	}
	if err := os.Remove(path); err != nil {
		log.Warn("inbox: cannot remove applied turn", "file", filepath.Base(path), "err", err)
	}
	return true
}
