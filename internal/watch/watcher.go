// Package watch turns file system changes in the vault and the publication
// content root into document events.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/dispatch/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Callback receives a change. kind is one of "created", "updated", "deleted";
// path is relative to the tree's store root.
type Callback func(kind, tree, path string)

// Tree is a directory to watch. Dir is relative to Store's root; "" watches
// the whole store.
type Tree struct {
	Name  string
	Store storage.Provider
	Dir   string
}

type watched struct {
	Tree
	abs   string
	files map[string]time.Time
}

// Watch watches every tree until ctx is cancelled. Trees whose directory
// does not exist are skipped. New directories are added as they appear;
// renames trigger a debounced reconciliation against a listing of the tree.
func Watch(ctx context.Context, trees []Tree, logger *slog.Logger, cb Callback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	var active []*watched
	for _, t := range trees {
		abs, err := t.Store.Abs(t.Dir)
		if err != nil {
			return fmt.Errorf("watch: %s: %w", t.Name, err)
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			logger.Warn("watch: skipping missing tree", slog.String("tree", t.Name), slog.String("root", abs))
			continue
		}
		if err := addDirsRecursive(w, abs); err != nil {
			return fmt.Errorf("watch: %s: %w", t.Name, err)
		}
		wt := &watched{Tree: t, abs: abs, files: map[string]time.Time{}}
		wt.files = snapshot(wt)
		active = append(active, wt)
		logger.Info("watch: started", slog.String("tree", t.Name), slog.String("root", abs))
	}

	emit := func(kind string, t *watched, rel string) {
		logger.Debug("watch: change", slog.String("tree", t.Name), slog.String("path", rel), slog.String("op", kind))
		if cb != nil {
			cb(kind, t.Name, rel)
		}
	}

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watch: stopped")
			return nil

		case <-reconcileCh:
			for _, t := range active {
				reconcile(t, emit)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			t := owner(active, ev.Name)
			if t == nil {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watch: add new dir failed", slog.String("path", ev.Name), slog.String("error", addErr.Error()))
					}
					// Files may have landed before the directory was watched.
					reconcile(t, emit)
					continue
				}
			}

			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			rel, relErr := t.Store.Rel(ev.Name)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind := "updated"
				if _, known := t.files[rel]; !known || ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				t.files[rel] = modTime(ev.Name)
				emit(kind, t, rel)

			case ev.Op&fsnotify.Remove != 0:
				delete(t.files, rel)
				emit("deleted", t, rel)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports only the old name; the new one arrives as
				// a Create if it stays inside a watched directory.
				delete(t.files, rel)
				emit("deleted", t, rel)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile compares the remembered file set with a fresh listing and emits
// the differences.
func reconcile(t *watched, emit func(string, *watched, string)) {
	current := snapshot(t)
	for p := range t.files {
		if _, ok := current[p]; !ok {
			emit("deleted", t, p)
		}
	}
	for p, mod := range current {
		prev, ok := t.files[p]
		switch {
		case !ok:
			emit("created", t, p)
		case !prev.Equal(mod):
			emit("updated", t, p)
		}
	}
	t.files = current
}

func snapshot(t *watched) map[string]time.Time {
	entries, err := t.Store.List(t.Dir)
	if err != nil {
		return t.files
	}
	out := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		out[e.Path] = e.ModTime
	}
	return out
}

func owner(trees []*watched, abs string) *watched {
	var best *watched
	for _, t := range trees {
		if abs == t.abs || strings.HasPrefix(abs, t.abs+string(os.PathSeparator)) {
			if best == nil || len(t.abs) > len(best.abs) {
				best = t
			}
		}
	}
	return best
}

func modTime(p string) time.Time {
	info, err := os.Stat(p)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
