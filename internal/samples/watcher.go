package samples

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/checksum"
)

// EventCallback is called after a watcher-driven corpus change.
// kind is one of "updated", "removed", "invalid".
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the corpus root and processes file
// change events until ctx is cancelled. Changed samples are re-verified;
// samples that fail verification are reported with kind "invalid".
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a debounced reconciliation pass that
// compares the known checksums against the files currently on disk.
func Watch(ctx context.Context, f *FS, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, f.root); err != nil {
		return err
	}

	// known maps relative path to last seen checksum; it is owned by this
	// goroutine only.
	known := make(map[string]string)
	if metas, listErr := f.List(); listErr == nil {
		for _, m := range metas {
			known[m.Path] = m.Checksum
		}
	}

	logger.Info("watcher: started", slog.String("root", f.root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(f, known, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					scheduleReconcile()
					continue
				}
			}

			if !strings.HasSuffix(absPath, ".txt") {
				continue
			}

			rel, relErr := filepath.Rel(f.root, absPath)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if verr := f.Verify(rel); verr != nil {
					logger.Warn("watcher: sample failed verification",
						slog.String("path", rel), slog.String("error", verr.Error()))
					delete(known, rel)
					if cb != nil {
						cb("invalid", rel)
					}
					continue
				}
				data, readErr := f.Read(rel)
				if readErr != nil {
					continue
				}
				cs := checksum.Sum(data)
				if known[rel] == cs {
					continue
				}
				known[rel] = cs
				logger.Debug("watcher: verified", slog.String("path", rel))
				if cb != nil {
					cb("updated", rel)
				}

			case ev.Op&fsnotify.Remove != 0:
				delete(known, rel)
				logger.Debug("watcher: removed", slog.String("path", rel))
				if cb != nil {
					cb("removed", rel)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only. The new path
				// arrives as a separate Create event when it stays inside a
				// watched dir, so drop the old entry now and reconcile
				// shortly after.
				delete(known, rel)
				if cb != nil {
					cb("removed", rel)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile brings the known-checksum map back in line with the corpus on
// disk, reporting removals and new or changed samples.
func reconcile(f *FS, known map[string]string, logger *slog.Logger, cb EventCallback) {
	metas, err := f.List()
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for p := range known {
		if _, ok := disk[p]; !ok {
			delete(known, p)
			logger.Debug("reconcile: removed stale", slog.String("path", p))
			if cb != nil {
				cb("removed", p)
			}
		}
	}

	for p, cs := range disk {
		if known[p] == cs {
			continue
		}
		if verr := f.Verify(p); verr != nil {
			logger.Warn("reconcile: sample failed verification",
				slog.String("path", p), slog.String("error", verr.Error()))
			if cb != nil {
				cb("invalid", p)
			}
			continue
		}
		known[p] = cs
		logger.Debug("reconcile: verified", slog.String("path", p))
		if cb != nil {
			cb("updated", p)
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
