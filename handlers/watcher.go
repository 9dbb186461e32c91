package handlers

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"fluxdash/config"
)

// StartWatcher sets up recursive filesystem watches on the dataset root and
// the REDCap export directory. On any change the affected caches are flagged
// stale so the next request triggers a background rebuild instead of serving
// a 20-minute-old summary.
//
// It returns immediately; all watch processing runs in a background goroutine.
// The returned stop function closes the watcher and terminates the goroutine.
func StartWatcher(cfg *config.Config, caches *Caches) (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watchRecursive(w, cfg.DatasetRoot); err != nil {
		log.Printf("watcher: could not watch %s: %v", cfg.DatasetRoot, err)
	}
	redcapRoot := cfg.RedcapRoot
	if _, err := os.Stat(redcapRoot); err == nil {
		if err := w.Add(redcapRoot); err != nil {
			log.Printf("watcher: could not watch %s: %v", redcapRoot, err)
		}
	}

	go func() {
		defer w.Close()
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				handleEvent(w, caches, redcapRoot, event)

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("watcher: %v", err)
			}
		}
	}()

	return func() { _ = w.Close() }, nil
}

// watchRecursive adds a watch for dir and every subdirectory beneath it.
// If the kernel inotify watch limit is reached, it logs a single actionable
// message and stops — directories beyond that point fall back to the
// safetyTTL for cache invalidation.
func watchRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Log but continue — a single unreadable dir shouldn't abort the walk.
			log.Printf("watcher: skipping %s: %v", path, err)
			return nil
		}
		if !entryIsDir(filepath.Dir(path), d) {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			if errors.Is(err, syscall.ENOSPC) {
				log.Printf(
					"watcher: inotify watch limit reached (stopped at %s).\n"+
						"  Directories beyond this point will not receive instant cache invalidation;\n"+
						"  the %s safety TTL will still correct any stale entries.\n"+
						"  To enable full coverage, raise the kernel limit:\n"+
						"    echo fs.inotify.max_user_watches=524288 | sudo tee -a /etc/sysctl.conf\n"+
						"    sudo sysctl -p",
					path, safetyTTL,
				)
				return filepath.SkipAll
			}
			// Any other error: log and keep walking.
			log.Printf("watcher: could not add watch for %s: %v", path, err)
		}
		return nil
	})
}

// handleEvent processes a single fsnotify event.
func handleEvent(w *fsnotify.Watcher, caches *Caches, redcapRoot string, event fsnotify.Event) {
	// A new directory needs its own watch (and watches for any children
	// created before ours was registered).
	if event.Has(fsnotify.Create) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if err := watchRecursive(w, event.Name); err != nil {
				log.Printf("watcher: could not watch new dir %s: %v", event.Name, err)
			}
		}
	}

	if strings.HasPrefix(event.Name, redcapRoot+string(filepath.Separator)) || event.Name == redcapRoot {
		caches.InvalidateRedcap()
		return
	}

	// Writes to existing files change availability counts too (a partially
	// copied NIfTI becoming whole), so every event kind invalidates.
	caches.InvalidateDataset()
}

// entryIsDir reports whether a directory entry is a directory, correctly
// following symlinks. filepath.WalkDir uses os.Lstat semantics, so
// DirEntry.IsDir() returns false for symlinks that point to directories.
func entryIsDir(parent string, d os.DirEntry) bool {
	if d.Type()&os.ModeSymlink == 0 {
		return d.IsDir()
	}
	fi, err := os.Stat(filepath.Join(parent, d.Name()))
	return err == nil && fi.IsDir()
}
