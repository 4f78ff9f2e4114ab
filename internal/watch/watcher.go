// Package watch turns raw file-system notifications into image move
// events. A rename of an image followed shortly by a create elsewhere
// in the vault is paired into a single move; unpaired renames expire as
// plain deletions.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/storage"
)

// MoveHandler is called when an image move has been paired.
type MoveHandler func(oldPath, newPath string)

// DeleteHandler is called when an image left the vault without a
// paired create.
type DeleteHandler func(path string)

// pendingRename is an observed rename still waiting for its create.
type pendingRename struct {
	path string
	hash string
	at   time.Time
}

// Watch starts an fsnotify watcher on the vault root and processes
// image file events until ctx is cancelled. Renames are paired with
// creates by basename or, when the name changed too, by MD5 content
// identity recorded before the file disappeared.
//
// New directories created at runtime are automatically added to the
// watch list.
func Watch(ctx context.Context, store storage.Provider, vaultRoot string, debounce time.Duration, logger *slog.Logger, onMove MoveHandler, onDelete DeleteHandler) error {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	// Content identity for every image currently in the vault. Hashes
	// must be captured while files still exist; a rename only reports
	// the old path.
	hashes := make(map[string]string)
	if metas, listErr := store.ListImages(""); listErr == nil {
		for _, m := range metas {
			if data, readErr := store.Read(m.Path); readErr == nil {
				hashes[m.Path] = checksum.MD5(data)
			}
		}
	} else {
		logger.Warn("watcher: initial image scan failed", slog.String("error", listErr.Error()))
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot), slog.Int("images", len(hashes)))

	var pending []pendingRename

	// expireTimer fires after the debounce window to flush renames that
	// never found their create.
	var expireTimer *time.Timer
	var expireCh <-chan time.Time

	scheduleExpire := func() {
		if expireTimer == nil {
			expireTimer = time.NewTimer(debounce)
			expireCh = expireTimer.C
		} else {
			expireTimer.Reset(debounce)
		}
	}

	expirePending := func(now time.Time) {
		kept := pending[:0]
		for _, p := range pending {
			if now.Sub(p.at) < debounce {
				kept = append(kept, p)
				continue
			}
			logger.Debug("watcher: rename expired as delete", slog.String("path", p.path))
			if onDelete != nil {
				onDelete(p.path)
			}
		}
		pending = kept
		if len(pending) > 0 {
			scheduleExpire()
		}
	}

	// pairCreate matches a newly created image against pending renames.
	pairCreate := func(rel string) {
		data, readErr := store.Read(rel)
		if readErr != nil {
			logger.Warn("watcher: read created image failed", slog.String("path", rel), slog.String("error", readErr.Error()))
			return
		}
		hash := checksum.MD5(data)
		hashes[rel] = hash

		name := filepath.Base(rel)
		for i, p := range pending {
			if filepath.Base(p.path) != name && (p.hash == "" || p.hash != hash) {
				continue
			}
			pending = append(pending[:i], pending[i+1:]...)
			logger.Debug("watcher: move paired",
				slog.String("from", p.path), slog.String("to", rel))
			if onMove != nil {
				onMove(p.path, rel)
			}
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			if expireTimer != nil {
				expireTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case now := <-expireCh:
			expirePending(now)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// --- Handle new directories: add to watcher ---
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// Images moved in along with the directory arrive
					// without their own create events.
					pairNewDir(vaultRoot, absPath, pairCreate)
					continue
				}
			}

			// Only image files from here on.
			if !storage.IsImagePath(absPath) {
				continue
			}

			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&fsnotify.Create != 0:
				pairCreate(rel)

			case ev.Op&fsnotify.Write != 0:
				// Content changed in place: refresh identity.
				if data, readErr := store.Read(rel); readErr == nil {
					hashes[rel] = checksum.MD5(data)
				}

			case ev.Op&fsnotify.Remove != 0:
				delete(hashes, rel)
				logger.Debug("watcher: image removed", slog.String("path", rel))
				if onDelete != nil {
					onDelete(rel)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only. The new
				// path arrives as a separate Create event (if it stays
				// within a watched dir); hold the old path until then.
				pending = append(pending, pendingRename{path: rel, hash: hashes[rel], at: time.Now()})
				delete(hashes, rel)
				scheduleExpire()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// pairNewDir feeds any images found in a newly created directory
// through the create pairing.
func pairNewDir(vaultRoot, dirPath string, pairCreate func(rel string)) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !storage.IsImagePath(path) {
			return nil
		}
		rel, relErr := filepath.Rel(vaultRoot, path)
		if relErr != nil {
			return nil
		}
		pairCreate(filepath.ToSlash(rel))
		return nil
	})
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
