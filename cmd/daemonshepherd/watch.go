package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
)

// watchSpecFile watches the specfile's containing directory (not the file
// itself, since editors commonly replace a file via rename-into-place,
// which drops the original inode from a direct watch) and sends the
// running process a SIGHUP on any write or create event touching the
// specfile's basename, reusing the exact reload path SIGHUP already
// drives in Controller.Run (--watch, spec §4 supplemented features).
func watchSpecFile(path string, log *slog.Logger) (func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch specfile: %w", err)
	}
	dir := filepath.Dir(abs)
	base := filepath.Base(abs)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch specfile: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch specfile: %w", err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				log.Info("specfile changed on disk, triggering reload", "path", abs)
				if err := syscall.Kill(os.Getpid(), syscall.SIGHUP); err != nil {
					log.Error("failed to signal self for watch-triggered reload", "error", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error("specfile watch error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = w.Close()
	}, nil
}
