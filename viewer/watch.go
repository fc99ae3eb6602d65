package main

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchRoots refreshes via refresh whenever a parquet file appears under one
// of roots. Bursts of events within debounce cause a single refresh.
// It blocks until ctx is done.
func watchRoots(ctx context.Context, roots []string, debounce time.Duration, refresh func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, root := range roots {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return err
		}
		if err := addTree(watcher, root); err != nil {
			return err
		}
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if st, err := os.Stat(event.Name); err == nil && st.IsDir() && filepath.Base(event.Name) != "tmp" {
					_ = addTree(watcher, event.Name)
					continue
				}
			}
			if !strings.HasSuffix(event.Name, ".parquet") || strings.Contains(filepath.ToSlash(event.Name), "/tmp/") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := refresh(); err != nil {
				log.Printf("Refresh after file change failed: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}

// addTree watches dir and every subdirectory except tmp/.
func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == "tmp" {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
