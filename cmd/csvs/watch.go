package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"csvs/internal/config"
	"csvs/internal/datasource"
)

const defaultDebounce = 200 * time.Millisecond

// watchPaths returns the local files a watch run depends on.
func watchPaths(cfg config.Run, data []string) []string {
	var out []string
	if cfg.Schema.Path != "" {
		out = append(out, cfg.Schema.Path)
	}
	for _, d := range data {
		if d != "" && d != "-" && !datasource.IsURL(d) {
			out = append(out, d)
		}
	}
	return out
}

// watchAndValidate calls run once, then again after every burst of changes
// to paths, until ctx is done. Parent directories are watched so that
// editors that save by rename are still seen.
func watchAndValidate(ctx context.Context, paths []string, debounce time.Duration, run func()) error {
	if len(paths) == 0 {
		return fmt.Errorf("watch: no local files to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	want := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		want[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}
	log.Printf("watch: files=%d dirs=%d debounce=%s", len(want), len(dirs), debounce)

	run()

	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !want[filepath.Clean(ev.Name)] || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			log.Printf("watch: change detected; re-running")
			run()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch: %v", err)
		}
	}
}
