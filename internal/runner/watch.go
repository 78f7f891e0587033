package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/projectdiscovery/gologger"
	fileutil "github.com/projectdiscovery/utils/file"
)

// reloadDelay lets a burst of events from a single save settle before the
// device file is read again.
var reloadDelay = 100 * time.Millisecond

// WatchConfig reloads the device file at path after every change and hands
// the result to onChange, until ctx is done. A file that does not load is
// logged and the devices stay as they are.
//
// The parent directory is watched rather than the file, so saves that
// replace the file with a new inode keep being seen.
func WatchConfig(ctx context.Context, path string, onChange func(*Config)) error {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("could not watch %s: %w", dir, err)
	}
	gologger.Verbose().Msgf("watching device file %s for changes", path)

	var (
		settle *time.Timer
		reload <-chan time.Time
	)
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !touchesFile(event, path) {
				continue
			}
			if settle == nil {
				settle = time.NewTimer(reloadDelay)
			} else {
				settle.Reset(reloadDelay)
			}
			reload = settle.C

		case <-reload:
			reload = nil
			cfg, err := LoadConfig(path)
			if err != nil {
				gologger.Error().Msgf("device file reload failed, keeping previous devices: %v", err)
				continue
			}
			gologger.Info().Msgf("device file %s reloaded", path)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			gologger.Error().Msgf("device file watcher error: %v", err)
		}
	}
}

// touchesFile reports whether event may have changed the content at path.
// A file renamed over path shows up as create; a rename of path itself only
// counts when something is left in its place.
func touchesFile(event fsnotify.Event, path string) bool {
	if filepath.Clean(event.Name) != path {
		return false
	}
	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		return true
	case event.Has(fsnotify.Rename):
		return fileutil.FileExists(path)
	}
	return false
}
