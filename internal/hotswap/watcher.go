package hotswap

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"annopipe/internal/logging"
)

// CandidateHandler is invoked for each new file drop under a watched
// candidate directory.
type CandidateHandler func(path string)

// WatchCandidates watches dir for new component-version files (source or
// checksum manifests), invoking handler on each Create event. This
// replaces the reference's manual file-cache dirty-flag polling with a
// push-based watch. Runs until ctx is cancelled.
func WatchCandidates(ctx context.Context, dir string, handler CandidateHandler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	logging.HotSwap("watching candidate directory: %s", dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				logging.HotSwapDebug("candidate drop detected: %s", filepath.Base(event.Name))
				handler(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.HotSwapWarn("candidate watcher error: %v", err)
		}
	}
}
