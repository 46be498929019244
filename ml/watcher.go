package ml

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ArtifactWatcher reports changes to local artifact files. Loaded artifacts
// are never replaced; a change only tells operators a restart is pending.
type ArtifactWatcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	logger   *zap.Logger
	onChange func(path string)
}

// NewArtifactWatcher watches the parent directory of every local location so
// that replace-by-rename deployments are seen. Remote locations are skipped.
func NewArtifactWatcher(locations []string, logger *zap.Logger, onChange func(path string)) (*ArtifactWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &ArtifactWatcher{
		watcher:  fsWatcher,
		files:    make(map[string]bool),
		logger:   logger,
		onChange: onChange,
	}

	dirs := make(map[string]bool)
	for _, location := range locations {
		if location == "" || IsRemote(location) {
			continue
		}
		abs, err := filepath.Abs(location)
		if err != nil {
			fsWatcher.Close()
			return nil, err
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsWatcher.Add(dir); err != nil {
			fsWatcher.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		logger.Debug("Watching artifact directory", zap.String("dir", dir))
	}
	return w, nil
}

// Run blocks until ctx is done.
func (w *ArtifactWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !w.files[abs] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Warn("Artifact changed on disk, restart to load it",
				zap.String("file", abs),
				zap.String("operation", event.Op.String()),
			)
			if w.onChange != nil {
				w.onChange(abs)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Artifact watcher error", zap.Error(err))

		case <-ctx.Done():
			return nil
		}
	}
}
