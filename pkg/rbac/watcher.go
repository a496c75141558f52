package rbac

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/platinummonkey/foundry/pkg/observability"
)

// PolicyWatcher reloads a policy file into a PolicyStore whenever it changes.
// A file that fails to parse is logged and the previous policy stays active.
type PolicyWatcher struct {
	path     string
	store    *PolicyStore
	logger   *observability.Logger
	watcher  *fsnotify.Watcher
	onReload func(*Policy)
}

// NewPolicyWatcher loads path into store and prepares a watcher for it
func NewPolicyWatcher(path string, store *PolicyStore, logger *observability.Logger) (*PolicyWatcher, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	policy, err := LoadPolicyFile(path)
	if err != nil {
		return nil, err
	}
	store.Replace(policy)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory: editors and config management replace files by rename.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch policy directory: %w", err)
	}

	return &PolicyWatcher{
		path:    filepath.Clean(path),
		store:   store,
		logger:  logger.WithField("policy_file", path),
		watcher: watcher,
	}, nil
}

// OnReload registers a callback invoked after each successful reload
func (w *PolicyWatcher) OnReload(fn func(*Policy)) {
	w.onReload = fn
}

// Run processes file events until ctx is canceled
func (w *PolicyWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("policy watcher error")
		}
	}
}

func (w *PolicyWatcher) reload() {
	policy, err := LoadPolicyFile(w.path)
	if err != nil {
		w.logger.WithError(err).Error("Failed to reload RBAC policy, keeping previous policy")
		return
	}
	w.store.Replace(policy)
	w.logger.Info("RBAC policy reloaded")
	if w.onReload != nil {
		w.onReload(policy)
	}
}
