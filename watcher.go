/*
	Copyright Confluent Inc.

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

package restutils

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
)

// WatchSetupError indicates that a filesystem watch could not be
// established. The server continues without hot reload for that listener.
type WatchSetupError struct {
	Path  string
	Cause error
}

func (e *WatchSetupError) Error() string {
	return fmt.Sprintf("could not watch credential path [%s]: %v", e.Path, e.Cause)
}

func (e *WatchSetupError) Unwrap() error {
	return e.Cause
}

// reloadCoalesceWindow bounds how long the watcher drains follow-up
// filesystem events belonging to the same logical change before invoking
// the reload callback.
const reloadCoalesceWindow = 100 * time.Millisecond

// CredentialWatcher monitors a credential file for rotation and invokes a
// reload callback once per distinguishable change. The parent directory of
// the path is watched, not the file itself, so atomic symlink-swap and
// delete-then-create deployments are observed.
//
// The event loop runs on a dedicated goroutine per watched path, so reload
// callbacks for a given path are strictly serialized. A callback error is
// logged and recorded as the last reload failure but does not stop the
// loop; only closure of the underlying watch does.
type CredentialWatcher struct {
	path     string
	callback func() error
	watcher  *fsnotify.Watcher

	mu          sync.Mutex
	lastFailure error

	done     chan struct{}
	stopOnce sync.Once
}

// WatchCredential establishes a watch on path and starts the event loop.
// The callback runs on the watcher's goroutine.
func WatchCredential(path string, callback func() error) (*CredentialWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &WatchSetupError{Path: path, Cause: err}
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &WatchSetupError{Path: path, Cause: err}
	}

	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		_ = fsWatcher.Close()
		return nil, &WatchSetupError{Path: path, Cause: err}
	}

	watcher := &CredentialWatcher{
		path:     abs,
		callback: callback,
		watcher:  fsWatcher,
		done:     make(chan struct{}),
	}

	go watcher.run()

	pfxlog.Logger().Infof("watching credential path [%s] for changes", abs)

	return watcher, nil
}

// Path returns the canonical watched path.
func (w *CredentialWatcher) Path() string {
	return w.path
}

// LastFailure returns the error of the most recent failed reload, or nil
// after a successful reload. Intended for health check collaborators.
func (w *CredentialWatcher) LastFailure() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastFailure
}

// Stop ends the watch loop and releases the underlying filesystem watch.
// Safe to call more than once.
func (w *CredentialWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}

func (w *CredentialWatcher) run() {
	logger := pfxlog.Logger()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				logger.Warnf("watch on [%s] closed, no further credential reloads will occur", w.path)
				return
			}

			if !w.matches(event) {
				continue
			}

			w.drain()
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				logger.Warnf("watch on [%s] closed, no further credential reloads will occur", w.path)
				return
			}
			// transient I/O errors are tolerated, the watch stays armed
			logger.Warnf("transient error watching [%s]: %v", w.path, err)

		case <-w.done:
			return
		}
	}
}

// matches reports whether an event resolves to the watched file. Create and
// write events count; removals do not, since rotation always ends with the
// new file appearing.
func (w *CredentialWatcher) matches(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return false
	}

	name := filepath.Clean(event.Name)
	if name == w.path {
		return true
	}

	// a symlink swap reports the link target, compare canonical forms
	if resolved, err := filepath.EvalSymlinks(name); err == nil {
		if watched, err := filepath.EvalSymlinks(w.path); err == nil {
			return resolved == watched
		}
	}

	return false
}

// drain consumes the follow-up events a single rotation typically produces
// (create then one or more writes) so the callback fires once per change.
func (w *CredentialWatcher) drain() {
	timer := time.NewTimer(reloadCoalesceWindow)
	defer timer.Stop()

	for {
		select {
		case _, ok := <-w.watcher.Events:
			if !ok {
				return
			}
		case <-timer.C:
			return
		case <-w.done:
			return
		}
	}
}

func (w *CredentialWatcher) reload() {
	logger := pfxlog.Logger()

	err := w.invoke()

	w.mu.Lock()
	w.lastFailure = err
	w.mu.Unlock()

	if err != nil {
		logger.Errorf("credential reload for [%s] failed, previous material remains active: %v", w.path, err)
	} else {
		logger.Infof("credential reload for [%s] succeeded", w.path)
	}
}

func (w *CredentialWatcher) invoke() (err error) {
	defer func() {
		if panicVal := recover(); panicVal != nil {
			err = errors.Errorf("reload callback panicked: %v", panicVal)
		}
	}()

	return w.callback()
}
