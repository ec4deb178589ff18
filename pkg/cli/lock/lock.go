/* Copyright 2025 Dnote Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package lock provides the exclusive lock held by sync and doctor cycles
package lock

import (
	"path/filepath"
	"sync"

	"github.com/dnote/papercli/pkg/cli/utils"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ErrBusy is returned when another cycle holds the lock
var ErrBusy = errors.New("another sync or doctor cycle is in progress")

// Locker serializes cycles within the process with a mutex and across
// processes with an advisory file lock
type Locker struct {
	mu   sync.Mutex
	file *flock.Flock
}

// New returns a locker backed by the lock file at the given path
func New(path string) *Locker {
	return &Locker{file: flock.New(path)}
}

// Path returns the path of the lock file
func (l *Locker) Path() string {
	return l.file.Path()
}

// TryLock acquires the lock without waiting. It returns ErrBusy if it is
// held, and otherwise a function releasing it.
func (l *Locker) TryLock() (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrBusy
	}

	if err := utils.EnsureDir(filepath.Dir(l.file.Path())); err != nil {
		l.mu.Unlock()
		return nil, errors.Wrap(err, "creating the lock directory")
	}

	locked, err := l.file.TryLock()
	if err != nil {
		l.mu.Unlock()
		return nil, errors.Wrapf(err, "locking %s", l.file.Path())
	}
	if !locked {
		l.mu.Unlock()
		return nil, ErrBusy
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.file.Unlock()
			l.mu.Unlock()
		})
	}

	return release, nil
}
