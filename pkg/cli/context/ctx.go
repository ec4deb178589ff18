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

// Package context defines papercli context
package context

import (
	"path/filepath"
	"time"

	"github.com/dnote/papercli/pkg/cli/consts"
	"github.com/dnote/papercli/pkg/cli/database"
	"github.com/dnote/papercli/pkg/cli/reconcile"
	"github.com/dnote/papercli/pkg/clock"
)

// Paths contain directory definitions
type Paths struct {
	Home   string
	Config string
	Data   string
	Cache  string
	State  string
}

// PaperCtx is a context holding the information of the current runtime
type PaperCtx struct {
	Paths   Paths
	Version string
	DB      *database.DB
	Clock   clock.Clock

	RemotePath       string
	Strategy         reconcile.Strategy
	AutoSync         bool
	AutoSyncInterval time.Duration
}

// ConfigDir returns the directory holding the config file
func (c PaperCtx) ConfigDir() string {
	return filepath.Join(c.Paths.Config, consts.AppDirName)
}

// DataDir returns the directory holding the database, the pdfs and the
// sync state
func (c PaperCtx) DataDir() string {
	return filepath.Join(c.Paths.Data, consts.AppDirName)
}

// DBPath returns the path of the library database
func (c PaperCtx) DBPath() string {
	return filepath.Join(c.DataDir(), consts.DBFileName)
}

// PDFDir returns the managed pdf directory
func (c PaperCtx) PDFDir() string {
	return filepath.Join(c.DataDir(), consts.PDFDirName)
}

// CursorPath returns the path of the sync cursor
func (c PaperCtx) CursorPath() string {
	return filepath.Join(c.DataDir(), consts.CursorFilename)
}

// JournalDir returns the directory of in-flight apply journals
func (c PaperCtx) JournalDir() string {
	return filepath.Join(c.DataDir(), consts.JournalDirName)
}

// LockPath returns the path of the lock file shared by sync and doctor
func (c PaperCtx) LockPath() string {
	return filepath.Join(c.DataDir(), consts.LockFilename)
}

// LogPath returns the log file of interactive sync and doctor runs
func (c PaperCtx) LogPath() string {
	return filepath.Join(c.Paths.State, consts.AppDirName, consts.LogFilename)
}

// WatchLogPath returns the log file of the auto-sync daemon
func (c PaperCtx) WatchLogPath() string {
	return filepath.Join(c.Paths.State, consts.AppDirName, consts.WatchLogFilename)
}
