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

// Package infra provides operations and definitions for the
// local infrastructure for papercli
package infra

import (
	"github.com/dnote/papercli/pkg/cli/config"
	"github.com/dnote/papercli/pkg/cli/consts"
	"github.com/dnote/papercli/pkg/cli/context"
	"github.com/dnote/papercli/pkg/cli/database"
	"github.com/dnote/papercli/pkg/cli/lock"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/dnote/papercli/pkg/cli/mirror"
	"github.com/dnote/papercli/pkg/cli/reconcile"
	"github.com/dnote/papercli/pkg/clock"
	"github.com/dnote/papercli/pkg/dirs"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// RunEFunc is a function type of papercli commands
type RunEFunc func(*cobra.Command, []string) error

// newBaseCtx creates a minimal context with paths and database connection.
// This base context is used for file and database initialization before
// being enriched with config values by setupCtx.
func newBaseCtx(versionTag, dataDir string) (context.PaperCtx, error) {
	paths := context.Paths{
		Home:   dirs.Home,
		Config: dirs.ConfigHome,
		Data:   dirs.DataHome,
		Cache:  dirs.CacheHome,
		State:  dirs.StateHome,
	}
	if dataDir != "" {
		paths.Data = dataDir
	}

	if err := context.InitDirs(paths); err != nil {
		return context.PaperCtx{}, errors.Wrap(err, "creating the papercli dirs")
	}

	ctx := context.PaperCtx{
		Paths:   paths,
		Version: versionTag,
		Clock:   clock.New(),
	}

	db, err := database.Open(ctx.DBPath())
	if err != nil {
		return context.PaperCtx{}, errors.Wrap(err, "connecting to db")
	}
	ctx.DB = db

	return ctx, nil
}

// Init initializes the papercli environment and returns a new context.
// dataDir overrides the XDG data directory when it is not empty.
func Init(versionTag, dataDir string) (*context.PaperCtx, error) {
	ctx, err := newBaseCtx(versionTag, dataDir)
	if err != nil {
		return nil, errors.Wrap(err, "initializing a context")
	}

	n, err := database.Migrate(ctx.DB)
	if err != nil {
		ctx.DB.Close()
		return nil, errors.Wrap(err, "running migration")
	}
	if n > 0 {
		log.Debug("applied %d migrations\n", n)
	}

	if err := InitSystem(ctx); err != nil {
		ctx.DB.Close()
		return nil, errors.Wrap(err, "initializing system data")
	}

	ctx, err = setupCtx(ctx)
	if err != nil {
		ctx.DB.Close()
		return nil, errors.Wrap(err, "setting up the context")
	}

	log.Debug("context: %+v\n", ctx)

	return &ctx, nil
}

// setupCtx enriches the base context with the resolved configuration
func setupCtx(ctx context.PaperCtx) (context.PaperCtx, error) {
	cf, err := config.Load(ctx)
	if err != nil {
		return ctx, errors.Wrap(err, "loading config")
	}

	ctx.RemotePath = cf.RemotePath
	ctx.Strategy = cf.Strategy
	ctx.AutoSync = cf.AutoSync
	ctx.AutoSyncInterval = cf.Interval()

	return ctx, nil
}

func initSystemKV(db *database.DB, key string, val string) error {
	var count int
	if err := db.QueryRow("SELECT count(*) FROM system WHERE key = ?", key).Scan(&count); err != nil {
		return errors.Wrapf(err, "counting %s", key)
	}

	if count > 0 {
		return nil
	}

	if _, err := db.Exec("INSERT INTO system (key, value) VALUES (?, ?)", key, val); err != nil {
		return errors.Wrapf(err, "inserting %s %s", key, val)
	}

	return nil
}

// InitSystem inserts system data if missing
func InitSystem(ctx context.PaperCtx) error {
	log.Debug("initializing the system\n")

	tx, err := ctx.DB.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	for _, key := range []string{consts.SystemLastSyncAt, consts.SystemLastDoctorAt} {
		if err := initSystemKV(tx, key, "0"); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "initializing system config for %s", key)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}

	return nil
}

// NewLocker returns the lock shared by sync and doctor cycles
func NewLocker(ctx context.PaperCtx) *lock.Locker {
	return lock.New(ctx.LockPath())
}

// NewEngine wires a sync engine between the local library and the mirror
// at remotePath
func NewEngine(ctx context.PaperCtx, remotePath string) *reconcile.Engine {
	return &reconcile.Engine{
		DB:         ctx.DB,
		Local:      reconcile.NewLocal(ctx.DB, ctx.PDFDir(), ctx.Clock),
		Remote:     mirror.New(remotePath, ctx.Clock),
		Journal:    reconcile.NewJournal(ctx.JournalDir(), ctx.DB, ctx.Clock),
		Locker:     NewLocker(ctx),
		CursorPath: ctx.CursorPath(),
		Clock:      ctx.Clock,
	}
}
