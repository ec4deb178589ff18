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

package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dnote/papercli/pkg/assert"
	"github.com/dnote/papercli/pkg/cli/consts"
	"github.com/dnote/papercli/pkg/cli/context"
	"github.com/dnote/papercli/pkg/cli/database"
	"github.com/dnote/papercli/pkg/cli/reconcile"
	"github.com/dnote/papercli/pkg/dirs"
	"github.com/pkg/errors"
)

func TestInitSystemKV(t *testing.T) {
	// Setup
	db := database.InitTestMemoryDB(t)

	var originalCount int
	database.MustScan(t, "counting system configs", db.QueryRow("SELECT count(*) FROM system"), &originalCount)

	// Execute
	tx, err := db.Begin()
	if err != nil {
		t.Fatal(errors.Wrap(err, "beginning a transaction"))
	}

	if err := initSystemKV(tx, "testKey", "testVal"); err != nil {
		tx.Rollback()
		t.Fatal(errors.Wrap(err, "executing"))
	}

	tx.Commit()

	// Test
	var count int
	database.MustScan(t, "counting system configs", db.QueryRow("SELECT count(*) FROM system"), &count)
	assert.Equal(t, count, originalCount+1, "system count mismatch")

	var val string
	database.MustScan(t, "getting system value",
		db.QueryRow("SELECT value FROM system WHERE key = ?", "testKey"), &val)
	assert.Equal(t, val, "testVal", "system value mismatch")
}

func TestInitSystemKV_existing(t *testing.T) {
	// Setup
	db := database.InitTestMemoryDB(t)

	database.MustExec(t, "inserting a system config", db, "INSERT INTO system (key, value) VALUES (?, ?)", "testKey", "testVal")

	var originalCount int
	database.MustScan(t, "counting system configs", db.QueryRow("SELECT count(*) FROM system"), &originalCount)

	// Execute
	tx, err := db.Begin()
	if err != nil {
		t.Fatal(errors.Wrap(err, "beginning a transaction"))
	}

	if err := initSystemKV(tx, "testKey", "newTestVal"); err != nil {
		tx.Rollback()
		t.Fatal(errors.Wrap(err, "executing"))
	}

	tx.Commit()

	// Test
	var count int
	database.MustScan(t, "counting system configs", db.QueryRow("SELECT count(*) FROM system"), &count)
	assert.Equal(t, count, originalCount, "system count mismatch")

	var val string
	database.MustScan(t, "getting system value",
		db.QueryRow("SELECT value FROM system WHERE key = ?", "testKey"), &val)
	assert.Equal(t, val, "testVal", "system value should not have been updated")
}

func setXDG(t *testing.T, dir string) {
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	for _, key := range []string{"PAPERCLI_REMOTE_PATH", "PAPERCLI_AUTO_SYNC", "PAPERCLI_SYNC_STRATEGY", "PAPERCLI_AUTO_SYNC_INTERVAL"} {
		t.Setenv(key, "")
	}
	dirs.Reload()
	t.Cleanup(dirs.Reload)
}

func TestInit(t *testing.T) {
	tmpDir := t.TempDir()
	setXDG(t, tmpDir)
	t.Setenv("PAPERCLI_REMOTE_PATH", filepath.Join(tmpDir, "Dropbox"))

	ctx, err := Init("test-version", "")
	if err != nil {
		t.Fatal(errors.Wrap(err, "initializing"))
	}
	defer ctx.DB.Close()

	assert.Equal(t, ctx.DBPath(), filepath.Join(tmpDir, "data", consts.AppDirName, consts.DBFileName), "db path mismatch")
	_, err = os.Stat(ctx.DBPath())
	assert.Equal(t, err, nil, "database should exist")
	_, err = os.Stat(ctx.PDFDir())
	assert.Equal(t, err, nil, "pdf dir should exist")

	var lastSync, lastDoctor string
	database.MustScan(t, "scanning last sync at",
		ctx.DB.QueryRow("SELECT value FROM system WHERE key = ?", consts.SystemLastSyncAt), &lastSync)
	database.MustScan(t, "scanning last doctor at",
		ctx.DB.QueryRow("SELECT value FROM system WHERE key = ?", consts.SystemLastDoctorAt), &lastDoctor)
	assert.Equal(t, lastSync, "0", "last sync mismatch")
	assert.Equal(t, lastDoctor, "0", "last doctor mismatch")

	assert.Equal(t, ctx.RemotePath, filepath.Join(tmpDir, "Dropbox"), "remote path mismatch")
	assert.Equal(t, ctx.Strategy, reconcile.PreferLocal, "strategy mismatch")
	assert.Equal(t, ctx.Version, "test-version", "version mismatch")

	// a second init keeps the system data
	database.MustExec(t, "setting last sync", ctx.DB, "UPDATE system SET value = ? WHERE key = ?", "1700000000", consts.SystemLastSyncAt)
	ctx2, err := Init("test-version", "")
	if err != nil {
		t.Fatal(errors.Wrap(err, "initializing again"))
	}
	defer ctx2.DB.Close()

	database.MustScan(t, "scanning last sync at",
		ctx2.DB.QueryRow("SELECT value FROM system WHERE key = ?", consts.SystemLastSyncAt), &lastSync)
	assert.Equal(t, lastSync, "1700000000", "last sync should be kept")
}

func TestInit_DataDir(t *testing.T) {
	tmpDir := t.TempDir()
	setXDG(t, tmpDir)
	dataDir := filepath.Join(tmpDir, "custom")

	ctx, err := Init("test-version", dataDir)
	if err != nil {
		t.Fatal(errors.Wrap(err, "initializing"))
	}
	defer ctx.DB.Close()

	assert.Equal(t, ctx.DBPath(), filepath.Join(dataDir, consts.AppDirName, consts.DBFileName), "db path mismatch")
}

func TestInit_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	setXDG(t, tmpDir)
	t.Setenv("PAPERCLI_SYNC_STRATEGY", "coin-flip")

	_, err := Init("test-version", "")
	assert.ErrorKind(t, err, func(err error) bool { return errors.Is(err, reconcile.ErrInvalidStrategy) }, "initializing")
}

func TestNewEngine(t *testing.T) {
	ctx := context.InitTestCtx(t)

	e := NewEngine(ctx, "/mnt/papers")
	assert.Equal(t, e.CursorPath, ctx.CursorPath(), "cursor path mismatch")
	assert.Equal(t, e.Locker.Path(), ctx.LockPath(), "lock path mismatch")
	assert.Equal(t, e.Remote.Side(), reconcile.SideRemote, "remote side mismatch")
	assert.Equal(t, e.Local.Side(), reconcile.SideLocal, "local side mismatch")
}
