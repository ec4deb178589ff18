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

package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dnote/papercli/pkg/assert"
	"github.com/dnote/papercli/pkg/cli/consts"
	"github.com/dnote/papercli/pkg/cli/database"
	"github.com/dnote/papercli/pkg/cli/testutils"
	"github.com/dnote/papercli/pkg/cli/utils"
	"github.com/pkg/errors"
)

var binaryName = "test-papercli"

// setupTestEnv creates a unique test directory for parallel test execution
func setupTestEnv(t *testing.T) (string, testutils.RunCmdOptions) {
	testDir := t.TempDir()
	opts := testutils.RunCmdOptions{
		Env: []string{
			fmt.Sprintf("HOME=%s", testDir),
			fmt.Sprintf("XDG_CONFIG_HOME=%s", testDir),
			fmt.Sprintf("XDG_DATA_HOME=%s", testDir),
			fmt.Sprintf("XDG_CACHE_HOME=%s", testDir),
			fmt.Sprintf("XDG_STATE_HOME=%s", testDir),
		},
	}
	return testDir, opts
}

func TestMain(m *testing.M) {
	if err := exec.Command("go", "build", "-o", binaryName).Run(); err != nil {
		log.Print(errors.Wrap(err, "building a binary").Error())
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func appDir(testDir string) string {
	return filepath.Join(testDir, consts.AppDirName)
}

// insertPaper adds a paper to the library under testDir while no command runs
func insertPaper(t *testing.T, dbPath string, p database.Paper) {
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatal(errors.Wrap(err, "opening database"))
	}
	defer db.Close()

	database.MustInsertPaper(t, db, p)
}

func TestInit(t *testing.T) {
	testDir, opts := setupTestEnv(t)

	// Execute
	// run an arbitrary command due to https://github.com/spf13/cobra/issues/1056
	testutils.RunCmd(t, opts, binaryName, "version")

	// Test
	for _, path := range []string{
		filepath.Join(appDir(testDir), consts.DBFileName),
		filepath.Join(appDir(testDir), consts.PDFDirName),
	} {
		ok, err := utils.FileExists(path)
		if err != nil {
			t.Fatal(errors.Wrapf(err, "checking if %s exists", path))
		}
		if !ok {
			t.Errorf("%s was not initialized", path)
		}
	}

	db := testutils.MustOpenDatabase(t, filepath.Join(appDir(testDir), consts.DBFileName))

	var papersTableCount, systemTableCount int
	database.MustScan(t, "counting papers",
		db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type = ? AND name = ?", "table", "papers"), &papersTableCount)
	database.MustScan(t, "counting system",
		db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type = ? AND name = ?", "table", "system"), &systemTableCount)

	assert.Equal(t, papersTableCount, 1, "papers table count mismatch")
	assert.Equal(t, systemTableCount, 1, "system table count mismatch")

	var lastSyncAt, lastDoctorAt string
	database.MustScan(t, "scanning last sync at",
		db.QueryRow("SELECT value FROM system WHERE key = ?", consts.SystemLastSyncAt), &lastSyncAt)
	database.MustScan(t, "scanning last doctor at",
		db.QueryRow("SELECT value FROM system WHERE key = ?", consts.SystemLastDoctorAt), &lastDoctorAt)

	assert.Equal(t, lastSyncAt, "0", "last sync at mismatch")
	assert.Equal(t, lastDoctorAt, "0", "last doctor at mismatch")
}

func TestSync(t *testing.T) {
	testDir, opts := setupTestEnv(t)
	remote := t.TempDir()
	dbPath := filepath.Join(appDir(testDir), consts.DBFileName)

	testutils.RunCmd(t, opts, binaryName, "version")
	insertPaper(t, dbPath, database.Paper{
		Title:        "Attention Is All You Need",
		Year:         2017,
		DOI:          "10.48550/arXiv.1706.03762",
		Authors:      []string{"Ashish Vaswani", "Noam Shazeer"},
		Collections:  []string{"transformers"},
		AddedDate:    1500000000,
		ModifiedDate: 1500000000,
	})

	// Execute
	out := testutils.RunCmd(t, opts, binaryName, "sync", "--remote", remote)

	// Test
	assert.Equal(t, strings.Contains(out, "1 paper"), true, "summary should count the paper")

	b, err := os.ReadFile(filepath.Join(remote, consts.MirrorExportFilename))
	if err != nil {
		t.Fatal(errors.Wrap(err, "reading the export"))
	}
	assert.Equal(t, strings.Contains(string(b), "Attention Is All You Need"), true, "export should hold the paper")

	ok, err := utils.FileExists(filepath.Join(appDir(testDir), consts.CursorFilename))
	if err != nil {
		t.Fatal(errors.Wrap(err, "checking the cursor"))
	}
	assert.Equal(t, ok, true, "cursor should be saved")

	db := testutils.MustOpenDatabase(t, dbPath)
	var lastSyncAt int64
	database.MustScan(t, "scanning last sync at",
		db.QueryRow("SELECT value FROM system WHERE key = ?", consts.SystemLastSyncAt), &lastSyncAt)
	assert.NotEqual(t, lastSyncAt, int64(0), "last sync at should be set")

	logFile, err := os.ReadFile(filepath.Join(appDir(testDir), consts.LogFilename))
	if err != nil {
		t.Fatal(errors.Wrap(err, "reading the log file"))
	}
	assert.Equal(t, strings.Contains(string(logFile), `"cycle":`), true, "cycle entries should go to the log file")

	t.Run("second sync", func(t *testing.T) {
		cmd, stderr, stdout, err := testutils.NewCmd(opts, binaryName, "sync", "--remote", remote)
		if err != nil {
			t.Fatal(errors.Wrap(err, "getting command"))
		}
		if err := cmd.Run(); err != nil {
			t.Fatal(errors.Wrapf(err, "running command %s", stderr.String()))
		}

		assert.Equal(t, strings.Contains(stdout.String(), "already in sync"), true, "second sync should be a no-op")
		assert.Equal(t, strings.Contains(stderr.String(), `"level":`), false, "structured entries should stay off the terminal")
	})
}

func TestSync_NoRemote(t *testing.T) {
	_, opts := setupTestEnv(t)

	out := testutils.RunFailingCmd(t, opts, binaryName, "sync")

	assert.Equal(t, strings.Contains(out, "no remote path"), true, "error should name the missing remote")
}

func TestSync_InvalidStrategy(t *testing.T) {
	_, opts := setupTestEnv(t)

	out := testutils.RunFailingCmd(t, opts, binaryName, "sync", "--remote", t.TempDir(), "--strategy", "coin-flip")

	assert.Equal(t, strings.Contains(out, "invalid conflict strategy"), true, "error should name the strategy")
}

func TestStrategy(t *testing.T) {
	testDir, opts := setupTestEnv(t)

	testutils.RunCmd(t, opts, binaryName, "strategy", "prefer-remote")

	b, err := os.ReadFile(filepath.Join(testDir, consts.AppDirName, consts.ConfigFilename))
	if err != nil {
		t.Fatal(errors.Wrap(err, "reading the config"))
	}
	assert.Equal(t, strings.Contains(string(b), "strategy: prefer-remote"), true, "config should hold the strategy")

	out := testutils.RunCmd(t, opts, binaryName, "strategy")
	assert.Equal(t, strings.HasSuffix(strings.TrimSpace(out), "prefer-remote"), true, "strategy output mismatch")
}

func TestDoctor(t *testing.T) {
	testCases := []struct {
		name         string
		confirm      bool
		expectExists bool
	}{
		{
			name:         "confirmed",
			confirm:      true,
			expectExists: false,
		},
		{
			name:         "cancelled",
			confirm:      false,
			expectExists: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			testDir, opts := setupTestEnv(t)
			testutils.RunCmd(t, opts, binaryName, "version")

			orphan := filepath.Join(appDir(testDir), consts.PDFDirName, "orphan.pdf")
			if err := os.WriteFile(orphan, []byte("%PDF-1.4"), 0644); err != nil {
				t.Fatal(errors.Wrap(err, "writing the orphan"))
			}

			out := testutils.RunCmd(t, opts, binaryName, "doctor", "scan")
			assert.Equal(t, strings.Contains(out, "orphaned-file"), true, "scan should report the orphan")

			if tc.confirm {
				testutils.MustWaitCmd(t, opts, testutils.ConfirmRepair, binaryName, "doctor", "repair")
			} else {
				testutils.MustWaitCmd(t, opts, testutils.CancelRepair, binaryName, "doctor", "repair")
			}

			ok, err := utils.FileExists(orphan)
			if err != nil {
				t.Fatal(errors.Wrap(err, "checking the orphan"))
			}
			assert.Equal(t, ok, tc.expectExists, "orphan existence mismatch")
		})
	}
}

func TestDataDirFlag(t *testing.T) {
	testDir, opts := setupTestEnv(t)
	customDir := filepath.Join(testDir, "custom")

	testutils.RunCmd(t, opts, binaryName, "version", "--dataDir", customDir)

	ok, err := utils.FileExists(filepath.Join(customDir, consts.AppDirName, consts.DBFileName))
	if err != nil {
		t.Fatal(errors.Wrap(err, "checking the custom database"))
	}
	assert.Equal(t, ok, true, "database should be created under the custom data dir")
}
