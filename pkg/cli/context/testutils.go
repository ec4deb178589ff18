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

package context

import (
	"testing"

	"github.com/dnote/papercli/pkg/cli/database"
	"github.com/dnote/papercli/pkg/cli/reconcile"
	"github.com/dnote/papercli/pkg/clock"
	"github.com/pkg/errors"
)

// getDefaultTestPaths creates default test paths with all paths pointing to a temp directory
func getDefaultTestPaths(t *testing.T) Paths {
	tmpDir := t.TempDir()
	return Paths{
		Home:   tmpDir,
		Cache:  tmpDir,
		Config: tmpDir,
		Data:   tmpDir,
		State:  tmpDir,
	}
}

// InitTestCtx initializes a test context with a file-based database at the
// expected path and a temporary directory for all paths
func InitTestCtx(t *testing.T) PaperCtx {
	paths := getDefaultTestPaths(t)

	if err := InitDirs(paths); err != nil {
		t.Fatal(errors.Wrap(err, "creating test directories"))
	}

	ctx := PaperCtx{
		Paths:    paths,
		Clock:    clock.NewMock(), // Use a mock clock to test times
		Strategy: reconcile.PreferLocal,
	}

	db, err := database.Open(ctx.DBPath())
	if err != nil {
		t.Fatal(errors.Wrap(err, "opening database"))
	}
	t.Cleanup(func() { db.Close() })

	if _, err := database.Migrate(db); err != nil {
		t.Fatal(errors.Wrap(err, "migrating the test database"))
	}
	ctx.DB = db

	return ctx
}
