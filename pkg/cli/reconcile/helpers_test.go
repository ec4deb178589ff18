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

package reconcile_test

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnote/papercli/pkg/cli/consts"
	"github.com/dnote/papercli/pkg/cli/database"
	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/dnote/papercli/pkg/cli/lock"
	"github.com/dnote/papercli/pkg/cli/mirror"
	"github.com/dnote/papercli/pkg/cli/reconcile"
	"github.com/dnote/papercli/pkg/clock"
	"github.com/pkg/errors"
)

// env is a local library and a remote mirror wired to an engine
type env struct {
	db         *database.DB
	dbPath     string
	dataDir    string
	pdfDir     string
	remoteDir  string
	cursorPath string
	clock      *clock.Mock
	mirror     *mirror.Mirror
	engine     *reconcile.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()

	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatal(err)
	}
	db, dbPath := database.InitTestFileDB(t, dataDir)
	c := clock.NewMock()

	e := &env{
		db:         db,
		dbPath:     dbPath,
		dataDir:    dataDir,
		pdfDir:     filepath.Join(dataDir, consts.PDFDirName),
		remoteDir:  filepath.Join(root, "remote"),
		cursorPath: filepath.Join(dataDir, consts.CursorFilename),
		clock:      c,
	}
	e.mirror = mirror.New(e.remoteDir, c)
	e.engine = &reconcile.Engine{
		DB:         db,
		Local:      reconcile.NewLocal(db, e.pdfDir, c),
		Remote:     e.mirror,
		Journal:    reconcile.NewJournal(filepath.Join(dataDir, consts.JournalDirName), db, c),
		Locker:     lock.New(filepath.Join(dataDir, consts.LockFilename)),
		CursorPath: e.cursorPath,
		Clock:      c,
	}

	return e
}

func (e *env) run(t *testing.T, opts reconcile.Options) *reconcile.Result {
	t.Helper()

	result, err := e.engine.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("running a cycle: %+v", err)
	}

	return result
}

func (e *env) insertPaper(t *testing.T, p database.Paper) database.Paper {
	t.Helper()

	return database.MustInsertPaper(t, e.db, p)
}

func (e *env) paperByDOI(t *testing.T, doi string) (database.Paper, bool) {
	t.Helper()

	papers, err := database.ListPapersWhere(e.db, "doi = ?", doi)
	if err != nil {
		t.Fatal(err)
	}
	if len(papers) == 0 {
		return database.Paper{}, false
	}
	if len(papers) > 1 {
		t.Fatalf("%d papers with doi %s", len(papers), doi)
	}

	return papers[0], true
}

func (e *env) readExport(t *testing.T) mirror.Export {
	t.Helper()

	var exp mirror.Export
	b, err := os.ReadFile(e.mirror.ExportPath())
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(b, &exp); err != nil {
		t.Fatal(err)
	}

	return exp
}

func (e *env) writeExport(t *testing.T, exp mirror.Export) {
	t.Helper()

	exp.Version = 1
	b, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, e.mirror.ExportPath(), string(b))
}

// editRemotePaper rewrites the remote record with the given doi
func (e *env) editRemotePaper(t *testing.T, doi string, edit func(r *library.Record)) {
	t.Helper()

	exp := e.readExport(t)
	for i := range exp.Papers {
		if exp.Papers[i].DOI == doi {
			edit(&exp.Papers[i])
			e.writeExport(t, exp)
			return
		}
	}

	t.Fatalf("no remote paper with doi %s", doi)
}

func (e *env) remotePaper(t *testing.T, doi string) (library.Record, bool) {
	t.Helper()

	for _, p := range e.readExport(t).Papers {
		if p.DOI == doi {
			return p, true
		}
	}

	return library.Record{}, false
}

func (e *env) cursor(t *testing.T) *reconcile.Cursor {
	t.Helper()

	c, err := reconcile.LoadCursor(e.cursorPath)
	if err != nil {
		t.Fatal(err)
	}

	return c
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "<missing>"
	}
	if err != nil {
		t.Fatal(err)
	}

	return string(b)
}

func fingerprint(t *testing.T, r library.Record) string {
	t.Helper()

	fp, err := r.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}

	return fp
}

// faultyReplica fails pdf writes on demand
type faultyReplica struct {
	reconcile.Replica
	failPDF bool
}

func (f *faultyReplica) PutPDF(u *reconcile.Unit, id library.ID, r io.Reader) error {
	if f.failPDF {
		return errors.New("no space left on device")
	}

	return f.Replica.PutPDF(u, id, r)
}
