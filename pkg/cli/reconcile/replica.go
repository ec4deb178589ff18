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

package reconcile

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/pkg/errors"
)

// ErrDuplicateIdentity is returned when several records of one side derive
// the same identity
var ErrDuplicateIdentity = errors.New("duplicate identity")

// Replica is one side of a sync. Reads happen outside of units. Writes happen
// inside a unit and must leave no trace if the unit rolls back.
type Replica interface {
	Side() Side
	Snapshot(ctx context.Context) (*Manifest, error)

	Paper(id library.ID) (library.Record, bool, error)
	Collection(id library.ID) (library.CollectionRecord, bool, error)
	OpenPDF(id library.ID) (io.ReadCloser, bool, error)

	PutPaper(u *Unit, id library.ID, rec library.Record) error
	DeletePaper(u *Unit, id library.ID) error
	PutCollection(u *Unit, id library.ID, rec library.CollectionRecord) error
	DeleteCollection(u *Unit, id library.ID) error
	PutPDF(u *Unit, id library.ID, r io.Reader) error
	DeletePDF(u *Unit, id library.ID) error

	// Flush writes buffered changes through the unit before it commits
	Flush(u *Unit) error
	// Reset discards buffered changes after a unit rolled back
	Reset() error
}

// Preparer is implemented by replicas that must be checked and leased
// before a cycle reads them. firstSync is true when the two sides have never
// been synced.
type Preparer interface {
	Prepare(ctx context.Context, firstSync bool) (release func(), err error)
}

// PDFPath returns the path of a pdf entity under dir
func PDFPath(dir string, id library.ID) string {
	return filepath.Join(dir, filepath.FromSlash(id.Key()))
}

// SnapshotPDFs hashes every pdf under dir into the manifest. A missing
// directory holds no pdfs. A file that cannot be hashed fails its entity
// only.
func SnapshotPDFs(ctx context.Context, dir string, m *Manifest) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return errors.Wrapf(err, "walking %s", path)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != dir && library.Ignored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if library.Ignored(d.Name()) || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return errors.Wrapf(err, "relativizing %s", path)
		}
		id := library.PDFID(rel)

		info, err := d.Info()
		if err != nil {
			m.Fail(id, errors.Wrapf(err, "reading info of %s", path))
			return nil
		}
		fp, err := library.HashFile(path)
		if err != nil {
			m.Fail(id, err)
			return nil
		}

		m.Add(Entry{ID: id, Fingerprint: fp, Modified: info.ModTime().UTC()})
		return nil
	})
	if err == filepath.SkipDir {
		return nil
	}
	if err != nil {
		return classify(Transient, PhaseSnapshot, "", err)
	}

	return nil
}
