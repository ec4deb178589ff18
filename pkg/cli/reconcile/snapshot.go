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
	"os"

	"github.com/dnote/papercli/pkg/cli/database"
	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/dnote/papercli/pkg/clock"
	"github.com/pkg/errors"
)

// Local is the local replica: the library database and the managed pdf
// directory
type Local struct {
	db     *database.DB
	pdfDir string
	clock  clock.Clock
}

// NewLocal returns the local replica
func NewLocal(db *database.DB, pdfDir string, c clock.Clock) *Local {
	return &Local{db: db, pdfDir: pdfDir, clock: c}
}

// Side returns the side of the replica
func (l *Local) Side() Side {
	return SideLocal
}

// Snapshot captures the local state. Records are read in one transaction.
func (l *Local) Snapshot(ctx context.Context) (*Manifest, error) {
	m := NewManifest(SideLocal, l.clock.Now())

	tx, err := l.db.BeginContext(ctx)
	if err != nil {
		return nil, classify(Fatal, PhaseSnapshot, "", errors.Wrap(err, "opening the local database"))
	}
	papers, err := database.ListPapers(tx)
	if err != nil {
		tx.Rollback()
		return nil, classify(Fatal, PhaseSnapshot, "", err)
	}
	collections, err := database.ListCollections(tx)
	if err != nil {
		tx.Rollback()
		return nil, classify(Fatal, PhaseSnapshot, "", err)
	}
	if err := tx.Rollback(); err != nil {
		return nil, classify(Fatal, PhaseSnapshot, "", err)
	}

	rowsByID := map[library.ID][]int{}
	for _, p := range papers {
		if err := ctx.Err(); err != nil {
			return nil, classify(Transient, PhaseSnapshot, "", err)
		}

		rec := library.FromPaper(p, l.pdfDir)
		id, err := library.PaperID(rec)
		if err != nil {
			m.Fail("", errors.Wrapf(err, "paper %d", p.RowID))
			continue
		}
		rowsByID[id] = append(rowsByID[id], p.RowID)

		fp, err := rec.Fingerprint()
		if err != nil {
			m.Fail(id, err)
			continue
		}

		e := Entry{ID: id, Fingerprint: fp, Modified: rec.Modified()}
		if rel, ok := library.RelPDFPath(l.pdfDir, p.PDFPath); ok {
			e.Owns = library.PDFID(rel)
		}
		m.Add(e)
	}

	for _, c := range collections {
		rec := library.FromCollection(c)
		id := library.CollectionID(c.Name)
		rowsByID[id] = append(rowsByID[id], c.RowID)

		fp, err := rec.Fingerprint()
		if err != nil {
			m.Fail(id, err)
			continue
		}
		m.Add(Entry{ID: id, Fingerprint: fp, Modified: rec.Modified()})
	}

	for id, rows := range rowsByID {
		if len(rows) > 1 {
			m.Fail(id, errors.Wrapf(ErrDuplicateIdentity, "rows %v", rows))
		}
	}

	if err := SnapshotPDFs(ctx, l.pdfDir, m); err != nil {
		return nil, err
	}

	return m, nil
}

func (l *Local) findPapers(db *database.DB, id library.ID) ([]database.Paper, error) {
	papers, err := database.ListPapers(db)
	if err != nil {
		return nil, err
	}

	var ret []database.Paper
	for _, p := range papers {
		pid, err := library.PaperID(library.FromPaper(p, l.pdfDir))
		if err == nil && pid == id {
			ret = append(ret, p)
		}
	}

	return ret, nil
}

func (l *Local) findCollections(db *database.DB, id library.ID) ([]database.Collection, error) {
	collections, err := database.ListCollections(db)
	if err != nil {
		return nil, err
	}

	var ret []database.Collection
	for _, c := range collections {
		if library.CollectionID(c.Name) == id {
			ret = append(ret, c)
		}
	}

	return ret, nil
}

// resolveCollections maps collection names onto the local rows with the same
// identity. Names that fold to one identity collapse to the first of them.
func (l *Local) resolveCollections(db *database.DB, names []string) ([]string, error) {
	if len(names) == 0 {
		return names, nil
	}

	collections, err := database.ListCollections(db)
	if err != nil {
		return nil, err
	}
	existing := map[library.ID][]string{}
	for _, c := range collections {
		id := library.CollectionID(c.Name)
		existing[id] = append(existing[id], c.Name)
	}

	seen := map[library.ID]bool{}
	ret := []string{}
	for _, name := range names {
		id := library.CollectionID(name)
		if seen[id] {
			continue
		}
		seen[id] = true

		rows := existing[id]
		if len(rows) > 1 {
			return nil, duplicate(id, len(rows))
		}
		if len(rows) == 1 {
			name = rows[0]
		}
		ret = append(ret, name)
	}

	return ret, nil
}

func duplicate(id library.ID, n int) error {
	return NewStructural(PhaseApply, id, errors.Wrapf(ErrDuplicateIdentity, "%d local rows", n))
}

// Paper returns the local record of a paper
func (l *Local) Paper(id library.ID) (library.Record, bool, error) {
	rows, err := l.findPapers(l.db, id)
	if err != nil {
		return library.Record{}, false, err
	}
	if len(rows) > 1 {
		return library.Record{}, false, duplicate(id, len(rows))
	}
	if len(rows) == 0 {
		return library.Record{}, false, nil
	}

	return library.FromPaper(rows[0], l.pdfDir), true, nil
}

// Collection returns the local record of a collection
func (l *Local) Collection(id library.ID) (library.CollectionRecord, bool, error) {
	rows, err := l.findCollections(l.db, id)
	if err != nil {
		return library.CollectionRecord{}, false, err
	}
	if len(rows) > 1 {
		return library.CollectionRecord{}, false, duplicate(id, len(rows))
	}
	if len(rows) == 0 {
		return library.CollectionRecord{}, false, nil
	}

	return library.FromCollection(rows[0]), true, nil
}

// OpenPDF opens a local pdf
func (l *Local) OpenPDF(id library.ID) (io.ReadCloser, bool, error) {
	f, err := os.Open(PDFPath(l.pdfDir, id))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "opening %s", id)
	}

	return f, true, nil
}

// PutPaper inserts or overwrites the local row of a paper
func (l *Local) PutPaper(u *Unit, id library.ID, rec library.Record) error {
	rows, err := l.findPapers(u.Tx(), id)
	if err != nil {
		return err
	}
	if len(rows) > 1 {
		return duplicate(id, len(rows))
	}

	p := rec.ToPaper(0)
	if p.Collections, err = l.resolveCollections(u.Tx(), p.Collections); err != nil {
		return err
	}
	if len(rows) == 1 {
		p.RowID = rows[0].RowID
		if p.AddedDate == 0 {
			p.AddedDate = rows[0].AddedDate
		}
		return p.Update(u.Tx())
	}

	if p.AddedDate == 0 {
		p.AddedDate = l.clock.Now().Unix()
	}
	return p.Insert(u.Tx())
}

// DeletePaper deletes the local row of a paper with its links
func (l *Local) DeletePaper(u *Unit, id library.ID) error {
	rows, err := l.findPapers(u.Tx(), id)
	if err != nil {
		return err
	}
	if len(rows) > 1 {
		return duplicate(id, len(rows))
	}
	if len(rows) == 0 {
		return nil
	}

	return rows[0].Expunge(u.Tx())
}

// PutCollection inserts or overwrites a local collection
func (l *Local) PutCollection(u *Unit, id library.ID, rec library.CollectionRecord) error {
	rows, err := l.findCollections(u.Tx(), id)
	if err != nil {
		return err
	}
	if len(rows) > 1 {
		return duplicate(id, len(rows))
	}

	c := database.Collection{Name: rec.Name, Description: rec.Description, LastModified: rec.ModifiedAt}
	if len(rows) == 1 {
		c.RowID = rows[0].RowID
		return c.Update(u.Tx())
	}

	return c.Insert(u.Tx())
}

// DeleteCollection deletes a local collection. Its papers are kept.
func (l *Local) DeleteCollection(u *Unit, id library.ID) error {
	rows, err := l.findCollections(u.Tx(), id)
	if err != nil {
		return err
	}
	if len(rows) > 1 {
		return duplicate(id, len(rows))
	}
	if len(rows) == 0 {
		return nil
	}

	return rows[0].Expunge(u.Tx())
}

// PutPDF writes a local pdf
func (l *Local) PutPDF(u *Unit, id library.ID, r io.Reader) error {
	return u.WriteFile(PDFPath(l.pdfDir, id), r)
}

// DeletePDF deletes a local pdf
func (l *Local) DeletePDF(u *Unit, id library.ID) error {
	return u.RemoveFile(PDFPath(l.pdfDir, id))
}

// Flush is a no-op. Local writes are not buffered.
func (l *Local) Flush(u *Unit) error {
	return nil
}

// Reset is a no-op. Local writes are not buffered.
func (l *Local) Reset() error {
	return nil
}
