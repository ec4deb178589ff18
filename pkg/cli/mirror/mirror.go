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

// Package mirror implements the remote side of a sync: a directory, usually
// on a shared or synced drive, holding an export of the library records and
// a copy of the pdfs
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dnote/papercli/pkg/cli/consts"
	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/dnote/papercli/pkg/cli/reconcile"
	"github.com/dnote/papercli/pkg/cli/utils"
	"github.com/dnote/papercli/pkg/cli/validate"
	"github.com/dnote/papercli/pkg/clock"
	"github.com/pkg/errors"
)

const exportVersion = 1

var (
	// ErrUnavailable is returned when the mirror directory cannot be reached
	ErrUnavailable = errors.New("remote mirror is unavailable")
	// ErrNotDir is returned when the remote path is not a directory
	ErrNotDir = errors.New("remote path is not a directory")
)

// Export is the content of the export file
type Export struct {
	Version     int                        `json:"version"`
	UpdatedAt   time.Time                  `json:"updated_at"`
	Papers      []library.Record           `json:"papers"`
	Collections []library.CollectionRecord `json:"collections"`
}

// Mirror is the remote replica. Records are buffered in memory and written
// to the export file once per unit.
type Mirror struct {
	root  string
	clock clock.Clock

	firstSync   bool
	loaded      bool
	dirty       bool
	papers      map[library.ID]library.Record
	collections map[library.ID]library.CollectionRecord

	// unsynced holds records that have no identity or share one. They are
	// written back as they are.
	unsynced            []library.Record
	unsyncedCollections []library.CollectionRecord
}

// New returns the mirror rooted at the given directory
func New(root string, c clock.Clock) *Mirror {
	return &Mirror{root: root, clock: c}
}

// Root returns the mirror directory
func (m *Mirror) Root() string {
	return m.root
}

// ExportPath returns the path of the export file
func (m *Mirror) ExportPath() string {
	return filepath.Join(m.root, consts.MirrorExportFilename)
}

// PDFDir returns the pdf directory of the mirror
func (m *Mirror) PDFDir() string {
	return filepath.Join(m.root, consts.PDFDirName)
}

// Side returns the side of the replica
func (m *Mirror) Side() reconcile.Side {
	return reconcile.SideRemote
}

// checkRoot fails if the mirror directory is gone or is not a directory
func (m *Mirror) checkRoot(phase reconcile.Phase) error {
	info, err := os.Stat(m.root)
	if os.IsNotExist(err) {
		return reconcile.NewTransient(phase, errors.Wrap(ErrUnavailable, m.root))
	}
	if err != nil {
		return reconcile.NewTransient(phase, errors.Wrapf(err, "reading %s", m.root))
	}
	if !info.IsDir() {
		return reconcile.NewFatal(phase, errors.Wrap(ErrNotDir, m.root))
	}

	return nil
}

// Prepare checks the mirror before a cycle and takes its lease. On a first
// sync a missing mirror is created. Otherwise it is most likely an
// unmounted drive, and the cycle is retried later.
func (m *Mirror) Prepare(ctx context.Context, firstSync bool) (func(), error) {
	m.firstSync = firstSync

	err := m.checkRoot(reconcile.PhaseSnapshot)
	if err != nil && !(firstSync && reconcile.IsTransient(err)) {
		return nil, err
	}
	if firstSync {
		if err := m.initLayout(); err != nil {
			return nil, reconcile.NewFatal(reconcile.PhaseSnapshot, err)
		}
	}

	return m.acquireLease()
}

// initLayout creates the mirror directory, its pdf directory and an empty
// export file, keeping whatever already exists
func (m *Mirror) initLayout() error {
	if err := utils.EnsureDir(m.PDFDir()); err != nil {
		return errors.Wrap(err, "creating the mirror directory")
	}

	ok, err := utils.FileExists(m.ExportPath())
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	b, err := m.encode(Export{Version: exportVersion, UpdatedAt: m.clock.Now().UTC()})
	if err != nil {
		return err
	}

	return utils.WriteFileAtomic(m.ExportPath(), b, 0644)
}

// load reads the export file into memory
func (m *Mirror) load() (*reconcile.Manifest, error) {
	man := reconcile.NewManifest(reconcile.SideRemote, m.clock.Now())
	m.papers = map[library.ID]library.Record{}
	m.collections = map[library.ID]library.CollectionRecord{}
	m.unsynced = nil
	m.unsyncedCollections = nil
	m.dirty = false

	b, err := os.ReadFile(m.ExportPath())
	if os.IsNotExist(err) {
		if !m.firstSync {
			return nil, reconcile.NewTransient(reconcile.PhaseSnapshot, errors.Wrap(ErrUnavailable, "the export file is missing"))
		}
		m.loaded = true
		return man, nil
	}
	if err != nil {
		return nil, reconcile.NewTransient(reconcile.PhaseSnapshot, errors.Wrap(err, "reading the export file"))
	}

	var exp Export
	if err := json.Unmarshal(b, &exp); err != nil {
		return nil, reconcile.NewTransient(reconcile.PhaseSnapshot, errors.Wrap(err, "decoding the export file"))
	}

	count := map[library.ID]int{}
	for _, rec := range exp.Papers {
		id, err := library.PaperID(rec)
		if err != nil {
			man.Fail("", errors.Wrapf(err, "remote paper '%s'", rec.Title))
			m.unsynced = append(m.unsynced, rec)
			continue
		}
		if err := validate.Record(rec); err != nil {
			man.Fail(id, errors.Wrapf(err, "remote paper '%s'", rec.Title))
			m.unsynced = append(m.unsynced, rec)
			continue
		}
		count[id]++
		if count[id] > 1 {
			m.unsynced = append(m.unsynced, rec)
			continue
		}
		m.papers[id] = rec
	}
	for _, rec := range exp.Collections {
		id := library.CollectionID(rec.Name)
		if err := validate.CollectionName(rec.Name); err != nil {
			man.Fail(id, errors.Wrapf(err, "remote collection '%s'", rec.Name))
			m.unsyncedCollections = append(m.unsyncedCollections, rec)
			continue
		}
		count[id]++
		if count[id] > 1 {
			m.unsyncedCollections = append(m.unsyncedCollections, rec)
			continue
		}
		m.collections[id] = rec
	}

	for id, rec := range m.papers {
		fp, err := rec.Fingerprint()
		if err != nil {
			man.Fail(id, err)
			continue
		}

		e := reconcile.Entry{ID: id, Fingerprint: fp, Modified: rec.Modified()}
		if rel, ok := library.RelPDFPath(m.PDFDir(), rec.PDFPath); ok {
			e.Owns = library.PDFID(rel)
		}
		man.Add(e)
	}
	for id, rec := range m.collections {
		fp, err := rec.Fingerprint()
		if err != nil {
			man.Fail(id, err)
			continue
		}
		man.Add(reconcile.Entry{ID: id, Fingerprint: fp, Modified: rec.Modified()})
	}
	for id, n := range count {
		if n > 1 {
			man.Fail(id, errors.Wrapf(reconcile.ErrDuplicateIdentity, "%d remote records", n))
		}
	}

	m.loaded = true

	return man, nil
}

func (m *Mirror) ensureLoaded() error {
	if m.loaded {
		return nil
	}

	_, err := m.load()
	return err
}

// Snapshot captures the state of the mirror from one read of the export
// file and one walk of the pdf directory
func (m *Mirror) Snapshot(ctx context.Context) (*reconcile.Manifest, error) {
	if err := m.checkRoot(reconcile.PhaseSnapshot); err != nil {
		return nil, err
	}

	man, err := m.load()
	if err != nil {
		return nil, err
	}
	if err := reconcile.SnapshotPDFs(ctx, m.PDFDir(), man); err != nil {
		return nil, err
	}

	return man, nil
}

// Paper returns the remote record of a paper
func (m *Mirror) Paper(id library.ID) (library.Record, bool, error) {
	if err := m.ensureLoaded(); err != nil {
		return library.Record{}, false, err
	}

	rec, ok := m.papers[id]
	return rec, ok, nil
}

// Collection returns the remote record of a collection
func (m *Mirror) Collection(id library.ID) (library.CollectionRecord, bool, error) {
	if err := m.ensureLoaded(); err != nil {
		return library.CollectionRecord{}, false, err
	}

	rec, ok := m.collections[id]
	return rec, ok, nil
}

// OpenPDF opens a remote pdf
func (m *Mirror) OpenPDF(id library.ID) (io.ReadCloser, bool, error) {
	if err := m.checkRoot(reconcile.PhaseApply); err != nil {
		return nil, false, err
	}

	f, err := os.Open(reconcile.PDFPath(m.PDFDir(), id))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "opening %s", id)
	}

	return f, true, nil
}

// PutPaper stores a paper record
func (m *Mirror) PutPaper(u *reconcile.Unit, id library.ID, rec library.Record) error {
	if err := m.ensureLoaded(); err != nil {
		return err
	}

	m.papers[id] = rec
	m.dirty = true

	return nil
}

// DeletePaper deletes a paper record
func (m *Mirror) DeletePaper(u *reconcile.Unit, id library.ID) error {
	if err := m.ensureLoaded(); err != nil {
		return err
	}

	if _, ok := m.papers[id]; ok {
		delete(m.papers, id)
		m.dirty = true
	}

	return nil
}

// PutCollection stores a collection record
func (m *Mirror) PutCollection(u *reconcile.Unit, id library.ID, rec library.CollectionRecord) error {
	if err := m.ensureLoaded(); err != nil {
		return err
	}

	m.collections[id] = rec
	m.dirty = true

	return nil
}

// DeleteCollection deletes a collection record
func (m *Mirror) DeleteCollection(u *reconcile.Unit, id library.ID) error {
	if err := m.ensureLoaded(); err != nil {
		return err
	}

	if _, ok := m.collections[id]; ok {
		delete(m.collections, id)
		m.dirty = true
	}

	return nil
}

// PutPDF writes a remote pdf
func (m *Mirror) PutPDF(u *reconcile.Unit, id library.ID, r io.Reader) error {
	if err := m.checkRoot(reconcile.PhaseApply); err != nil {
		return err
	}

	return u.WriteFile(reconcile.PDFPath(m.PDFDir(), id), r)
}

// DeletePDF deletes a remote pdf
func (m *Mirror) DeletePDF(u *reconcile.Unit, id library.ID) error {
	if err := m.checkRoot(reconcile.PhaseApply); err != nil {
		return err
	}

	return u.RemoveFile(reconcile.PDFPath(m.PDFDir(), id))
}

func (m *Mirror) export() Export {
	exp := Export{
		Version:     exportVersion,
		UpdatedAt:   m.clock.Now().UTC(),
		Papers:      []library.Record{},
		Collections: []library.CollectionRecord{},
	}

	paperIDs := make([]string, 0, len(m.papers))
	for id := range m.papers {
		paperIDs = append(paperIDs, string(id))
	}
	sort.Strings(paperIDs)
	for _, id := range paperIDs {
		exp.Papers = append(exp.Papers, m.papers[library.ID(id)])
	}
	exp.Papers = append(exp.Papers, m.unsynced...)

	collectionIDs := make([]string, 0, len(m.collections))
	for id := range m.collections {
		collectionIDs = append(collectionIDs, string(id))
	}
	sort.Strings(collectionIDs)
	for _, id := range collectionIDs {
		exp.Collections = append(exp.Collections, m.collections[library.ID(id)])
	}
	exp.Collections = append(exp.Collections, m.unsyncedCollections...)

	return exp
}

func (m *Mirror) encode(exp Export) ([]byte, error) {
	if exp.Papers == nil {
		exp.Papers = []library.Record{}
	}
	if exp.Collections == nil {
		exp.Collections = []library.CollectionRecord{}
	}

	b, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding the export")
	}

	return append(b, '\n'), nil
}

// Flush writes the export file through the unit if records changed
func (m *Mirror) Flush(u *reconcile.Unit) error {
	if !m.dirty {
		return nil
	}
	if err := m.checkRoot(reconcile.PhaseApply); err != nil {
		return err
	}

	b, err := m.encode(m.export())
	if err != nil {
		return err
	}
	if err := u.WriteFile(m.ExportPath(), bytes.NewReader(b)); err != nil {
		return err
	}
	m.dirty = false

	return nil
}

// Reset drops the buffered records. They are read again from the export
// file, which a rolled back unit has restored.
func (m *Mirror) Reset() error {
	m.loaded = false
	m.dirty = false

	return nil
}
