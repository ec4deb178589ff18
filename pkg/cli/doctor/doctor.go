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

// Package doctor finds and repairs structural problems of the local store:
// references to missing pdf files, pdf files nothing references, link rows
// whose parents are gone and rows sharing one sync identity. It also relays
// what the database engine's own checks report.
package doctor

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/dnote/papercli/pkg/cli/database"
	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/dnote/papercli/pkg/clock"
	"github.com/pkg/errors"
)

// Kind is the kind of a violation
type Kind string

const (
	// KindDatabaseIntegrity is a problem found by the integrity or foreign
	// key check of the database engine
	KindDatabaseIntegrity Kind = "database-integrity"
	// KindDanglingLink is a paper_authors or paper_collections row whose
	// paper, author or collection is gone
	KindDanglingLink Kind = "dangling-link"
	// KindDuplicateIdentity is a set of rows sharing one sync identity
	KindDuplicateIdentity Kind = "duplicate-identity"
	// KindAbsolutePath is a paper whose pdf path is absolute
	KindAbsolutePath Kind = "absolute-path"
	// KindMissingFile is a paper whose pdf file does not exist
	KindMissingFile Kind = "missing-file"
	// KindOrphanedFile is a file in the pdf directory that no paper references
	KindOrphanedFile Kind = "orphaned-file"
)

// Kinds lists the kinds in the order they are reported and repaired.
// Missing files are relinked before orphaned files are deleted.
var Kinds = []Kind{KindDatabaseIntegrity, KindDanglingLink, KindDuplicateIdentity, KindAbsolutePath, KindMissingFile, KindOrphanedFile}

func (k Kind) rank() int {
	for i, kind := range Kinds {
		if kind == k {
			return i
		}
	}

	return len(Kinds)
}

// Violation is one problem found by a scan
type Violation struct {
	Kind Kind
	// Subjects identifies the affected rows and files, e.g. "paper:12"
	Subjects []string
	// Action is the remediation a repair applies
	Action string
	Detail string

	paperIDs []int
	path     string
	table    string
	parentID int
	childID  int
}

// Report is the result of a scan
type Report struct {
	PDFDir     string
	ScannedAt  time.Time
	Violations []Violation
}

// Count returns the number of violations of the given kind
func (r Report) Count(kind Kind) int {
	n := 0
	for _, v := range r.Violations {
		if v.Kind == kind {
			n++
		}
	}

	return n
}

func paperSubject(id int) string {
	return "paper:" + strconv.Itoa(id)
}

// scan holds what a scan reads from the store
type scan struct {
	pdfDir     string
	papers     []database.Paper
	referenced map[string]bool
}

// Scan reports the violations of the local store. It changes nothing and
// returns the same report until the store changes.
func Scan(ctx context.Context, db *database.DB, pdfDir string, c clock.Clock) (Report, error) {
	report := Report{PDFDir: pdfDir, ScannedAt: c.Now().UTC()}

	tx, err := db.BeginContext(ctx)
	if err != nil {
		return report, errors.Wrap(err, "beginning a transaction")
	}
	defer tx.Rollback()

	papers, err := database.ListPapers(tx)
	if err != nil {
		return report, err
	}
	s := scan{pdfDir: pdfDir, papers: papers, referenced: referencedPaths(papers, pdfDir)}

	engine, err := engineChecks(tx)
	if err != nil {
		return report, err
	}
	links, err := danglingLinks(tx)
	if err != nil {
		return report, err
	}
	duplicates, err := duplicateIdentities(tx, papers, pdfDir)
	if err != nil {
		return report, err
	}
	paths, err := s.pathViolations()
	if err != nil {
		return report, err
	}
	orphans, err := s.orphanedFiles(ctx)
	if err != nil {
		return report, err
	}

	report.Violations = append(report.Violations, engine...)
	report.Violations = append(report.Violations, links...)
	report.Violations = append(report.Violations, duplicates...)
	report.Violations = append(report.Violations, paths...)
	report.Violations = append(report.Violations, orphans...)
	sortViolations(report.Violations)

	log.WithFields(log.Fields{"violations": len(report.Violations), "papers": len(papers)}).Debug("doctor scan done")

	return report, nil
}

func sortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.Kind != b.Kind {
			return a.Kind.rank() < b.Kind.rank()
		}
		for k := 0; k < len(a.Subjects) && k < len(b.Subjects); k++ {
			if a.Subjects[k] != b.Subjects[k] {
				return a.Subjects[k] < b.Subjects[k]
			}
		}

		return len(a.Subjects) < len(b.Subjects)
	})
}

// referencedPaths returns the relative paths of the pdfs referenced by the
// papers
func referencedPaths(papers []database.Paper, pdfDir string) map[string]bool {
	ret := map[string]bool{}
	for _, p := range papers {
		if rel, ok := library.RelPDFPath(pdfDir, p.PDFPath); ok {
			ret[rel] = true
		}
	}

	return ret
}

// engineChecks runs the integrity check and the foreign key check of SQLite.
// Neither can be fixed row by row, so they are only reported.
func engineChecks(db *database.DB) ([]Violation, error) {
	var ret []Violation

	rows, err := db.Query("PRAGMA integrity_check")
	if err != nil {
		return nil, errors.Wrap(err, "checking database integrity")
	}
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scanning the integrity check")
		}
		if msg == "ok" {
			continue
		}

		ret = append(ret, Violation{
			Kind:     KindDatabaseIntegrity,
			Subjects: []string{"integrity_check"},
			Action:   "restore the database from a backup",
			Detail:   msg,
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating the integrity check")
	}

	rows, err = db.Query("PRAGMA foreign_key_check")
	if err != nil {
		return nil, errors.Wrap(err, "checking foreign keys")
	}
	for rows.Next() {
		var table, parent string
		var rowID sql.NullInt64
		var fkID int
		if err := rows.Scan(&table, &rowID, &parent, &fkID); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scanning the foreign key check")
		}

		subject := table
		if rowID.Valid {
			subject = table + ":" + strconv.FormatInt(rowID.Int64, 10)
		}
		ret = append(ret, Violation{
			Kind:     KindDatabaseIntegrity,
			Subjects: []string{table, subject},
			Action:   "resolve manually",
			Detail:   "references a missing " + parent + " row",
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating the foreign key check")
	}

	return ret, nil
}

func danglingLinks(db *database.DB) ([]Violation, error) {
	var ret []Violation

	queries := []struct {
		table  string
		child  string
		query  string
		detail string
	}{
		{
			table: "paper_authors",
			child: "author",
			query: `SELECT pa.paper_id, pa.author_id FROM paper_authors pa
				LEFT JOIN papers p ON p.id = pa.paper_id
				LEFT JOIN authors a ON a.id = pa.author_id
				WHERE p.id IS NULL OR a.id IS NULL
				ORDER BY pa.paper_id, pa.author_id`,
			detail: "author link to a deleted paper or author",
		},
		{
			table: "paper_collections",
			child: "collection",
			query: `SELECT pc.paper_id, pc.collection_id FROM paper_collections pc
				LEFT JOIN papers p ON p.id = pc.paper_id
				LEFT JOIN collections c ON c.id = pc.collection_id
				WHERE p.id IS NULL OR c.id IS NULL
				ORDER BY pc.paper_id, pc.collection_id`,
			detail: "collection link to a deleted paper or collection",
		},
	}

	for _, q := range queries {
		rows, err := db.Query(q.query)
		if err != nil {
			return nil, errors.Wrapf(err, "querying %s", q.table)
		}
		for rows.Next() {
			var paperID, childID int
			if err := rows.Scan(&paperID, &childID); err != nil {
				rows.Close()
				return nil, errors.Wrapf(err, "scanning %s", q.table)
			}

			ret = append(ret, Violation{
				Kind:     KindDanglingLink,
				Subjects: []string{q.table, paperSubject(paperID), q.child + ":" + strconv.Itoa(childID)},
				Action:   "delete the link row",
				Detail:   q.detail,
				table:    q.table,
				parentID: paperID,
				childID:  childID,
			})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, errors.Wrapf(err, "iterating %s", q.table)
		}
	}

	return ret, nil
}

func duplicateIdentities(db *database.DB, papers []database.Paper, pdfDir string) ([]Violation, error) {
	groups := map[library.ID][]int{}
	for _, p := range papers {
		id, err := library.PaperID(library.FromPaper(p, pdfDir))
		if err != nil {
			continue
		}
		groups[id] = append(groups[id], p.RowID)
	}

	collections, err := database.ListCollections(db)
	if err != nil {
		return nil, err
	}
	collectionGroups := map[library.ID][]int{}
	for _, c := range collections {
		id := library.CollectionID(c.Name)
		collectionGroups[id] = append(collectionGroups[id], c.RowID)
	}

	var ret []Violation
	for id, rowIDs := range groups {
		if len(rowIDs) < 2 {
			continue
		}

		v := Violation{
			Kind:     KindDuplicateIdentity,
			Subjects: []string{string(id)},
			Action:   "resolve manually",
			Detail:   strconv.Itoa(len(rowIDs)) + " papers share this identity",
			paperIDs: rowIDs,
		}
		for _, rowID := range rowIDs {
			v.Subjects = append(v.Subjects, paperSubject(rowID))
		}
		ret = append(ret, v)
	}
	for id, rowIDs := range collectionGroups {
		if len(rowIDs) < 2 {
			continue
		}

		v := Violation{
			Kind:     KindDuplicateIdentity,
			Subjects: []string{string(id)},
			Action:   "resolve manually",
			Detail:   strconv.Itoa(len(rowIDs)) + " collections share this name",
		}
		for _, rowID := range rowIDs {
			v.Subjects = append(v.Subjects, "collection:"+strconv.Itoa(rowID))
		}
		ret = append(ret, v)
	}

	return ret, nil
}

// pathViolations finds papers whose pdf path is absolute or points to a
// file that does not exist. An absolute path is reported once, as such.
func (s scan) pathViolations() ([]Violation, error) {
	var ret []Violation

	for _, p := range s.papers {
		if p.PDFPath == "" {
			continue
		}

		if filepath.IsAbs(p.PDFPath) {
			v := Violation{
				Kind:     KindAbsolutePath,
				Subjects: []string{paperSubject(p.RowID), p.PDFPath},
				paperIDs: []int{p.RowID},
				path:     p.PDFPath,
			}
			rel, inside := library.RelPDFPath(s.pdfDir, p.PDFPath)
			ok, err := fileExists(p.PDFPath)
			if err != nil {
				return nil, err
			}
			if inside && ok {
				v.Action = "rewrite as " + rel
				v.Detail = "pdf path is absolute"
			} else {
				v.Action = "relink or clear the pdf path"
				v.Detail = "pdf path is absolute and outside the pdf directory"
				if !ok {
					v.Detail = "pdf path is absolute and the file is missing"
				}
			}
			ret = append(ret, v)
			continue
		}

		rel, ok := library.RelPDFPath(s.pdfDir, p.PDFPath)
		exists := false
		if ok {
			var err error
			exists, err = fileExists(filepath.Join(s.pdfDir, filepath.FromSlash(rel)))
			if err != nil {
				return nil, err
			}
		}
		if exists {
			continue
		}

		ret = append(ret, Violation{
			Kind:     KindMissingFile,
			Subjects: []string{paperSubject(p.RowID), p.PDFPath},
			Action:   "relink or clear the pdf path",
			Detail:   "pdf file does not exist",
			paperIDs: []int{p.RowID},
			path:     p.PDFPath,
		})
	}

	return ret, nil
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "checking %s", path)
	}

	return !info.IsDir(), nil
}

// walkPDFs calls fn with the relative path of every file in the pdf
// directory, skipping scratch and hidden files
func walkPDFs(ctx context.Context, pdfDir string, fn func(rel string) error) error {
	err := filepath.WalkDir(pdfDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == pdfDir {
				return filepath.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == pdfDir {
			return nil
		}
		if library.Ignored(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(pdfDir, path)
		if err != nil {
			return err
		}

		return fn(library.CleanRelPath(rel))
	})
	if err != nil {
		return errors.Wrapf(err, "walking %s", pdfDir)
	}

	return nil
}

func (s scan) orphanedFiles(ctx context.Context) ([]Violation, error) {
	var ret []Violation

	err := walkPDFs(ctx, s.pdfDir, func(rel string) error {
		if s.referenced[rel] {
			return nil
		}

		ret = append(ret, Violation{
			Kind:     KindOrphanedFile,
			Subjects: []string{rel},
			Action:   "delete the file",
			Detail:   "no paper references this file",
			path:     rel,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ret, nil
}
