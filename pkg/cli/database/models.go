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

package database

import (
	"database/sql"
	"sort"

	"github.com/pkg/errors"
)

// Paper is a row of the papers table together with its ordered author names
// and the names of the collections it belongs to
type Paper struct {
	RowID        int
	Title        string
	Abstract     string
	VenueFull    string
	VenueAcronym string
	Year         int
	Volume       string
	Issue        string
	Pages        string
	PaperType    string
	DOI          string
	PreprintID   string
	Category     string
	URL          string
	PDFPath      string
	Notes        string
	AddedDate    int64
	ModifiedDate int64
	Authors      []string
	Collections  []string
}

// Collection is a row of the collections table
type Collection struct {
	RowID        int
	Name         string
	Description  string
	LastModified int64
}

const paperColumns = `id, title, abstract, venue_full, venue_acronym, year, volume, issue, pages,
	paper_type, doi, preprint_id, category, url, pdf_path, notes, added_date, modified_date`

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(i), Valid: i != 0}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPaper(s scanner) (Paper, error) {
	var p Paper
	var abstract, venueFull, venueAcronym, volume, issue, pages, paperType, doi, preprintID,
		category, url, pdfPath, notes sql.NullString
	var year sql.NullInt64

	err := s.Scan(&p.RowID, &p.Title, &abstract, &venueFull, &venueAcronym, &year, &volume, &issue, &pages,
		&paperType, &doi, &preprintID, &category, &url, &pdfPath, &notes, &p.AddedDate, &p.ModifiedDate)
	if err != nil {
		return p, err
	}

	p.Abstract = abstract.String
	p.VenueFull = venueFull.String
	p.VenueAcronym = venueAcronym.String
	p.Year = int(year.Int64)
	p.Volume = volume.String
	p.Issue = issue.String
	p.Pages = pages.String
	p.PaperType = paperType.String
	p.DOI = doi.String
	p.PreprintID = preprintID.String
	p.Category = category.String
	p.URL = url.String
	p.PDFPath = pdfPath.String
	p.Notes = notes.String

	return p, nil
}

func (p Paper) scalarValues() []interface{} {
	return []interface{}{
		p.Title, nullString(p.Abstract), nullString(p.VenueFull), nullString(p.VenueAcronym), nullInt(p.Year),
		nullString(p.Volume), nullString(p.Issue), nullString(p.Pages), nullString(p.PaperType), nullString(p.DOI),
		nullString(p.PreprintID), nullString(p.Category), nullString(p.URL), nullString(p.PDFPath), nullString(p.Notes),
		p.AddedDate, p.ModifiedDate,
	}
}

// Insert inserts the paper with its author and collection links, and sets
// its RowID
func (p *Paper) Insert(db *DB) error {
	res, err := db.Exec(`INSERT INTO papers (title, abstract, venue_full, venue_acronym, year, volume, issue, pages,
		paper_type, doi, preprint_id, category, url, pdf_path, notes, added_date, modified_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, p.scalarValues()...)
	if err != nil {
		return errors.Wrapf(err, "inserting paper '%s'", p.Title)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "getting the inserted id")
	}
	p.RowID = int(id)

	if err := p.linkAll(db); err != nil {
		return err
	}

	return nil
}

// Update overwrites the row and the links of the paper with the given data
func (p Paper) Update(db *DB) error {
	values := append(p.scalarValues(), p.RowID)
	_, err := db.Exec(`UPDATE papers SET title = ?, abstract = ?, venue_full = ?, venue_acronym = ?, year = ?,
		volume = ?, issue = ?, pages = ?, paper_type = ?, doi = ?, preprint_id = ?, category = ?, url = ?,
		pdf_path = ?, notes = ?, added_date = ?, modified_date = ? WHERE id = ?`, values...)
	if err != nil {
		return errors.Wrapf(err, "updating paper %d", p.RowID)
	}

	if _, err := db.Exec("DELETE FROM paper_authors WHERE paper_id = ?", p.RowID); err != nil {
		return errors.Wrapf(err, "clearing authors of paper %d", p.RowID)
	}
	if _, err := db.Exec("DELETE FROM paper_collections WHERE paper_id = ?", p.RowID); err != nil {
		return errors.Wrapf(err, "clearing collections of paper %d", p.RowID)
	}

	return p.linkAll(db)
}

func (p Paper) linkAll(db *DB) error {
	// links are keyed by position, so a name listed twice keeps both places
	for i, name := range p.Authors {
		authorID, err := EnsureAuthor(db, name)
		if err != nil {
			return err
		}

		if _, err := db.Exec("INSERT INTO paper_authors (paper_id, author_id, position) VALUES (?, ?, ?)", p.RowID, authorID, i); err != nil {
			return errors.Wrapf(err, "linking author '%s' to paper %d", name, p.RowID)
		}
	}

	for _, name := range p.Collections {
		collectionID, err := EnsureCollection(db, name)
		if err != nil {
			return err
		}

		if _, err := db.Exec("INSERT OR IGNORE INTO paper_collections (paper_id, collection_id) VALUES (?, ?)", p.RowID, collectionID); err != nil {
			return errors.Wrapf(err, "adding paper %d to collection '%s'", p.RowID, name)
		}
	}

	return nil
}

// Expunge hard-deletes the paper and its links
func (p Paper) Expunge(db *DB) error {
	if _, err := db.Exec("DELETE FROM paper_authors WHERE paper_id = ?", p.RowID); err != nil {
		return errors.Wrapf(err, "deleting author links of paper %d", p.RowID)
	}
	if _, err := db.Exec("DELETE FROM paper_collections WHERE paper_id = ?", p.RowID); err != nil {
		return errors.Wrapf(err, "deleting collection links of paper %d", p.RowID)
	}
	if _, err := db.Exec("DELETE FROM papers WHERE id = ?", p.RowID); err != nil {
		return errors.Wrapf(err, "deleting paper %d", p.RowID)
	}

	return nil
}

// UpdatePDFPath sets or, given an empty path, clears the pdf path of a paper
func UpdatePDFPath(db *DB, rowID int, pdfPath string) error {
	if _, err := db.Exec("UPDATE papers SET pdf_path = ? WHERE id = ?", nullString(pdfPath), rowID); err != nil {
		return errors.Wrapf(err, "updating pdf path of paper %d", rowID)
	}

	return nil
}

// GetPaper returns the paper with the given row id. It returns sql.ErrNoRows,
// unwrapped, if there is none.
func GetPaper(db *DB, rowID int) (Paper, error) {
	p, err := scanPaper(db.QueryRow("SELECT "+paperColumns+" FROM papers WHERE id = ?", rowID))
	if err == sql.ErrNoRows {
		return p, err
	}
	if err != nil {
		return p, errors.Wrapf(err, "getting paper %d", rowID)
	}

	papers := []Paper{p}
	if err := loadLinks(db, papers); err != nil {
		return p, err
	}

	return papers[0], nil
}

// ListPapers returns every paper ordered by row id, with authors in their
// stored order and collection names sorted
func ListPapers(db *DB) ([]Paper, error) {
	return queryPapers(db, "SELECT "+paperColumns+" FROM papers ORDER BY id")
}

// ListPapersWhere returns the papers matching the given condition, e.g.
// "doi IS NOT NULL"
func ListPapersWhere(db *DB, cond string, args ...interface{}) ([]Paper, error) {
	return queryPapers(db, "SELECT "+paperColumns+" FROM papers WHERE "+cond+" ORDER BY id", args...)
}

func queryPapers(db *DB, query string, args ...interface{}) ([]Paper, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying papers")
	}
	defer rows.Close()

	var papers []Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning a paper")
		}
		papers = append(papers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating papers")
	}

	if err := loadLinks(db, papers); err != nil {
		return nil, err
	}

	return papers, nil
}

func loadLinks(db *DB, papers []Paper) error {
	if len(papers) == 0 {
		return nil
	}

	idx := make(map[int]int, len(papers))
	for i, p := range papers {
		idx[p.RowID] = i
	}

	rows, err := db.Query(`SELECT pa.paper_id, a.full_name FROM paper_authors pa
		INNER JOIN authors a ON a.id = pa.author_id
		ORDER BY pa.paper_id, pa.position, a.full_name`)
	if err != nil {
		return errors.Wrap(err, "querying authors")
	}
	for rows.Next() {
		var paperID int
		var name string
		if err := rows.Scan(&paperID, &name); err != nil {
			rows.Close()
			return errors.Wrap(err, "scanning an author")
		}
		if i, ok := idx[paperID]; ok {
			papers[i].Authors = append(papers[i].Authors, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterating authors")
	}

	rows, err = db.Query(`SELECT pc.paper_id, c.name FROM paper_collections pc
		INNER JOIN collections c ON c.id = pc.collection_id`)
	if err != nil {
		return errors.Wrap(err, "querying collections")
	}
	for rows.Next() {
		var paperID int
		var name string
		if err := rows.Scan(&paperID, &name); err != nil {
			rows.Close()
			return errors.Wrap(err, "scanning a collection")
		}
		if i, ok := idx[paperID]; ok {
			papers[i].Collections = append(papers[i].Collections, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterating collections")
	}

	for i := range papers {
		sort.Strings(papers[i].Collections)
	}

	return nil
}

// EnsureAuthor returns the id of the author with the given full name,
// inserting one if needed
func EnsureAuthor(db *DB, fullName string) (int, error) {
	var id int
	err := db.QueryRow("SELECT id FROM authors WHERE full_name = ?", fullName).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, errors.Wrapf(err, "finding author '%s'", fullName)
	}

	res, err := db.Exec("INSERT INTO authors (full_name) VALUES (?)", fullName)
	if err != nil {
		return 0, errors.Wrapf(err, "inserting author '%s'", fullName)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "getting the inserted id")
	}

	return int(lastID), nil
}

// EnsureCollection returns the id of the collection with the given name,
// inserting an empty one if needed
func EnsureCollection(db *DB, name string) (int, error) {
	c, err := FindCollection(db, name)
	if err == nil {
		return c.RowID, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	c = Collection{Name: name}
	if err := c.Insert(db); err != nil {
		return 0, err
	}

	return c.RowID, nil
}

func scanCollection(s scanner) (Collection, error) {
	var c Collection
	var desc sql.NullString
	if err := s.Scan(&c.RowID, &c.Name, &desc, &c.LastModified); err != nil {
		return c, err
	}
	c.Description = desc.String

	return c, nil
}

// FindCollection returns the collection with the given name. It returns
// sql.ErrNoRows, unwrapped, if there is none.
func FindCollection(db *DB, name string) (Collection, error) {
	c, err := scanCollection(db.QueryRow("SELECT id, name, description, last_modified FROM collections WHERE name = ?", name))
	if err == sql.ErrNoRows {
		return c, err
	}
	if err != nil {
		return c, errors.Wrapf(err, "finding collection '%s'", name)
	}

	return c, nil
}

// ListCollections returns every collection ordered by name
func ListCollections(db *DB) ([]Collection, error) {
	rows, err := db.Query("SELECT id, name, description, last_modified FROM collections ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, "querying collections")
	}
	defer rows.Close()

	var ret []Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning a collection")
		}
		ret = append(ret, c)
	}

	return ret, errors.Wrap(rows.Err(), "iterating collections")
}

// Insert inserts the collection and sets its RowID
func (c *Collection) Insert(db *DB) error {
	res, err := db.Exec("INSERT INTO collections (name, description, last_modified) VALUES (?, ?, ?)",
		c.Name, nullString(c.Description), c.LastModified)
	if err != nil {
		return errors.Wrapf(err, "inserting collection '%s'", c.Name)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "getting the inserted id")
	}
	c.RowID = int(id)

	return nil
}

// Update updates the collection with the given data
func (c Collection) Update(db *DB) error {
	_, err := db.Exec("UPDATE collections SET name = ?, description = ?, last_modified = ? WHERE id = ?",
		c.Name, nullString(c.Description), c.LastModified, c.RowID)
	if err != nil {
		return errors.Wrapf(err, "updating collection %d", c.RowID)
	}

	return nil
}

// Expunge hard-deletes the collection and its memberships. Papers are kept.
func (c Collection) Expunge(db *DB) error {
	if _, err := db.Exec("DELETE FROM paper_collections WHERE collection_id = ?", c.RowID); err != nil {
		return errors.Wrapf(err, "deleting memberships of collection %d", c.RowID)
	}
	if _, err := db.Exec("DELETE FROM collections WHERE id = ?", c.RowID); err != nil {
		return errors.Wrapf(err, "deleting collection %d", c.RowID)
	}

	return nil
}

// InsertSyncUnit records that the apply unit with the given id committed
func InsertSyncUnit(db *DB, unitID, entityID string, committedAt int64) error {
	if _, err := db.Exec("INSERT INTO sync_units (unit_id, entity_id, committed_at) VALUES (?, ?, ?)", unitID, entityID, committedAt); err != nil {
		return errors.Wrapf(err, "recording sync unit %s", unitID)
	}

	return nil
}

// HasSyncUnit reports whether the apply unit with the given id committed
func HasSyncUnit(db *DB, unitID string) (bool, error) {
	var count int
	if err := db.QueryRow("SELECT count(*) FROM sync_units WHERE unit_id = ?", unitID).Scan(&count); err != nil {
		return false, errors.Wrapf(err, "finding sync unit %s", unitID)
	}

	return count > 0, nil
}

// DeleteSyncUnit forgets the commit record of an apply unit
func DeleteSyncUnit(db *DB, unitID string) error {
	if _, err := db.Exec("DELETE FROM sync_units WHERE unit_id = ?", unitID); err != nil {
		return errors.Wrapf(err, "deleting sync unit %s", unitID)
	}

	return nil
}

// PurgeSyncUnits deletes every commit record of apply units. The database is
// not written to if there is none.
func PurgeSyncUnits(db *DB) error {
	var count int
	if err := db.QueryRow("SELECT count(*) FROM sync_units").Scan(&count); err != nil {
		return errors.Wrap(err, "counting sync units")
	}
	if count == 0 {
		return nil
	}

	if _, err := db.Exec("DELETE FROM sync_units"); err != nil {
		return errors.Wrap(err, "purging sync units")
	}

	return nil
}
