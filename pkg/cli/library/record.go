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

package library

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dnote/papercli/pkg/cli/database"
	"golang.org/x/text/unicode/norm"
)

// Record is the replica-independent state of a paper. It is what the remote
// mirror stores and what a paper fingerprint is computed over.
type Record struct {
	Title        string   `json:"title"`
	Abstract     string   `json:"abstract,omitempty"`
	VenueFull    string   `json:"venue_full,omitempty"`
	VenueAcronym string   `json:"venue_acronym,omitempty"`
	Year         int      `json:"year,omitempty"`
	Volume       string   `json:"volume,omitempty"`
	Issue        string   `json:"issue,omitempty"`
	Pages        string   `json:"pages,omitempty"`
	PaperType    string   `json:"paper_type,omitempty"`
	DOI          string   `json:"doi,omitempty"`
	PreprintID   string   `json:"preprint_id,omitempty"`
	Category     string   `json:"category,omitempty"`
	URL          string   `json:"url,omitempty"`
	PDFPath      string   `json:"pdf_path,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Authors      []string `json:"authors,omitempty"`
	Collections  []string `json:"collections,omitempty"`
	AddedAt      int64    `json:"added_at,omitempty"`
	ModifiedAt   int64    `json:"modified_at"`
}

// Modified returns the last-modified time of the record
func (r Record) Modified() time.Time {
	return time.Unix(r.ModifiedAt, 0).UTC()
}

// FromPaper converts a database row to a record. The pdf path is made
// relative to pdfDir when it points inside it.
func FromPaper(p database.Paper, pdfDir string) Record {
	pdfPath := p.PDFPath
	if rel, ok := RelPDFPath(pdfDir, p.PDFPath); ok {
		pdfPath = rel
	}

	r := Record{
		Title:        p.Title,
		Abstract:     p.Abstract,
		VenueFull:    p.VenueFull,
		VenueAcronym: p.VenueAcronym,
		Year:         p.Year,
		Volume:       p.Volume,
		Issue:        p.Issue,
		Pages:        p.Pages,
		PaperType:    p.PaperType,
		DOI:          p.DOI,
		PreprintID:   p.PreprintID,
		Category:     p.Category,
		URL:          p.URL,
		PDFPath:      pdfPath,
		Notes:        p.Notes,
		Authors:      append([]string(nil), p.Authors...),
		Collections:  append([]string(nil), p.Collections...),
		AddedAt:      p.AddedDate,
		ModifiedAt:   p.ModifiedDate,
	}
	sort.Strings(r.Collections)

	return r
}

// ToPaper copies the record onto a database row, keeping the row id
func (r Record) ToPaper(rowID int) database.Paper {
	return database.Paper{
		RowID:        rowID,
		Title:        r.Title,
		Abstract:     r.Abstract,
		VenueFull:    r.VenueFull,
		VenueAcronym: r.VenueAcronym,
		Year:         r.Year,
		Volume:       r.Volume,
		Issue:        r.Issue,
		Pages:        r.Pages,
		PaperType:    r.PaperType,
		DOI:          r.DOI,
		PreprintID:   r.PreprintID,
		Category:     r.Category,
		URL:          r.URL,
		PDFPath:      r.PDFPath,
		Notes:        r.Notes,
		Authors:      append([]string(nil), r.Authors...),
		Collections:  append([]string(nil), r.Collections...),
		AddedDate:    r.AddedAt,
		ModifiedDate: r.ModifiedAt,
	}
}

// Field is a named mutable field of a record, rendered as text
type Field struct {
	Name  string
	Value string
}

// Fields lists the mutable fields in canonical order. It is what gets
// fingerprinted and what a conflict is displayed as.
func (r Record) Fields() []Field {
	year := ""
	if r.Year != 0 {
		year = strconv.Itoa(r.Year)
	}

	collections := collectionKeys(r.Collections)
	authors := make([]string, 0, len(r.Authors))
	for _, a := range r.Authors {
		if a = canonicalString(a); a != "" {
			authors = append(authors, a)
		}
	}

	return []Field{
		{Name: "title", Value: canonicalString(r.Title)},
		{Name: "authors", Value: strings.Join(authors, "\n")},
		{Name: "abstract", Value: canonicalString(r.Abstract)},
		{Name: "venue_full", Value: canonicalString(r.VenueFull)},
		{Name: "venue_acronym", Value: canonicalString(r.VenueAcronym)},
		{Name: "year", Value: year},
		{Name: "volume", Value: canonicalString(r.Volume)},
		{Name: "issue", Value: canonicalString(r.Issue)},
		{Name: "pages", Value: canonicalString(r.Pages)},
		{Name: "paper_type", Value: canonicalString(r.PaperType)},
		{Name: "doi", Value: canonicalString(r.DOI)},
		{Name: "preprint_id", Value: canonicalString(r.PreprintID)},
		{Name: "category", Value: canonicalString(r.Category)},
		{Name: "url", Value: canonicalString(r.URL)},
		{Name: "pdf_path", Value: canonicalString(r.PDFPath)},
		{Name: "notes", Value: canonicalString(r.Notes)},
		{Name: "collections", Value: strings.Join(collections, "\n")},
	}
}

// CollectionRecord is the replica-independent state of a collection
type CollectionRecord struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ModifiedAt  int64  `json:"modified_at"`
}

// Modified returns the last-modified time of the collection
func (c CollectionRecord) Modified() time.Time {
	return time.Unix(c.ModifiedAt, 0).UTC()
}

// FromCollection converts a database row to a collection record
func FromCollection(c database.Collection) CollectionRecord {
	return CollectionRecord{
		Name:        c.Name,
		Description: c.Description,
		ModifiedAt:  c.LastModified,
	}
}

func canonicalString(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// collectionKeys returns the sorted, distinct collection keys of the names.
// Membership follows collection identity, so "ML" and "ml" are one entry.
func collectionKeys(names []string) []string {
	seen := map[string]bool{}
	ret := []string{}
	for _, name := range names {
		item := CollectionKey(name)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		ret = append(ret, item)
	}
	sort.Strings(ret)

	return ret
}
