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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dnote/papercli/pkg/assert"
	"github.com/dnote/papercli/pkg/cli/database"
	"github.com/pkg/errors"
)

func TestPaperKey(t *testing.T) {
	testCases := []struct {
		name     string
		record   Record
		expected string
	}{
		{
			name:     "doi wins",
			record:   Record{Title: "Attention", DOI: "10.5555/3295222", PreprintID: "1706.03762"},
			expected: "doi:10.5555/3295222",
		},
		{
			name:     "doi resolver prefix and case",
			record:   Record{DOI: "https://doi.org/10.1145/ABC.123"},
			expected: "doi:10.1145/abc.123",
		},
		{
			name:     "preprint without version",
			record:   Record{Title: "Attention", PreprintID: "arXiv:1706.03762v5"},
			expected: "preprint:1706.03762",
		},
		{
			name:     "title and year",
			record:   Record{Title: "  Attention Is All  You Need! ", Year: 2017},
			expected: "title:attention is all you need:2017",
		},
		{
			name:     "accents are folded",
			record:   Record{Title: "Schrödinger’s Équations", Year: 1926},
			expected: "title:schrodinger s equations:1926",
		},
		{
			name:     "unknown year",
			record:   Record{Title: "Untitled Draft"},
			expected: "title:untitled draft:0",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := PaperKey(tc.record)
			if err != nil {
				t.Fatal(errors.Wrap(err, "deriving key"))
			}

			assert.Equal(t, key, tc.expected, "key mismatch")
		})
	}
}

func TestPaperKey_NoIdentity(t *testing.T) {
	_, err := PaperKey(Record{Title: " -- ", Year: 2020})

	assert.Equal(t, err, ErrNoIdentity, "error mismatch")
}

func TestID(t *testing.T) {
	id := NewID(KindPaper, "doi:10.1/x")

	assert.Equal(t, id, ID("paper:doi:10.1/x"), "id mismatch")
	assert.Equal(t, id.Kind(), KindPaper, "kind mismatch")
	assert.Equal(t, id.Key(), "doi:10.1/x", "key mismatch")
	assert.Equal(t, PDFID("./sub/../a.pdf"), ID("pdf:a.pdf"), "pdf id mismatch")
}

func TestLess(t *testing.T) {
	assert.Equal(t, Less("collection:z", "paper:a"), true, "collections first")
	assert.Equal(t, Less("paper:z", "pdf:a"), true, "papers before pdfs")
	assert.Equal(t, Less("pdf:a", "pdf:b"), true, "lexical within kind")
}

func TestRelPDFPath(t *testing.T) {
	testCases := []struct {
		stored   string
		expected string
		ok       bool
	}{
		{stored: "a.pdf", expected: "a.pdf", ok: true},
		{stored: "2020/b.pdf", expected: "2020/b.pdf", ok: true},
		{stored: "/data/pdfs/c.pdf", expected: "c.pdf", ok: true},
		{stored: "/elsewhere/d.pdf", expected: "", ok: false},
		{stored: "../e.pdf", expected: "", ok: false},
		{stored: "", expected: "", ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.stored, func(t *testing.T) {
			rel, ok := RelPDFPath("/data/pdfs", tc.stored)

			assert.Equal(t, rel, tc.expected, "path mismatch")
			assert.Equal(t, ok, tc.ok, "ok mismatch")
		})
	}
}

func mustFingerprint(t *testing.T, r Record) string {
	fp, err := r.Fingerprint()
	if err != nil {
		t.Fatal(errors.Wrap(err, "fingerprinting"))
	}

	return fp
}

func TestRecordFingerprint(t *testing.T) {
	base := Record{
		Title:       "Deep Residual Learning",
		Year:        2016,
		Authors:     []string{"Kaiming He", "Xiangyu Zhang"},
		Collections: []string{"vision", "classics"},
		ModifiedAt:  100,
	}
	baseFP := mustFingerprint(t, base)

	t.Run("timestamps are ignored", func(t *testing.T) {
		r := base
		r.ModifiedAt = 999
		r.AddedAt = 5

		assert.Equal(t, mustFingerprint(t, r), baseFP, "fingerprint mismatch")
	})

	t.Run("collection order is ignored", func(t *testing.T) {
		r := base
		r.Collections = []string{"classics", "vision", "vision"}

		assert.Equal(t, mustFingerprint(t, r), baseFP, "fingerprint mismatch")
	})

	t.Run("collection case is ignored", func(t *testing.T) {
		r := base
		r.Collections = []string{"Vision", "CLASSICS", "vision"}

		assert.Equal(t, mustFingerprint(t, r), baseFP, "fingerprint mismatch")
	})

	t.Run("surrounding whitespace and empty values are ignored", func(t *testing.T) {
		r := base
		r.Title = " Deep Residual Learning\n"
		r.Notes = "   "

		assert.Equal(t, mustFingerprint(t, r), baseFP, "fingerprint mismatch")
	})

	t.Run("unicode composition is ignored", func(t *testing.T) {
		a := Record{Title: "Caf\u00e9"}
		b := Record{Title: "Cafe\u0301"}

		assert.Equal(t, mustFingerprint(t, a), mustFingerprint(t, b), "fingerprint mismatch")
	})

	t.Run("author order matters", func(t *testing.T) {
		r := base
		r.Authors = []string{"Xiangyu Zhang", "Kaiming He"}

		assert.NotEqual(t, mustFingerprint(t, r), baseFP, "fingerprint should change")
	})

	t.Run("notes matter", func(t *testing.T) {
		r := base
		r.Notes = "skip connections"

		assert.NotEqual(t, mustFingerprint(t, r), baseFP, "fingerprint should change")
	})

	t.Run("prefix", func(t *testing.T) {
		assert.Equal(t, strings.HasPrefix(baseFP, "b2:"), true, "prefix mismatch")
		assert.Equal(t, len(baseFP), 3+64, "length mismatch")
	})
}

func TestFromPaper(t *testing.T) {
	p := database.Paper{
		RowID:        7,
		Title:        "ResNet",
		PDFPath:      "/lib/pdfs/he2016.pdf",
		Collections:  []string{"b", "a"},
		ModifiedDate: 42,
	}

	r := FromPaper(p, "/lib/pdfs")

	assert.Equal(t, r.PDFPath, "he2016.pdf", "pdf path should be relative")
	assert.DeepEqual(t, r.Collections, []string{"a", "b"}, "collections should be sorted")
	assert.Equal(t, r.ToPaper(7).RowID, 7, "row id mismatch")
	assert.Equal(t, r.Modified().Unix(), int64(42), "modified mismatch")
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "b.pdf")
	c := filepath.Join(dir, "c.pdf")
	for path, content := range map[string]string{a: "%PDF-1.4 one", b: "%PDF-1.4 one", c: "%PDF-1.4 two"} {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	fpA, err := HashFile(a)
	if err != nil {
		t.Fatal(err)
	}
	fpB, err := HashFile(b)
	if err != nil {
		t.Fatal(err)
	}
	fpC, err := HashFile(c)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, fpA, fpB, "same bytes, same fingerprint")
	assert.NotEqual(t, fpA, fpC, "different bytes, different fingerprint")

	fromReader, err := HashReader(strings.NewReader("%PDF-1.4 one"))
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, fromReader, fpA, "reader and file fingerprints should agree")
}
