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

// Package library defines how papers, collections and pdf files are
// identified and fingerprinted independently of any one database
package library

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the kind of a synced entity
type Kind string

const (
	// KindCollection is a collection of papers
	KindCollection Kind = "collection"
	// KindPaper is a paper record with its author and collection links
	KindPaper Kind = "paper"
	// KindPDF is a pdf file in the managed directory
	KindPDF Kind = "pdf"
)

// rank orders kinds so that collections are written before the papers that
// join them, and papers before standalone files
func (k Kind) rank() int {
	switch k {
	case KindCollection:
		return 0
	case KindPaper:
		return 1
	default:
		return 2
	}
}

// ID identifies an entity on both replicas, e.g. "paper:doi:10.1145/3368089"
// or "pdf:vaswani2017.pdf"
type ID string

// NewID builds an entity identifier
func NewID(kind Kind, key string) ID {
	return ID(string(kind) + ":" + key)
}

// PDFID returns the identifier of the pdf at the given path relative to the
// managed directory
func PDFID(rel string) ID {
	return NewID(KindPDF, CleanRelPath(rel))
}

// Kind returns the kind of the entity
func (id ID) Kind() Kind {
	s := string(id)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return Kind(s[:i])
	}

	return ""
}

// Key returns the identifier without its kind prefix
func (id ID) Key() string {
	s := string(id)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[i+1:]
	}

	return s
}

// Less orders identifiers by kind rank, then lexically
func Less(a, b ID) bool {
	ra, rb := a.Kind().rank(), b.Kind().rank()
	if ra != rb {
		return ra < rb
	}

	return a < b
}

// CleanRelPath normalizes a relative pdf path to forward slashes without
// leading "./"
func CleanRelPath(rel string) string {
	return strings.TrimPrefix(path.Clean(filepath.ToSlash(rel)), "./")
}

// RelPDFPath converts a stored pdf path to a path relative to pdfDir. An
// absolute path inside pdfDir is accepted; ok is false for absolute paths
// elsewhere and for paths escaping the directory.
func RelPDFPath(pdfDir, stored string) (string, bool) {
	if stored == "" {
		return "", false
	}

	if filepath.IsAbs(stored) {
		rel, err := filepath.Rel(pdfDir, stored)
		if err != nil {
			return "", false
		}
		stored = rel
	}

	rel := CleanRelPath(stored)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return "", false
	}

	return rel, true
}

// ErrNoIdentity is returned for records that carry nothing to derive an
// identity from
var ErrNoIdentity = errors.New("record has no doi, preprint id or title")

// Ignored reports whether a file in a pdf directory is not library content.
// Dot files are scratch files of interrupted writes, lock files and the like.
func Ignored(name string) bool {
	return strings.HasPrefix(name, ".")
}
