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
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	doiPrefixes      = []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"}
	preprintPrefixes = []string{"https://arxiv.org/abs/", "http://arxiv.org/abs/", "arxiv:"}
	preprintVersion  = regexp.MustCompile(`v\d+$`)
)

// stripAccents decomposes s and drops combining marks, so that "Schrödinger"
// and "Schrodinger" normalize alike
func stripAccents(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ret, _, err := transform.String(t, s)
	if err != nil {
		return norm.NFC.String(s)
	}

	return ret
}

// NormalizeTitle folds case and accents and collapses every run of
// punctuation or whitespace into a single space
func NormalizeTitle(s string) string {
	s = cases.Fold().String(stripAccents(s))

	var b strings.Builder
	pendingSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}

	return b.String()
}

func trimPrefixFold(s string, prefixes []string) string {
	lower := strings.ToLower(s)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return s[len(p):]
		}
	}

	return s
}

// NormalizeDOI lowercases a DOI and strips resolver prefixes
func NormalizeDOI(s string) string {
	s = strings.TrimSpace(s)
	s = trimPrefixFold(s, doiPrefixes)

	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePreprint lowercases a preprint identifier and strips its
// prefix and version suffix, e.g. "arXiv:1706.03762v5" becomes "1706.03762"
func NormalizePreprint(s string) string {
	s = strings.TrimSpace(s)
	s = trimPrefixFold(s, preprintPrefixes)
	s = strings.ToLower(strings.TrimSpace(s))

	return preprintVersion.ReplaceAllString(s, "")
}

// PaperKey derives the sync identity of a paper: its DOI, else its preprint
// id, else its normalized title and year
func PaperKey(r Record) (string, error) {
	if doi := NormalizeDOI(r.DOI); doi != "" {
		return "doi:" + doi, nil
	}
	if id := NormalizePreprint(r.PreprintID); id != "" {
		return "preprint:" + id, nil
	}
	if title := NormalizeTitle(r.Title); title != "" {
		return "title:" + title + ":" + strconv.Itoa(r.Year), nil
	}

	return "", ErrNoIdentity
}

// PaperID returns the entity identifier of a paper record
func PaperID(r Record) (ID, error) {
	key, err := PaperKey(r)
	if err != nil {
		return "", err
	}

	return NewID(KindPaper, key), nil
}

// CollectionKey derives the sync identity of a collection from its name
func CollectionKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(norm.NFC.String(name)))
}

// CollectionID returns the entity identifier of a collection
func CollectionID(name string) ID {
	return NewID(KindCollection, CollectionKey(name))
}
