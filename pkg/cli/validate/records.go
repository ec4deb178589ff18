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

// Package validate checks records read from outside the library before they
// are synced into it
package validate

import (
	"strings"

	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/pkg/errors"
)

// maxYear is the largest publication year accepted
const maxYear = 9999

// ErrCollectionNameEmpty is an error for an empty collection name
var ErrCollectionNameEmpty = errors.New("The collection name is empty")

// ErrCollectionNameMultiline is an error for a collection name that has linebreaks
var ErrCollectionNameMultiline = errors.New("The collection name contains multiple lines")

// ErrAuthorEmpty is an error for an author without a name
var ErrAuthorEmpty = errors.New("An author name is empty")

// ErrYearInvalid is an error for a publication year out of range
var ErrYearInvalid = errors.New("The year is out of range")

// ErrTitleMultiline is an error for a title that has linebreaks
var ErrTitleMultiline = errors.New("The title contains multiple lines")

func isMultiline(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}

// CollectionName validates a collection name
func CollectionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrCollectionNameEmpty
	}

	if isMultiline(name) {
		return ErrCollectionNameMultiline
	}

	return nil
}

// Record validates a paper record
func Record(r library.Record) error {
	if isMultiline(r.Title) {
		return ErrTitleMultiline
	}

	if r.Year < 0 || r.Year > maxYear {
		return errors.Wrapf(ErrYearInvalid, "%d", r.Year)
	}

	for _, a := range r.Authors {
		if strings.TrimSpace(a) == "" {
			return ErrAuthorEmpty
		}
	}

	for _, c := range r.Collections {
		if err := CollectionName(c); err != nil {
			return errors.Wrapf(err, "collection '%s'", c)
		}
	}

	return nil
}
