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

package validate

import (
	"fmt"
	"testing"

	"github.com/dnote/papercli/pkg/assert"
	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/pkg/errors"
)

func TestCollectionName(t *testing.T) {
	testCases := []struct {
		input    string
		expected error
	}{
		{
			input:    "nlp",
			expected: nil,
		},
		{
			input:    "Reading group (2024)",
			expected: nil,
		},
		{
			input:    "",
			expected: ErrCollectionNameEmpty,
		},
		{
			input:    "   ",
			expected: ErrCollectionNameEmpty,
		},
		{
			input:    "nlp\nvision",
			expected: ErrCollectionNameMultiline,
		},
		{
			input:    "nlp\r\nvision",
			expected: ErrCollectionNameMultiline,
		},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%q", tc.input), func(t *testing.T) {
			actual := CollectionName(tc.input)

			assert.Equal(t, actual, tc.expected, "result mismatch")
		})
	}
}

func TestRecord(t *testing.T) {
	testCases := []struct {
		name     string
		input    library.Record
		expected error
	}{
		{
			name:     "valid",
			input:    library.Record{Title: "Deep Residual Learning", Year: 2016, Authors: []string{"Kaiming He"}, Collections: []string{"vision"}},
			expected: nil,
		},
		{
			name:     "no year",
			input:    library.Record{Title: "Deep Residual Learning"},
			expected: nil,
		},
		{
			name:     "multiline title",
			input:    library.Record{Title: "Deep Residual\nLearning"},
			expected: ErrTitleMultiline,
		},
		{
			name:     "negative year",
			input:    library.Record{Title: "Deep Residual Learning", Year: -1},
			expected: ErrYearInvalid,
		},
		{
			name:     "year too large",
			input:    library.Record{Title: "Deep Residual Learning", Year: 20160},
			expected: ErrYearInvalid,
		},
		{
			name:     "empty author",
			input:    library.Record{Title: "Deep Residual Learning", Authors: []string{"Kaiming He", " "}},
			expected: ErrAuthorEmpty,
		},
		{
			name:     "empty collection",
			input:    library.Record{Title: "Deep Residual Learning", Collections: []string{""}},
			expected: ErrCollectionNameEmpty,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := Record(tc.input)

			assert.Equal(t, errors.Cause(actual), tc.expected, "result mismatch")
		})
	}
}
