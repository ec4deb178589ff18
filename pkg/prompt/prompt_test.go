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

package prompt

import (
	"bufio"
	"strings"
	"testing"

	"github.com/dnote/papercli/pkg/assert"
	"github.com/pkg/errors"
)

func TestFormatQuestion(t *testing.T) {
	testCases := []struct {
		question   string
		optimistic bool
		expected   string
	}{
		{
			question:   "Apply 3 repairs?",
			optimistic: false,
			expected:   "Apply 3 repairs? (y/N)",
		},
		{
			question:   "Continue?",
			optimistic: true,
			expected:   "Continue? (Y/n)",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.question, func(t *testing.T) {
			result := FormatQuestion(tc.question, tc.optimistic)
			assert.Equal(t, result, tc.expected, "formatted question mismatch")
		})
	}
}

var conflictChoices = []Choice{
	{Key: "l", Label: "local", Value: "take-local"},
	{Key: "r", Label: "remote", Value: "take-remote"},
	{Key: "s", Label: "skip", Value: "skip"},
}

func TestFormatChoices(t *testing.T) {
	result := FormatChoices("Keep which version?", conflictChoices)
	assert.Equal(t, result, "Keep which version? [l]ocal/[r]emote/[s]kip", "formatted choices mismatch")
}

func TestReadYesNo(t *testing.T) {
	testCases := []struct {
		name       string
		input      string
		optimistic bool
		expected   bool
	}{
		{name: "pessimistic with y", input: "y\n", optimistic: false, expected: true},
		{name: "pessimistic with YES", input: "YES\n", optimistic: false, expected: true},
		{name: "pessimistic with n", input: "n\n", optimistic: false, expected: false},
		{name: "pessimistic with empty", input: "\n", optimistic: false, expected: false},
		{name: "optimistic with empty", input: "\n", optimistic: true, expected: true},
		{name: "optimistic with n", input: "n\n", optimistic: true, expected: false},
		{name: "no trailing newline", input: "y", optimistic: false, expected: true},
		{name: "invalid input defaults to no", input: "maybe\n", optimistic: false, expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ReadYesNo(strings.NewReader(tc.input), tc.optimistic)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			assert.Equal(t, result, tc.expected, "ReadYesNo result mismatch")
		})
	}
}

func TestReadYesNo_Error(t *testing.T) {
	_, err := ReadYesNo(strings.NewReader(""), false)
	if err == nil {
		t.Fatal("expected error when reading from empty reader")
	}
}

func TestReadChoice(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{input: "l\n", expected: "take-local"},
		{input: "Remote\n", expected: "take-remote"},
		{input: " s \n", expected: "skip"},
		{input: "take-local\n", expected: "take-local"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			c, err := ReadChoice(strings.NewReader(tc.input), conflictChoices)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			assert.Equal(t, c.Value, tc.expected, "choice mismatch")
		})
	}
}

func TestReadChoice_Sequence(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("l\nr\ns\n"))

	var got []string
	for i := 0; i < 3; i++ {
		c, err := ReadChoice(r, conflictChoices)
		if err != nil {
			t.Fatalf("reading answer %d: %v", i, err)
		}
		got = append(got, c.Value)
	}

	assert.DeepEqual(t, got, []string{"take-local", "take-remote", "skip"}, "answers mismatch")
}

func TestReadChoice_Invalid(t *testing.T) {
	_, err := ReadChoice(strings.NewReader("x\n"), conflictChoices)

	assert.Equal(t, errors.Cause(err), ErrInvalidChoice, "error mismatch")
}
