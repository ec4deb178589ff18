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

// Package diff provides line-by-line diff feature by wrapping
// a package github.com/sergi/go-diff/diffmatchpatch
package diff

import (
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	// DiffEqual represents an equal diff
	DiffEqual = diffmatchpatch.DiffEqual
	// DiffInsert represents an insert diff
	DiffInsert = diffmatchpatch.DiffInsert
	// DiffDelete represents a delete diff
	DiffDelete = diffmatchpatch.DiffDelete
)

// Do computes line-by-line diff between two strings
func Do(s1, s2 string) (diffs []diffmatchpatch.Diff) {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = time.Hour

	s1Chars, s2Chars, arr := dmp.DiffLinesToRunes(s1, s2)
	diffs = dmp.DiffMainRunes(s1Chars, s2Chars, false)
	diffs = dmp.DiffCharsToLines(diffs, arr)

	return diffs
}

const (
	markerLocal  = "<<<<<<< Local\n"
	markerSep    = "=======\n"
	markerRemote = ">>>>>>> Remote\n"
)

func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}

func withNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}

	return s + "\n"
}

func writeBlock(b *strings.Builder, local, remote []string) {
	b.WriteString(markerLocal)
	for _, l := range local {
		b.WriteString(withNewline(l))
	}
	b.WriteString(markerSep)
	for _, l := range remote {
		b.WriteString(withNewline(l))
	}
	b.WriteString(markerRemote)
}

// flushHunk writes a run of changed lines. Lines are paired up one block per
// pair and whatever is left on the longer side goes into a final block.
func flushHunk(b *strings.Builder, local, remote []string) {
	n := len(local)
	if len(remote) < n {
		n = len(remote)
	}

	for i := 0; i < n; i++ {
		writeBlock(b, local[i:i+1], remote[i:i+1])
	}
	if len(local) > n || len(remote) > n {
		writeBlock(b, local[n:], remote[n:])
	}
}

// Conflict renders the two versions of a text as a single document in which
// differing lines are wrapped in conflict markers
func Conflict(local, remote string) string {
	var b strings.Builder
	var localHunk, remoteHunk []string

	for _, d := range Do(local, remote) {
		switch d.Type {
		case DiffDelete:
			localHunk = append(localHunk, splitLines(d.Text)...)
		case DiffInsert:
			remoteHunk = append(remoteHunk, splitLines(d.Text)...)
		case DiffEqual:
			if len(localHunk) > 0 || len(remoteHunk) > 0 {
				flushHunk(&b, localHunk, remoteHunk)
				localHunk, remoteHunk = nil, nil
			}
			b.WriteString(d.Text)
		}
	}
	if len(localHunk) > 0 || len(remoteHunk) > 0 {
		flushHunk(&b, localHunk, remoteHunk)
	}

	return b.String()
}
