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

package ui

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dnote/papercli/pkg/assert"
	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/dnote/papercli/pkg/cli/reconcile"
)

func newConflict(id library.ID, local, remote string) reconcile.Conflict {
	return reconcile.Conflict{
		Change:     reconcile.Change{ID: id, Class: reconcile.Conflicting, Reason: reconcile.ReasonBothModified},
		LocalText:  local,
		RemoteText: remote,
	}
}

func TestDecider(t *testing.T) {
	conflicts := []reconcile.Conflict{
		newConflict("paper:doi:10.1/a", "title: A\n", "title: A (v2)\n"),
		newConflict("paper:doi:10.1/b", "title: B\n", "title: B (v2)\n"),
		newConflict("collection:nlp", "name: NLP\n", "name: nlp\n"),
	}

	testCases := []struct {
		name     string
		input    string
		expected map[library.ID]reconcile.Decision
	}{
		{
			name:  "keys and labels",
			input: "l\nREMOTE\ns\n",
			expected: map[library.ID]reconcile.Decision{
				"paper:doi:10.1/a": reconcile.TakeLocal,
				"paper:doi:10.1/b": reconcile.TakeRemote,
				"collection:nlp":   reconcile.Skip,
			},
		},
		{
			name:  "invalid answer asked again",
			input: "x\nr\nl\nl\n",
			expected: map[library.ID]reconcile.Decision{
				"paper:doi:10.1/a": reconcile.TakeRemote,
				"paper:doi:10.1/b": reconcile.TakeLocal,
				"collection:nlp":   reconcile.TakeLocal,
			},
		},
		{
			name:  "skipped after repeated invalid answers",
			input: "x\ny\nz\nr\nr\n",
			expected: map[library.ID]reconcile.Decision{
				"paper:doi:10.1/a": reconcile.Skip,
				"paper:doi:10.1/b": reconcile.TakeRemote,
				"collection:nlp":   reconcile.TakeRemote,
			},
		},
		{
			name:  "input ends",
			input: "r\n",
			expected: map[library.ID]reconcile.Decision{
				"paper:doi:10.1/a": reconcile.TakeRemote,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			defer log.SetOutput(&out)()

			decide := NewDecider(strings.NewReader(tc.input))
			got, err := decide(context.Background(), conflicts)
			if err != nil {
				t.Fatal(err)
			}

			assert.DeepEqual(t, got, tc.expected, "decisions mismatch")
			assert.Equal(t, strings.Contains(out.String(), "conflict 1 of 3: paper:doi:10.1/a (both-modified)"), true, "header should be printed")
		})
	}
}

func TestDecider_Cancelled(t *testing.T) {
	var out bytes.Buffer
	defer log.SetOutput(&out)()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	decide := NewDecider(strings.NewReader("l\n"))
	got, err := decide(ctx, []reconcile.Conflict{newConflict("paper:doi:10.1/a", "a\n", "b\n")})

	assert.Equal(t, err, context.Canceled, "error mismatch")
	assert.Equal(t, len(got), 0, "no decision should be made")
}

func TestDecider_CancelledWhileWaiting(t *testing.T) {
	var out bytes.Buffer
	defer log.SetOutput(&out)()

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	decide := NewDecider(pr)
	done := make(chan error, 1)
	go func() {
		_, err := decide(ctx, []reconcile.Conflict{newConflict("paper:doi:10.1/a", "a\n", "b\n")})
		done <- err
	}()

	select {
	case err := <-done:
		assert.Equal(t, err, context.Canceled, "error mismatch")
	case <-time.After(5 * time.Second):
		t.Fatal("the decider kept waiting for input after cancellation")
	}
}

func TestDecider_AnswerAfterCancel(t *testing.T) {
	var out bytes.Buffer
	defer log.SetOutput(&out)()

	pr, pw := io.Pipe()
	defer pw.Close()
	decide := NewDecider(pr)
	conflicts := []reconcile.Conflict{newConflict("paper:doi:10.1/a", "a\n", "b\n")}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := decide(ctx, conflicts)
	assert.Equal(t, err, context.Canceled, "error mismatch")

	go func() {
		pw.Write([]byte("r\n"))
	}()
	got, err := decide(context.Background(), conflicts)
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, got, map[library.ID]reconcile.Decision{"paper:doi:10.1/a": reconcile.TakeRemote}, "decisions mismatch")
}

func TestConflictText(t *testing.T) {
	testCases := []struct {
		name     string
		local    string
		remote   string
		expected string
	}{
		{
			name:     "modified field",
			local:    "title: Attention\nyear: 2017\n",
			remote:   "title: Attention\nyear: 2018\n",
			expected: "title: Attention\n<<<<<<< Local\nyear: 2017\n=======\nyear: 2018\n>>>>>>> Remote\n",
		},
		{
			name:     "deleted remotely",
			local:    "title: Attention\n",
			remote:   "",
			expected: "<<<<<<< Local\ntitle: Attention\n=======\n(deleted)\n>>>>>>> Remote\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newConflict("paper:doi:10.1/a", tc.local, tc.remote)
			assert.Equal(t, ConflictText(c), tc.expected, "text mismatch")
		})
	}
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	defer log.SetOutput(&out)()

	ok, err := Confirm(strings.NewReader("y\n"), "Repair 2 violations?", false)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ok, true, "confirmation mismatch")
	assert.Equal(t, strings.Contains(out.String(), "Repair 2 violations? (y/N)"), true, "question should be printed")
}
