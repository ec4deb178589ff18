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

package reconcile

import (
	"context"
	"testing"

	"github.com/dnote/papercli/pkg/assert"
	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/dnote/papercli/pkg/cli/lock"
	"github.com/pkg/errors"
)

func TestParseStrategy(t *testing.T) {
	testCases := []struct {
		input    string
		expected Strategy
		ok       bool
	}{
		{"prefer-local", PreferLocal, true},
		{"Prefer-Remote", PreferRemote, true},
		{" prefer-newest ", PreferNewest, true},
		{"manual", Manual, true},
		{"newest", "", false},
		{"", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseStrategy(tc.input)
			if tc.ok {
				assert.Equal(t, err, nil, "error mismatch")
				assert.Equal(t, got, tc.expected, "strategy mismatch")
				return
			}

			assert.ErrorKind(t, err, func(err error) bool {
				return errors.Is(err, ErrInvalidStrategy)
			}, "invalid strategy")
		})
	}
}

func conflictOf(id library.ID, reason Reason, local, remote *Entry) Conflict {
	return Conflict{Change: Change{ID: id, Class: Conflicting, Reason: reason, Local: local, Remote: remote}}
}

func TestResolveByRule(t *testing.T) {
	id := library.ID("paper:doi:10.1/a")
	older := &Entry{ID: id, Fingerprint: "h1", Modified: t1}
	newer := &Entry{ID: id, Fingerprint: "h2", Modified: t2}

	testCases := []struct {
		name     string
		strategy Strategy
		local    *Entry
		remote   *Entry
		expected Decision
	}{
		{"prefer local", PreferLocal, older, newer, TakeLocal},
		{"prefer remote", PreferRemote, newer, older, TakeRemote},
		{"prefer newest remote later", PreferNewest, older, newer, TakeRemote},
		{"prefer newest local later", PreferNewest, newer, older, TakeLocal},
		{"prefer newest tie", PreferNewest, &Entry{ID: id, Fingerprint: "h1", Modified: t1}, &Entry{ID: id, Fingerprint: "h2", Modified: t1}, TakeLocal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := Resolver{Strategy: tc.strategy}

			ruled, deferred := r.Resolve([]Conflict{conflictOf(id, ReasonBothModified, tc.local, tc.remote)})

			assert.Equalf(t, len(ruled), 1, "ruled count mismatch")
			assert.Equal(t, len(deferred), 0, "deferred count mismatch")
			assert.Equal(t, ruled[0].Resolution, Resolution{Decision: tc.expected, Method: MethodRule, Strategy: tc.strategy}, "resolution mismatch")
		})
	}
}

func TestResolveDefersToUser(t *testing.T) {
	paper := library.ID("paper:doi:10.1/a")
	pdf := library.PDFID("a.pdf")
	e := &Entry{ID: paper, Fingerprint: "h1", Modified: t1}

	testCases := []struct {
		name     string
		strategy Strategy
		conflict Conflict
	}{
		{"manual strategy", Manual, conflictOf(paper, ReasonBothModified, e, e)},
		{"pdf content", PreferLocal, conflictOf(pdf, ReasonContent, e, e)},
		{"local deleted", PreferNewest, conflictOf(paper, ReasonLocalDeleted, nil, e)},
		{"remote deleted", PreferRemote, conflictOf(paper, ReasonRemoteDeleted, e, nil)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := Resolver{Strategy: tc.strategy}

			ruled, deferred := r.Resolve([]Conflict{tc.conflict})

			assert.Equal(t, len(ruled), 0, "ruled count mismatch")
			assert.Equalf(t, len(deferred), 1, "deferred count mismatch")
			assert.Equal(t, deferred[0].Resolution.Method, MethodPending, "method mismatch")
			assert.Equal(t, deferred[0].Resolved(), false, "a deferred conflict is not resolved")
		})
	}
}

func TestApplyDecisions(t *testing.T) {
	a := library.ID("paper:doi:10.1/a")
	b := library.ID("paper:doi:10.1/b")
	c := library.ID("paper:doi:10.1/c")

	shown := []Conflict{
		conflictOf(a, ReasonBothModified, &Entry{ID: a, Fingerprint: "l1"}, &Entry{ID: a, Fingerprint: "r1"}),
		conflictOf(b, ReasonBothModified, &Entry{ID: b, Fingerprint: "l1"}, &Entry{ID: b, Fingerprint: "r1"}),
	}
	decisions := map[library.ID]Decision{a: TakeRemote, b: TakeLocal}
	current := []Conflict{
		// unchanged since shown
		conflictOf(a, ReasonBothModified, &Entry{ID: a, Fingerprint: "l1"}, &Entry{ID: a, Fingerprint: "r1"}),
		// edited remotely while the user was deciding
		conflictOf(b, ReasonBothModified, &Entry{ID: b, Fingerprint: "l1"}, &Entry{ID: b, Fingerprint: "r2"}),
		// new conflict never shown
		conflictOf(c, ReasonBothModified, &Entry{ID: c, Fingerprint: "l1"}, &Entry{ID: c, Fingerprint: "r1"}),
	}

	got := applyDecisions(Manual, shown, decisions, current)

	assert.Equalf(t, len(got), 3, "count mismatch")
	assert.Equal(t, got[0].Resolution, Resolution{Decision: TakeRemote, Method: MethodUser, Strategy: Manual}, "a resolution")
	assert.Equal(t, got[1].Resolution.Method, MethodPending, "b must stay pending")
	assert.Equal(t, got[2].Resolution.Method, MethodPending, "c must stay pending")
}

func TestPlanOpsAndUnits(t *testing.T) {
	paper := library.ID("paper:doi:10.1/a")
	ownedPDF := library.PDFID("a.pdf")
	loosePDF := library.PDFID("notes/loose.pdf")
	coll := library.ID("collection:ml")
	other := library.ID("paper:doi:10.1/b")

	diff := Diff{Changes: []Change{
		{ID: coll, Class: AddedRemote, Remote: &Entry{ID: coll, Fingerprint: "c"}},
		{ID: paper, Class: ModifiedRemote, Local: &Entry{ID: paper, Fingerprint: "p1"}, Remote: &Entry{ID: paper, Fingerprint: "p2", Owns: ownedPDF}},
		{ID: other, Class: Conflicting, Reason: ReasonBothModified, Local: &Entry{ID: other, Fingerprint: "o1"}, Remote: &Entry{ID: other, Fingerprint: "o2"}},
		{ID: ownedPDF, Class: AddedRemote, Remote: &Entry{ID: ownedPDF, Fingerprint: "f"}},
		{ID: loosePDF, Class: DeletedLocal, Remote: &Entry{ID: loosePDF, Fingerprint: "g"}},
	}}
	conflicts := []Conflict{{
		Change:     *diff.Get(other),
		Resolution: Resolution{Decision: TakeLocal, Method: MethodRule, Strategy: PreferLocal},
	}}

	units := groupUnits(planOps(diff, conflicts))

	var got [][]string
	for _, u := range units {
		var ids []string
		for _, op := range u {
			ids = append(ids, string(op.ID)+" "+op.Direction.String())
		}
		got = append(got, ids)
	}
	assert.DeepEqual(t, got, [][]string{
		{"collection:ml pull"},
		{"paper:doi:10.1/a pull", "pdf:a.pdf pull"},
		{"paper:doi:10.1/b push"},
		{"pdf:notes/loose.pdf push"},
	}, "units mismatch")
}

func TestPlanOpsSkipsUnresolved(t *testing.T) {
	id := library.ID("paper:doi:10.1/a")
	change := Change{ID: id, Class: Conflicting, Reason: ReasonBothModified, Local: &Entry{ID: id}, Remote: &Entry{ID: id}}
	conflicts := []Conflict{
		{Change: change, Resolution: Resolution{Decision: Skip, Method: MethodUser, Strategy: Manual}},
	}

	ops := planOps(Diff{Changes: []Change{change}}, conflicts)

	assert.Equal(t, len(ops), 0, "a skipped conflict must produce no operation")
}

func TestResultSummary(t *testing.T) {
	testCases := []struct {
		name     string
		result   Result
		expected string
	}{
		{
			name:     "nothing",
			result:   Result{Unchanged: 4},
			expected: "No changes to sync - local and remote are already in sync",
		},
		{
			name:     "changes",
			result:   Result{PapersAdded: 2, PDFsCopied: 1, CollectionsUpdated: 3},
			expected: "Sync completed: 2 papers added, 3 collections updated, 1 PDF copied",
		},
		{
			name:     "failures",
			result:   Result{PapersDeleted: 1, Failures: []*Error{{Kind: Structural}}},
			expected: "Sync completed: 1 paper deleted, 1 failed",
		},
		{
			name: "pending conflicts",
			result: Result{PapersAdded: 1, Conflicts: []Conflict{
				{Resolution: Resolution{Method: MethodPending}},
				{Resolution: Resolution{Method: MethodUser, Decision: Skip}},
				{Resolution: Resolution{Method: MethodRule, Decision: TakeLocal}},
			}},
			expected: "Sync completed with 2 conflicts that need resolution",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.result.Summary(), tc.expected, "summary mismatch")
		})
	}
}

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{"nil", nil, 0},
		{"transient", NewTransient(PhaseSnapshot, errors.New("unmounted")), Transient},
		{"wrapped structural", errors.Wrap(NewStructural(PhaseApply, "pdf:a.pdf", errors.New("io")), "applying"), Structural},
		{"fatal", NewFatal(PhaseCursor, errors.New("corrupt")), Fatal},
		{"cancelled", errors.Wrap(context.Canceled, "snapshot"), Transient},
		{"busy", lock.ErrBusy, Transient},
		{"unclassified", errors.New("boom"), Fatal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, KindOf(tc.err), tc.expected, "kind mismatch")
		})
	}
}

func TestClassifyKeepsKind(t *testing.T) {
	err := classify(Structural, PhaseApply, "pdf:a.pdf", NewTransient(PhaseApply, errors.New("unmounted")))
	assert.Equal(t, KindOf(err), Transient, "kind mismatch")

	err = classify(Structural, PhaseApply, "pdf:a.pdf", context.Canceled)
	assert.Equal(t, KindOf(err), Transient, "cancellation must be transient")

	assert.Equal(t, classify(Fatal, PhaseApply, "", nil), nil, "nil must stay nil")
}
