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
	"fmt"
	"strings"

	"github.com/dnote/papercli/pkg/cli/library"
)

// Result is the outcome of a cycle
type Result struct {
	CycleID string

	PapersAdded        int
	PapersUpdated      int
	PapersDeleted      int
	CollectionsAdded   int
	CollectionsUpdated int
	CollectionsDeleted int
	PDFsCopied         int
	PDFsUpdated        int
	PDFsDeleted        int

	Unchanged int
	// Conflicts holds every conflict of the cycle with its resolution
	Conflicts []Conflict
	// Failures holds entities that could not be read or applied
	Failures []*Error
	// Excluded lists entities left out of the cycle because a side could
	// not be read
	Excluded []library.ID
}

// Pending returns the conflicts that were not resolved
func (r *Result) Pending() []Conflict {
	var ret []Conflict
	for _, c := range r.Conflicts {
		if !c.Resolved() {
			ret = append(ret, c)
		}
	}

	return ret
}

// Changed returns the number of entities written on either side
func (r *Result) Changed() int {
	return r.PapersAdded + r.PapersUpdated + r.PapersDeleted +
		r.CollectionsAdded + r.CollectionsUpdated + r.CollectionsDeleted +
		r.PDFsCopied + r.PDFsUpdated + r.PDFsDeleted
}

func (r *Result) count(op Op) {
	var added, updated, deleted *int
	switch op.Kind() {
	case library.KindPaper:
		added, updated, deleted = &r.PapersAdded, &r.PapersUpdated, &r.PapersDeleted
	case library.KindCollection:
		added, updated, deleted = &r.CollectionsAdded, &r.CollectionsUpdated, &r.CollectionsDeleted
	case library.KindPDF:
		added, updated, deleted = &r.PDFsCopied, &r.PDFsUpdated, &r.PDFsDeleted
	default:
		return
	}

	switch {
	case op.noop():
	case op.source() == nil:
		*deleted++
	case op.target() == nil:
		*added++
	default:
		*updated++
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}

	return fmt.Sprintf("%d %ss", n, noun)
}

// Summary renders the result in one line
func (r *Result) Summary() string {
	if pending := len(r.Pending()); pending > 0 {
		return fmt.Sprintf("Sync completed with %s that need resolution", plural(pending, "conflict"))
	}

	if r.Changed() == 0 && len(r.Failures) == 0 {
		return "No changes to sync - local and remote are already in sync"
	}

	parts := []struct {
		n    int
		noun string
		verb string
	}{
		{r.PapersAdded, "paper", "added"},
		{r.PapersUpdated, "paper", "updated"},
		{r.PapersDeleted, "paper", "deleted"},
		{r.CollectionsAdded, "collection", "added"},
		{r.CollectionsUpdated, "collection", "updated"},
		{r.CollectionsDeleted, "collection", "deleted"},
		{r.PDFsCopied, "PDF", "copied"},
		{r.PDFsUpdated, "PDF", "updated"},
		{r.PDFsDeleted, "PDF", "deleted"},
	}

	var summary []string
	for _, p := range parts {
		if p.n > 0 {
			summary = append(summary, plural(p.n, p.noun)+" "+p.verb)
		}
	}
	if n := len(r.Failures); n > 0 {
		summary = append(summary, fmt.Sprintf("%d failed", n))
	}

	return "Sync completed: " + strings.Join(summary, ", ")
}
