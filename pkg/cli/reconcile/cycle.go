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
	"fmt"
	"strings"
	"time"

	"github.com/dnote/papercli/pkg/cli/consts"
	"github.com/dnote/papercli/pkg/cli/database"
	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/dnote/papercli/pkg/cli/lock"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/dnote/papercli/pkg/cli/utils"
	"github.com/dnote/papercli/pkg/clock"
	"github.com/pkg/errors"
)

// Engine runs sync cycles between the local replica and the remote mirror
type Engine struct {
	DB         *database.DB
	Local      Replica
	Remote     Replica
	Journal    *Journal
	Locker     *lock.Locker
	CursorPath string
	Clock      clock.Clock
}

// Options configures one cycle
type Options struct {
	Strategy Strategy
	// Decide is asked about conflicts the strategy does not decide. Without
	// it, such conflicts stay pending.
	Decide DecideFunc
}

// state is what a cycle knows about both sides at one point in time
type state struct {
	cursor  *Cursor
	local   *Manifest
	remote  *Manifest
	diff    Diff
	release func()
}

func (s *state) close() {
	if s != nil && s.release != nil {
		s.release()
		s.release = nil
	}
}

// capture reads the cursor and both sides and compares them
func (e *Engine) capture(ctx context.Context) (*state, error) {
	cursor, err := LoadCursor(e.CursorPath)
	if err != nil {
		return nil, err
	}

	st := &state{cursor: cursor}
	if p, ok := e.Remote.(Preparer); ok {
		release, err := p.Prepare(ctx, !cursor.Exists())
		if err != nil {
			return nil, classify(Transient, PhaseSnapshot, "", err)
		}
		st.release = release
	}

	st.local, err = e.Local.Snapshot(ctx)
	if err != nil {
		st.close()
		return nil, classify(Fatal, PhaseSnapshot, "", err)
	}
	st.remote, err = e.Remote.Snapshot(ctx)
	if err != nil {
		st.close()
		return nil, classify(Transient, PhaseSnapshot, "", err)
	}

	st.diff = Compare(st.local, st.remote, cursor)

	return st, nil
}

// conflicts wraps the conflicting changes of a diff
func conflicts(d Diff) []Conflict {
	var ret []Conflict
	for _, c := range d.Conflicts() {
		ret = append(ret, Conflict{Change: c})
	}

	return ret
}

// Run runs one cycle: lock, recover interrupted units, snapshot both sides,
// compare, resolve, apply and advance the cursor. The cursor is not written
// if the cycle aborts.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	cycleID, err := utils.NewID()
	if err != nil {
		return nil, NewFatal(PhaseLock, err)
	}
	entry := log.WithFields(log.Fields{"cycle": cycleID, "strategy": string(opts.Strategy)})

	unlock, err := e.Locker.TryLock()
	if err != nil {
		return nil, classify(Transient, PhaseLock, "", err)
	}
	defer func() {
		if unlock != nil {
			unlock()
		}
	}()

	n, err := e.Journal.Recover()
	if err != nil {
		return nil, classify(Fatal, PhaseRecover, "", err)
	}
	if n > 0 {
		log.Debug("recovered %d interrupted units\n", n)
	}

	st, err := e.capture(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { st.close() }()

	resolver := Resolver{Strategy: opts.Strategy, Decide: opts.Decide}
	ruled, deferred := resolver.Resolve(conflicts(st.diff))

	if len(deferred) > 0 && opts.Decide != nil {
		shown := e.describe(deferred)

		// the user may take a while, so nothing is held meanwhile
		st.close()
		unlock()
		unlock = nil

		decisions, err := opts.Decide(ctx, shown)
		if err != nil {
			return nil, classify(Fatal, PhaseResolve, "", err)
		}

		unlock, err = e.Locker.TryLock()
		if err != nil {
			return nil, classify(Transient, PhaseLock, "", err)
		}
		st, err = e.capture(ctx)
		if err != nil {
			return nil, err
		}

		var current []Conflict
		ruled, current = resolver.Resolve(conflicts(st.diff))
		deferred = applyDecisions(opts.Strategy, shown, decisions, current)
	}

	result := &Result{CycleID: cycleID, Excluded: st.diff.Excluded}
	result.Failures = append(result.Failures, st.local.Failures...)
	result.Failures = append(result.Failures, st.remote.Failures...)
	result.Conflicts = append(append(result.Conflicts, ruled...), deferred...)
	sortConflicts(result.Conflicts)
	for _, c := range st.diff.Changes {
		if c.Class == Unchanged {
			result.Unchanged++
		}
	}

	applier := &Applier{Journal: e.Journal, Local: e.Local, Remote: e.Remote}
	results, err := applier.Apply(ctx, groupUnits(planOps(st.diff, result.Conflicts)))
	for _, r := range results {
		if r.Err != nil {
			result.Failures = append(result.Failures, asError(r.ID, r.Err))
			continue
		}
		result.count(r.Op)
	}
	if err != nil {
		entry.ErrorWrap(err, "cycle aborted")
		return result, err
	}

	if err := e.advance(st, results, cycleID); err != nil {
		return result, err
	}

	entry.Info(result.Summary())

	return result, nil
}

// advance moves the cursor for the entities that are in sync after the cycle
// and saves it if anything changed
func (e *Engine) advance(st *state, results []OpResult, cycleID string) error {
	next := st.cursor.clone()

	for _, id := range st.diff.Dropped {
		delete(next.Entries, id)
	}
	for _, c := range st.diff.Changes {
		if c.Class == Unchanged {
			next.Entries[c.ID] = CursorEntry{Kind: c.Kind(), Local: c.Local.Fingerprint, Remote: c.Remote.Fingerprint}
		}
	}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		src := r.source()
		if src == nil {
			delete(next.Entries, r.ID)
			continue
		}
		next.Entries[r.ID] = CursorEntry{Kind: r.Kind(), Local: src.Fingerprint, Remote: src.Fingerprint}
	}

	if st.cursor.Exists() && st.cursor.equalEntries(next) {
		return nil
	}

	now := e.Clock.Now().UTC()
	next.CycleID = cycleID
	next.CompletedAt = now
	if err := next.Save(e.CursorPath); err != nil {
		return NewTransient(PhaseCursor, err)
	}
	if err := database.UpsertSystem(e.DB, consts.SystemLastSyncAt, now.Unix()); err != nil {
		return NewTransient(PhaseCursor, err)
	}

	return nil
}

func asError(id library.ID, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return newError(Structural, PhaseApply, id, err)
}

func sortConflicts(cs []Conflict) {
	ids := make([]library.ID, 0, len(cs))
	byID := map[library.ID]Conflict{}
	for _, c := range cs {
		ids = append(ids, c.ID)
		byID[c.ID] = c
	}
	sortIDs(ids)
	for i, id := range ids {
		cs[i] = byID[id]
	}
}

// describe renders both sides of the conflicts for display
func (e *Engine) describe(cs []Conflict) []Conflict {
	ret := make([]Conflict, 0, len(cs))
	for _, c := range cs {
		if c.Local != nil {
			c.LocalText = renderSide(e.Local, c.Change, c.Local)
		}
		if c.Remote != nil {
			c.RemoteText = renderSide(e.Remote, c.Change, c.Remote)
		}
		ret = append(ret, c)
	}

	return ret
}

func renderSide(r Replica, c Change, entry *Entry) string {
	switch c.Kind() {
	case library.KindPaper:
		rec, ok, err := r.Paper(c.ID)
		if err != nil || !ok {
			return fmt.Sprintf("(unreadable: %v)\n", err)
		}
		return RenderRecord(rec)
	case library.KindCollection:
		rec, ok, err := r.Collection(c.ID)
		if err != nil || !ok {
			return fmt.Sprintf("(unreadable: %v)\n", err)
		}
		return fmt.Sprintf("name: %s\ndescription: %s\n", rec.Name, rec.Description)
	}

	return fmt.Sprintf("fingerprint: %s\nmodified: %s\n", entry.Fingerprint, entry.Modified.Format(time.RFC3339))
}

// RenderRecord renders the fields of a record one per line
func RenderRecord(rec library.Record) string {
	var b strings.Builder
	for _, f := range rec.Fields() {
		if f.Value == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", f.Name, strings.ReplaceAll(f.Value, "\n", "; "))
	}

	return b.String()
}
