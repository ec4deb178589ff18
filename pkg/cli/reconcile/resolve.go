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
	"strings"

	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/pkg/errors"
)

// Strategy decides the winner of a conflict
type Strategy string

const (
	// PreferLocal always keeps the local version
	PreferLocal Strategy = "prefer-local"
	// PreferRemote always keeps the remote version
	PreferRemote Strategy = "prefer-remote"
	// PreferNewest keeps the most recently modified version. Ties go to local.
	PreferNewest Strategy = "prefer-newest"
	// Manual asks the user about every conflict
	Manual Strategy = "manual"
)

// Strategies lists the valid strategies
var Strategies = []Strategy{PreferLocal, PreferRemote, PreferNewest, Manual}

// ErrInvalidStrategy is returned for unknown strategy names
var ErrInvalidStrategy = errors.New("invalid conflict strategy")

// ParseStrategy validates a strategy name
func ParseStrategy(s string) (Strategy, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, st := range Strategies {
		if string(st) == name {
			return st, nil
		}
	}

	return "", errors.Wrapf(ErrInvalidStrategy, "'%s' (valid: %s)", s, strategyNames())
}

func strategyNames() string {
	names := make([]string, 0, len(Strategies))
	for _, st := range Strategies {
		names = append(names, string(st))
	}

	return strings.Join(names, ", ")
}

func (s Strategy) String() string {
	return string(s)
}

// Decision is the outcome chosen for a conflict
type Decision int

const (
	// Skip leaves both sides untouched and the conflict unresolved
	Skip Decision = iota
	// TakeLocal makes the remote equal to the local version
	TakeLocal
	// TakeRemote makes the local side equal to the remote version
	TakeRemote
)

func (d Decision) String() string {
	switch d {
	case TakeLocal:
		return "take-local"
	case TakeRemote:
		return "take-remote"
	}

	return "skip"
}

// Method records how a resolution was reached
type Method string

const (
	// MethodRule means the strategy decided
	MethodRule Method = "rule"
	// MethodUser means the user decided
	MethodUser Method = "user"
	// MethodPending means nobody decided yet
	MethodPending Method = "pending"
)

// Resolution is the recorded outcome of a conflict
type Resolution struct {
	Decision Decision
	Method   Method
	Strategy Strategy
}

// Conflict is a conflicting change with what each side holds, rendered as
// text for display, and its resolution
type Conflict struct {
	Change
	LocalText  string
	RemoteText string
	Resolution Resolution
}

// Resolved reports whether the conflict ends in an operation
func (c Conflict) Resolved() bool {
	return c.Resolution.Method != MethodPending && c.Resolution.Decision != Skip
}

// DecideFunc asks for decisions about conflicts. Conflicts missing from the
// returned map are skipped.
type DecideFunc func(ctx context.Context, conflicts []Conflict) (map[library.ID]Decision, error)

// Resolver resolves conflicts with a strategy, deferring to Decide where the
// strategy cannot or must not decide
type Resolver struct {
	Strategy Strategy
	Decide   DecideFunc
}

// needsUser reports whether the conflict must be decided by the user
// regardless of the strategy
func (r Resolver) needsUser(c Change) bool {
	return r.Strategy == Manual || c.Reason == ReasonContent || c.Reason.isDeletion()
}

// byRule decides a conflict with the strategy
func (r Resolver) byRule(c Change) Decision {
	switch r.Strategy {
	case PreferLocal:
		return TakeLocal
	case PreferRemote:
		return TakeRemote
	case PreferNewest:
		if c.Remote.Modified.After(c.Local.Modified) {
			return TakeRemote
		}
		return TakeLocal
	}

	return Skip
}

// Resolve resolves the conflicts the strategy can decide. It returns them
// along with the conflicts that need a user decision, which are pending.
func (r Resolver) Resolve(conflicts []Conflict) (ruled, deferred []Conflict) {
	for _, c := range conflicts {
		if r.needsUser(c.Change) {
			c.Resolution = Resolution{Decision: Skip, Method: MethodPending, Strategy: r.Strategy}
			deferred = append(deferred, c)
			continue
		}

		c.Resolution = Resolution{Decision: r.byRule(c.Change), Method: MethodRule, Strategy: r.Strategy}
		ruled = append(ruled, c)
	}

	return ruled, deferred
}

// sameState reports whether both sides of two changes hold the same content
func sameState(a, b Change) bool {
	return sameEntry(a.Local, b.Local) && sameEntry(a.Remote, b.Remote)
}

func sameEntry(a, b *Entry) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return a.Fingerprint == b.Fingerprint
}

// applyDecisions records user decisions on the conflicts of a fresh diff. A
// decision only holds if the conflict is still in the state it was shown in.
func applyDecisions(strategy Strategy, shown []Conflict, decisions map[library.ID]Decision, current []Conflict) []Conflict {
	shownByID := map[library.ID]Conflict{}
	for _, c := range shown {
		shownByID[c.ID] = c
	}

	ret := make([]Conflict, 0, len(current))
	for _, c := range current {
		c.Resolution = Resolution{Decision: Skip, Method: MethodPending, Strategy: strategy}

		s, ok := shownByID[c.ID]
		if ok && sameState(s.Change, c.Change) {
			c.Resolution = Resolution{Decision: decisions[c.ID], Method: MethodUser, Strategy: strategy}
		}
		ret = append(ret, c)
	}

	return ret
}
