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
	"io"
	"sort"

	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/pkg/errors"
)

// Direction is the way an operation copies state
type Direction int

const (
	// Push makes the remote equal to the local state
	Push Direction = iota + 1
	// Pull makes the local state equal to the remote
	Pull
)

func (d Direction) String() string {
	if d == Push {
		return "push"
	}

	return "pull"
}

// Op copies the state of one entity from one side to the other. A source
// without the entity means deleting it from the target.
type Op struct {
	Change
	Direction Direction
}

func (o Op) source() *Entry {
	if o.Direction == Push {
		return o.Local
	}

	return o.Remote
}

func (o Op) target() *Entry {
	if o.Direction == Push {
		return o.Remote
	}

	return o.Local
}

// owned returns the pdf owned by the paper of the operation
func (o Op) owned() library.ID {
	if s := o.source(); s != nil && s.Owns != "" {
		return s.Owns
	}
	if t := o.target(); t != nil {
		return t.Owns
	}

	return ""
}

// noop reports whether the target already holds the source state
func (o Op) noop() bool {
	s, t := o.source(), o.target()
	if s == nil || t == nil {
		return s == nil && t == nil
	}

	return s.Fingerprint == t.Fingerprint
}

// planOps turns non-conflicting changes and resolved conflicts into
// operations, in apply order
func planOps(d Diff, conflicts []Conflict) []Op {
	var ops []Op
	for _, c := range d.Pending() {
		switch c.Class {
		case AddedLocal, ModifiedLocal, DeletedLocal:
			ops = append(ops, Op{Change: c, Direction: Push})
		case AddedRemote, ModifiedRemote, DeletedRemote:
			ops = append(ops, Op{Change: c, Direction: Pull})
		}
	}

	for _, c := range conflicts {
		if !c.Resolved() {
			continue
		}
		switch c.Resolution.Decision {
		case TakeLocal:
			ops = append(ops, Op{Change: c.Change, Direction: Push})
		case TakeRemote:
			ops = append(ops, Op{Change: c.Change, Direction: Pull})
		}
	}

	sort.Slice(ops, func(i, j int) bool {
		return library.Less(ops[i].ID, ops[j].ID)
	})

	return ops
}

// groupUnits groups operations into atomic units. A paper and the pdf it
// owns form one unit when both move in the same direction. Units come in
// apply order: collections, papers, then standalone pdfs.
func groupUnits(ops []Op) [][]Op {
	pdfs := map[library.ID]int{}
	for i, op := range ops {
		if op.Kind() == library.KindPDF {
			pdfs[op.ID] = i
		}
	}

	taken := map[int]bool{}
	var units [][]Op
	for i, op := range ops {
		if taken[i] {
			continue
		}
		unit := []Op{op}

		if op.Kind() == library.KindPaper {
			if j, ok := pdfs[op.owned()]; ok && !taken[j] && ops[j].Direction == op.Direction {
				unit = append(unit, ops[j])
				taken[j] = true
			}
		}
		taken[i] = true

		units = append(units, unit)
	}

	return units
}

// OpResult is the outcome of one operation
type OpResult struct {
	Op
	Err error
}

// Applier executes operations unit by unit
type Applier struct {
	Journal *Journal
	Local   Replica
	Remote  Replica
}

func (a *Applier) replicas(d Direction) (source, target Replica) {
	if d == Push {
		return a.Local, a.Remote
	}

	return a.Remote, a.Local
}

// payload is the source state of an operation read before its unit begins
type payload struct {
	paper      library.Record
	collection library.CollectionRecord
	present    bool
}

func (a *Applier) read(op Op) (payload, error) {
	source, _ := a.replicas(op.Direction)

	var p payload
	var err error
	var fp string
	switch op.Kind() {
	case library.KindPaper:
		p.paper, p.present, err = source.Paper(op.ID)
		if err == nil && p.present {
			fp, err = p.paper.Fingerprint()
		}
	case library.KindCollection:
		p.collection, p.present, err = source.Collection(op.ID)
		if err == nil && p.present {
			fp, err = p.collection.Fingerprint()
		}
	case library.KindPDF:
		// content is streamed inside the unit
		return payload{present: op.source() != nil}, nil
	default:
		return p, errors.Errorf("unknown entity kind '%s'", op.Kind())
	}
	if err != nil {
		return p, err
	}

	if err := checkSource(op, p.present, fp); err != nil {
		return p, err
	}

	return p, nil
}

// checkSource fails an operation whose source moved on since the snapshot
func checkSource(op Op, present bool, fp string) error {
	s := op.source()
	if s == nil && !present {
		return nil
	}
	if s == nil || !present || s.Fingerprint != fp {
		return errors.Errorf("%s changed on the %s side during the cycle", op.ID, sourceSide(op.Direction))
	}

	return nil
}

func sourceSide(d Direction) Side {
	if d == Push {
		return SideLocal
	}

	return SideRemote
}

func (a *Applier) write(u *Unit, op Op, p payload) error {
	source, target := a.replicas(op.Direction)

	switch op.Kind() {
	case library.KindPaper:
		if !p.present {
			return target.DeletePaper(u, op.ID)
		}
		return target.PutPaper(u, op.ID, p.paper)
	case library.KindCollection:
		if !p.present {
			return target.DeleteCollection(u, op.ID)
		}
		return target.PutCollection(u, op.ID, p.collection)
	}

	if !p.present {
		return target.DeletePDF(u, op.ID)
	}

	rc, ok, err := source.OpenPDF(op.ID)
	if err != nil {
		return err
	}
	if !ok {
		return checkSource(op, false, "")
	}
	defer rc.Close()

	h := library.NewFileHasher()
	if err := target.PutPDF(u, op.ID, io.TeeReader(rc, h)); err != nil {
		return err
	}

	return checkSource(op, true, h.Fingerprint())
}

// applyUnit runs one unit. It returns an error for the unit, and aborts
// with a transient or fatal error if the batch must stop.
func (a *Applier) applyUnit(ctx context.Context, ops []Op) (unitErr error, abort error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(Transient, PhaseApply, "", err)
	}

	var todo []Op
	var payloads []payload
	for _, op := range ops {
		if op.noop() {
			continue
		}
		p, err := a.read(op)
		if err != nil {
			return classify(Structural, PhaseApply, op.ID, err), nil
		}
		todo = append(todo, op)
		payloads = append(payloads, p)
	}
	if len(todo) == 0 {
		return nil, nil
	}

	u, err := a.Journal.Begin(ctx, ops[0].ID)
	if err != nil {
		return nil, classify(Transient, PhaseApply, ops[0].ID, err)
	}

	err = func() error {
		for i, op := range todo {
			if err := a.write(u, op, payloads[i]); err != nil {
				return classify(Structural, PhaseApply, op.ID, err)
			}
		}
		if err := a.Remote.Flush(u); err != nil {
			return classify(Structural, PhaseApply, ops[0].ID, err)
		}
		if err := a.Local.Flush(u); err != nil {
			return classify(Structural, PhaseApply, ops[0].ID, err)
		}
		return classify(Structural, PhaseApply, ops[0].ID, u.Commit())
	}()
	if err == nil {
		return nil, nil
	}

	log.WithFields(log.Fields{"unit": u.ID, "entity": string(ops[0].ID), "error": err}).Warn("rolling back a unit")

	if rbErr := u.Rollback(); rbErr != nil {
		return err, NewFatal(PhaseApply, errors.Wrapf(rbErr, "rolling back unit %s", u.ID))
	}
	if rsErr := a.reset(); rsErr != nil {
		return err, classify(Transient, PhaseApply, "", rsErr)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return err, classify(Transient, PhaseApply, "", ctxErr)
	}
	if IsTransient(err) || IsFatal(err) {
		return err, err
	}

	return err, nil
}

func (a *Applier) reset() error {
	if err := a.Remote.Reset(); err != nil {
		return err
	}

	return a.Local.Reset()
}

// Apply runs the units in order. A unit that fails is rolled back and
// reported, and the batch goes on. A transient or fatal error stops the
// batch and is returned along with the results so far.
func (a *Applier) Apply(ctx context.Context, units [][]Op) ([]OpResult, error) {
	var results []OpResult
	for _, unit := range units {
		unitErr, abort := a.applyUnit(ctx, unit)
		if abort != nil && unitErr == nil {
			return results, abort
		}

		for _, op := range unit {
			results = append(results, OpResult{Op: op, Err: unitErr})
		}
		if abort != nil {
			return results, abort
		}
	}

	return results, nil
}
