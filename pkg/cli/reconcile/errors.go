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

	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/dnote/papercli/pkg/cli/lock"
	"github.com/pkg/errors"
)

// ErrorKind classifies a failure by how the cycle reacts to it
type ErrorKind int

const (
	// Transient errors abort the cycle. Retrying later may succeed.
	Transient ErrorKind = iota + 1
	// Structural errors affect one entity, which is marked failed
	Structural
	// ConflictUnresolved marks an entity whose conflict awaits a decision
	ConflictUnresolved
	// Fatal errors abort the cycle and need the user to step in
	Fatal
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "TRANSIENT"
	case Structural:
		return "STRUCTURAL"
	case ConflictUnresolved:
		return "CONFLICT-UNRESOLVED"
	case Fatal:
		return "FATAL"
	}

	return "UNKNOWN"
}

// Phase is the step of a cycle in which an error occurred
type Phase string

const (
	PhaseLock     Phase = "lock"
	PhaseRecover  Phase = "recover"
	PhaseSnapshot Phase = "snapshot"
	PhaseCompare  Phase = "compare"
	PhaseResolve  Phase = "resolve"
	PhaseApply    Phase = "apply"
	PhaseCursor   Phase = "cursor"
)

// Error is a classified engine error
type Error struct {
	Kind   ErrorKind
	Phase  Phase
	Entity library.ID
	Err    error
}

func (e *Error) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s (%s, %s): %v", e.Kind, e.Phase, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Phase, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Cause returns the underlying error
func (e *Error) Cause() error {
	return e.Err
}

func newError(kind ErrorKind, phase Phase, entity library.ID, err error) *Error {
	return &Error{Kind: kind, Phase: phase, Entity: entity, Err: err}
}

// NewTransient returns a transient error for the given phase
func NewTransient(phase Phase, err error) error {
	return newError(Transient, phase, "", err)
}

// NewFatal returns a fatal error for the given phase
func NewFatal(phase Phase, err error) error {
	return newError(Fatal, phase, "", err)
}

// NewStructural returns a structural error for the given entity
func NewStructural(phase Phase, entity library.ID, err error) error {
	return newError(Structural, phase, entity, err)
}

// KindOf returns the kind of the given error. Context cancellation and a
// busy lock are transient. Other unclassified errors are fatal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return 0
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	if isInterruption(err) {
		return Transient
	}

	return Fatal
}

func isInterruption(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, lock.ErrBusy)
}

// IsTransient reports whether the error is transient
func IsTransient(err error) bool {
	return KindOf(err) == Transient
}

// IsFatal reports whether the error is fatal
func IsFatal(err error) bool {
	return KindOf(err) == Fatal
}

// IsStructural reports whether the error is structural
func IsStructural(err error) bool {
	return KindOf(err) == Structural
}

// classify attaches a kind to an error that has none yet. Errors that are
// already classified keep their kind.
func classify(kind ErrorKind, phase Phase, entity library.ID, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if isInterruption(err) {
		kind = Transient
	}

	return newError(kind, phase, entity, err)
}
