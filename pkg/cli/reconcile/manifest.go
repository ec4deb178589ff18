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
	"sort"
	"time"

	"github.com/dnote/papercli/pkg/cli/library"
)

// Side names one of the two replicas
type Side string

const (
	// SideLocal is the local database and pdf directory
	SideLocal Side = "local"
	// SideRemote is the remote mirror
	SideRemote Side = "remote"
)

// Entry is the state of one entity on one side
type Entry struct {
	ID          library.ID
	Fingerprint string
	Modified    time.Time
	// Owns is the pdf owned by a paper, if any
	Owns library.ID
}

// Kind returns the kind of the entity
func (e Entry) Kind() library.Kind {
	return e.ID.Kind()
}

// Manifest is a content-addressed snapshot of one side. An entity exists on
// the side if and only if it has an entry.
type Manifest struct {
	Side       Side
	CapturedAt time.Time
	Entries    map[library.ID]Entry
	// Failures lists entities that could not be read. They are excluded
	// from the cycle rather than treated as deleted.
	Failures []*Error
}

// NewManifest returns an empty manifest
func NewManifest(side Side, capturedAt time.Time) *Manifest {
	return &Manifest{
		Side:       side,
		CapturedAt: capturedAt,
		Entries:    map[library.ID]Entry{},
	}
}

// Add adds an entry to the manifest
func (m *Manifest) Add(e Entry) {
	m.Entries[e.ID] = e
}

// Fail removes the entity from the manifest and records the failure
func (m *Manifest) Fail(id library.ID, err error) {
	delete(m.Entries, id)
	m.Failures = append(m.Failures, newError(Structural, PhaseSnapshot, id, err))
}

// Get returns the entry of the entity, or nil if it is absent
func (m *Manifest) Get(id library.ID) *Entry {
	e, ok := m.Entries[id]
	if !ok {
		return nil
	}

	return &e
}

// failed returns the set of entities that could not be read
func (m *Manifest) failed() map[library.ID]bool {
	ret := map[library.ID]bool{}
	for _, f := range m.Failures {
		if f.Entity != "" {
			ret[f.Entity] = true
		}
	}

	return ret
}

// IDs returns the identifiers in the manifest in apply order
func (m *Manifest) IDs() []library.ID {
	ids := make([]library.ID, 0, len(m.Entries))
	for id := range m.Entries {
		ids = append(ids, id)
	}
	sortIDs(ids)

	return ids
}

func sortIDs(ids []library.ID) {
	sort.Slice(ids, func(i, j int) bool {
		return library.Less(ids[i], ids[j])
	})
}
