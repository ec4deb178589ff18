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
	"github.com/dnote/papercli/pkg/cli/library"
)

// Class is the classification of an entity after comparing both sides
type Class int

const (
	Unchanged Class = iota
	AddedLocal
	AddedRemote
	ModifiedLocal
	ModifiedRemote
	DeletedLocal
	DeletedRemote
	Conflicting
)

var classNames = map[Class]string{
	Unchanged:      "unchanged",
	AddedLocal:     "added-local",
	AddedRemote:    "added-remote",
	ModifiedLocal:  "modified-local",
	ModifiedRemote: "modified-remote",
	DeletedLocal:   "deleted-local",
	DeletedRemote:  "deleted-remote",
	Conflicting:    "conflict",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}

	return "unknown"
}

// Reason explains why an entity is in conflict
type Reason string

const (
	// ReasonBothModified means both sides changed since the last sync
	ReasonBothModified Reason = "both-modified"
	// ReasonBothAdded means both sides have the entity, differently, and
	// there is no common ancestor
	ReasonBothAdded Reason = "both-added"
	// ReasonLocalDeleted means the local side deleted what the remote changed
	ReasonLocalDeleted Reason = "local-deleted-remote-modified"
	// ReasonRemoteDeleted means the remote side deleted what the local changed
	ReasonRemoteDeleted Reason = "local-modified-remote-deleted"
	// ReasonContent means the bytes of a pdf differ
	ReasonContent Reason = "content"
)

// isDeletion reports whether one side of the conflict deleted the entity
func (r Reason) isDeletion() bool {
	return r == ReasonLocalDeleted || r == ReasonRemoteDeleted
}

// Change is the classification of one entity
type Change struct {
	ID     library.ID
	Class  Class
	Reason Reason
	Local  *Entry
	Remote *Entry
	Base   *CursorEntry
}

// Kind returns the kind of the entity
func (c Change) Kind() library.Kind {
	return c.ID.Kind()
}

// Diff is the result of comparing two manifests
type Diff struct {
	// Changes holds every entity present on either side, in apply order,
	// including unchanged ones
	Changes []Change
	// Dropped lists cursor entries whose entity is gone from both sides
	Dropped []library.ID
	// Excluded lists entities that failed to be read on either side
	Excluded []library.ID
}

// Conflicts returns the changes classified as conflicts
func (d Diff) Conflicts() []Change {
	var ret []Change
	for _, c := range d.Changes {
		if c.Class == Conflicting {
			ret = append(ret, c)
		}
	}

	return ret
}

// Pending returns the changes that need an operation, conflicts excluded
func (d Diff) Pending() []Change {
	var ret []Change
	for _, c := range d.Changes {
		if c.Class != Unchanged && c.Class != Conflicting {
			ret = append(ret, c)
		}
	}

	return ret
}

// Get returns the change of the entity, or nil if it has none
func (d Diff) Get(id library.ID) *Change {
	for i := range d.Changes {
		if d.Changes[i].ID == id {
			return &d.Changes[i]
		}
	}

	return nil
}

// Compare classifies every entity of the two manifests against the cursor
func Compare(local, remote *Manifest, cursor *Cursor) Diff {
	excluded := local.failed()
	for id := range remote.failed() {
		excluded[id] = true
	}

	seen := map[library.ID]bool{}
	var ids []library.ID
	for _, m := range []*Manifest{local, remote} {
		for id := range m.Entries {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	for id := range cursor.Entries {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sortIDs(ids)

	var ret Diff
	for id := range excluded {
		ret.Excluded = append(ret.Excluded, id)
	}
	sortIDs(ret.Excluded)

	for _, id := range ids {
		if excluded[id] {
			continue
		}

		l, r, base := local.Get(id), remote.Get(id), cursor.Get(id)
		if l == nil && r == nil {
			ret.Dropped = append(ret.Dropped, id)
			continue
		}

		ret.Changes = append(ret.Changes, classifyEntity(id, l, r, base))
	}

	return ret
}

func classifyEntity(id library.ID, l, r *Entry, base *CursorEntry) Change {
	c := Change{ID: id, Local: l, Remote: r, Base: base}

	switch {
	case l != nil && r != nil:
		localChanged := base == nil || l.Fingerprint != base.Local
		remoteChanged := base == nil || r.Fingerprint != base.Remote

		switch {
		case l.Fingerprint == r.Fingerprint:
			c.Class = Unchanged
		case base == nil:
			c.Class, c.Reason = Conflicting, ReasonBothAdded
		case localChanged && !remoteChanged:
			c.Class = ModifiedLocal
		case remoteChanged && !localChanged:
			c.Class = ModifiedRemote
		default:
			c.Class, c.Reason = Conflicting, ReasonBothModified
		}
		if c.Class == Conflicting && id.Kind() == library.KindPDF {
			c.Reason = ReasonContent
		}
	case l != nil:
		switch {
		case base == nil:
			c.Class = AddedLocal
		case l.Fingerprint == base.Local:
			c.Class = DeletedRemote
		default:
			c.Class, c.Reason = Conflicting, ReasonRemoteDeleted
		}
	default:
		switch {
		case base == nil:
			c.Class = AddedRemote
		case r.Fingerprint == base.Remote:
			c.Class = DeletedLocal
		default:
			c.Class, c.Reason = Conflicting, ReasonLocalDeleted
		}
	}

	return c
}
