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
	"encoding/json"
	"os"
	"time"

	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/dnote/papercli/pkg/cli/utils"
	"github.com/pkg/errors"
)

const cursorVersion = 1

// CursorEntry is the pair of fingerprints an entity had on both sides at the
// end of the last cycle that synced it
type CursorEntry struct {
	Kind   library.Kind `json:"kind"`
	Local  string       `json:"local"`
	Remote string       `json:"remote"`
}

// Cursor is the common ancestor of the two sides, persisted next to the
// database after every completed cycle
type Cursor struct {
	Version     int                        `json:"version"`
	CycleID     string                     `json:"cycle_id"`
	CompletedAt time.Time                  `json:"completed_at"`
	Entries     map[library.ID]CursorEntry `json:"entries"`

	exists bool
}

// LoadCursor reads the cursor at the given path. A missing file yields an
// empty cursor, which means the next cycle is a first sync.
func LoadCursor(path string) (*Cursor, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Cursor{Version: cursorVersion, Entries: map[library.ID]CursorEntry{}}, nil
	}
	if err != nil {
		return nil, NewTransient(PhaseCursor, errors.Wrap(err, "reading the cursor file"))
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, NewFatal(PhaseCursor, errors.Wrapf(err, "decoding the cursor file %s", path))
	}
	if c.Version != cursorVersion {
		return nil, NewFatal(PhaseCursor, errors.Errorf("unsupported cursor version %d", c.Version))
	}
	if c.Entries == nil {
		c.Entries = map[library.ID]CursorEntry{}
	}
	c.exists = true

	return &c, nil
}

// Exists reports whether the cursor was read from a file. A cursor that does
// not exist means the two sides have never been synced.
func (c *Cursor) Exists() bool {
	return c.exists
}

// Get returns the entry of the entity, or nil if it has none
func (c *Cursor) Get(id library.ID) *CursorEntry {
	e, ok := c.Entries[id]
	if !ok {
		return nil
	}

	return &e
}

// Save writes the cursor atomically
func (c *Cursor) Save(path string) error {
	c.Version = cursorVersion

	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding the cursor")
	}
	if err := utils.WriteFileAtomic(path, b, 0600); err != nil {
		return errors.Wrap(err, "writing the cursor file")
	}
	c.exists = true

	return nil
}

// clone returns a copy of the cursor with its own entry map
func (c *Cursor) clone() *Cursor {
	ret := *c
	ret.Entries = make(map[library.ID]CursorEntry, len(c.Entries))
	for k, v := range c.Entries {
		ret.Entries[k] = v
	}

	return &ret
}

func (c *Cursor) equalEntries(o *Cursor) bool {
	if len(c.Entries) != len(o.Entries) {
		return false
	}
	for k, v := range c.Entries {
		if ov, ok := o.Entries[k]; !ok || ov != v {
			return false
		}
	}

	return true
}
