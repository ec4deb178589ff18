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
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dnote/papercli/pkg/cli/database"
	"github.com/dnote/papercli/pkg/cli/library"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/dnote/papercli/pkg/cli/utils"
	"github.com/dnote/papercli/pkg/clock"
	"github.com/pkg/errors"
)

const (
	stepWrite  = "write"
	stepRemove = "remove"
)

// step is one journaled file change. Everything needed to undo it is on
// disk before the change is made.
type step struct {
	Op      string `json:"op"`
	Target  string `json:"target"`
	Temp    string `json:"temp"`
	Backup  string `json:"backup,omitempty"`
	Created bool   `json:"created,omitempty"`
}

type unitRecord struct {
	UnitID    string     `json:"unit_id"`
	Entity    library.ID `json:"entity"`
	StartedAt time.Time  `json:"started_at"`
	Steps     []step     `json:"steps"`
}

// Journal makes apply units atomic across the database and the file system.
// Each unit is described by a file in the journal directory while it runs,
// and by a marker row in the database once it commits.
type Journal struct {
	dir   string
	db    *database.DB
	clock clock.Clock
}

// NewJournal returns a journal keeping its files in dir
func NewJournal(dir string, db *database.DB, c clock.Clock) *Journal {
	return &Journal{dir: dir, db: db, clock: c}
}

func (j *Journal) path(unitID string) string {
	return filepath.Join(j.dir, unitID+".json")
}

func (j *Journal) save(rec unitRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encoding the journal")
	}

	return utils.WriteFileAtomic(j.path(rec.UnitID), b, 0600)
}

// Unit is one atomic change of an entity. Database writes go through Tx,
// file writes through WriteFile and RemoveFile.
type Unit struct {
	ID     string
	Entity library.ID

	tx      *database.DB
	journal *Journal
	rec     unitRecord
}

// Begin starts a unit. The journal file is written before the database
// transaction begins.
func (j *Journal) Begin(ctx context.Context, entity library.ID) (*Unit, error) {
	unitID, err := utils.NewID()
	if err != nil {
		return nil, err
	}

	rec := unitRecord{UnitID: unitID, Entity: entity, StartedAt: j.clock.Now().UTC()}
	if err := j.save(rec); err != nil {
		return nil, errors.Wrapf(err, "starting unit for %s", entity)
	}

	tx, err := j.db.BeginContext(ctx)
	if err != nil {
		os.Remove(j.path(unitID))
		return nil, err
	}

	return &Unit{ID: unitID, Entity: entity, tx: tx, journal: j, rec: rec}, nil
}

// Tx returns the database transaction of the unit
func (u *Unit) Tx() *database.DB {
	return u.tx
}

func (u *Unit) scratch(target, suffix string) string {
	return filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".papercli-"+suffix+"-"+utils.ShortID(u.ID))
}

func (u *Unit) stepFor(target string) *step {
	for i := range u.rec.Steps {
		if u.rec.Steps[i].Target == target {
			return &u.rec.Steps[i]
		}
	}

	return nil
}

func (u *Unit) addStep(s step) error {
	u.rec.Steps = append(u.rec.Steps, s)
	if err := u.journal.save(u.rec); err != nil {
		u.rec.Steps = u.rec.Steps[:len(u.rec.Steps)-1]
		return errors.Wrapf(err, "journaling a change of %s", s.Target)
	}

	return nil
}

// WriteFile replaces the content of the target file, or creates it. The
// previous content is kept in a backup until the unit finishes.
func (u *Unit) WriteFile(target string, r io.Reader) error {
	if err := utils.EnsureDir(filepath.Dir(target)); err != nil {
		return err
	}

	s := u.stepFor(target)
	first := s == nil
	if first {
		exists, err := utils.FileExists(target)
		if err != nil {
			return err
		}

		next := step{Op: stepWrite, Target: target, Temp: u.scratch(target, "tmp")}
		if exists {
			next.Backup = u.scratch(target, "bak")
		} else {
			next.Created = true
		}
		if err := u.addStep(next); err != nil {
			return err
		}
		s = &u.rec.Steps[len(u.rec.Steps)-1]
	}

	if err := writeTemp(s.Temp, r); err != nil {
		return err
	}

	// a target written earlier in the unit already has its original in the backup
	if first && s.Backup != "" {
		if err := os.Rename(target, s.Backup); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "backing up %s", target)
		}
	}
	if err := os.Rename(s.Temp, target); err != nil {
		return errors.Wrapf(err, "moving new content into %s", target)
	}

	return nil
}

// RemoveFile removes the target file. It is a no-op if there is none.
func (u *Unit) RemoveFile(target string) error {
	if s := u.stepFor(target); s != nil {
		// the original, if any, is already in the backup
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "removing %s", target)
		}
		return nil
	}

	exists, err := utils.FileExists(target)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	s := step{Op: stepRemove, Target: target, Temp: u.scratch(target, "tmp"), Backup: u.scratch(target, "bak")}
	if err := u.addStep(s); err != nil {
		return err
	}
	if err := os.Rename(target, s.Backup); err != nil {
		return errors.Wrapf(err, "removing %s", target)
	}

	return nil
}

func writeTemp(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "flushing %s", path)
	}

	return errors.Wrapf(f.Close(), "closing %s", path)
}

// Commit records the unit as committed inside its transaction and commits
// it. The caller rolls the unit back if it fails.
func (u *Unit) Commit() error {
	if err := database.InsertSyncUnit(u.tx, u.ID, string(u.Entity), u.journal.clock.Now().Unix()); err != nil {
		return err
	}
	if err := u.tx.Commit(); err != nil {
		return err
	}

	u.finish()

	return nil
}

// Rollback discards the database changes and restores the files of the unit
func (u *Unit) Rollback() error {
	if err := u.tx.Rollback(); err != nil {
		return err
	}

	return u.undoFiles()
}

func (u *Unit) undoFiles() error {
	if err := restoreSteps(u.rec.Steps); err != nil {
		return errors.Wrapf(err, "restoring files of unit %s", u.ID)
	}

	return removeFile(u.journal.path(u.ID))
}

// finish drops the backups of a committed unit, then its journal file and
// finally its marker. A marker without a journal file is harmless, while a
// journal file without its marker would be rolled back.
func (u *Unit) finish() {
	fields := log.Fields{"unit": u.ID, "entity": string(u.Entity)}

	if err := dropBackups(u.rec.Steps); err != nil {
		log.WithFields(fields).ErrorWrap(err, "dropping backups")
		return
	}
	if err := removeFile(u.journal.path(u.ID)); err != nil {
		log.WithFields(fields).ErrorWrap(err, "removing the journal file")
		return
	}
	if err := database.DeleteSyncUnit(u.journal.db, u.ID); err != nil {
		log.WithFields(fields).ErrorWrap(err, "deleting the unit marker")
	}
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", path)
	}

	return nil
}

func restoreSteps(steps []step) error {
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]

		if err := removeFile(s.Temp); err != nil {
			return err
		}

		if s.Backup != "" {
			ok, err := utils.FileExists(s.Backup)
			if err != nil {
				return err
			}
			if ok {
				if err := os.Rename(s.Backup, s.Target); err != nil {
					return errors.Wrapf(err, "restoring %s", s.Target)
				}
			}
			continue
		}

		if s.Created {
			if err := removeFile(s.Target); err != nil {
				return err
			}
		}
	}

	return nil
}

func dropBackups(steps []step) error {
	for _, s := range steps {
		if err := removeFile(s.Temp); err != nil {
			return err
		}
		if s.Backup != "" {
			if err := removeFile(s.Backup); err != nil {
				return err
			}
		}
	}

	return nil
}

// Recover completes the units left behind by an interrupted cycle. A unit
// whose marker row exists committed and is rolled forward. Any other unit is
// rolled back. It returns the number of units recovered.
func (j *Journal) Recover() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "reading the journal directory")
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" && !library.Ignored(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(j.dir, name)

		b, err := os.ReadFile(path)
		if err != nil {
			return 0, errors.Wrapf(err, "reading journal %s", name)
		}
		var rec unitRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return 0, errors.Wrapf(err, "decoding journal %s", name)
		}

		committed, err := database.HasSyncUnit(j.db, rec.UnitID)
		if err != nil {
			return 0, err
		}

		fields := log.Fields{"unit": rec.UnitID, "entity": string(rec.Entity), "committed": committed}
		if committed {
			err = dropBackups(rec.Steps)
		} else {
			err = restoreSteps(rec.Steps)
		}
		if err != nil {
			return 0, errors.Wrapf(err, "recovering unit %s", rec.UnitID)
		}
		if err := removeFile(path); err != nil {
			return 0, err
		}

		log.WithFields(fields).Info("recovered an interrupted unit")
	}

	if err := database.PurgeSyncUnits(j.db); err != nil {
		return 0, err
	}

	return len(names), nil
}
