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

package mirror

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/dnote/papercli/pkg/cli/consts"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/dnote/papercli/pkg/cli/reconcile"
	"github.com/dnote/papercli/pkg/cli/utils"
	"github.com/pkg/errors"
)

// LeaseTTL is how long a lease protects a mirror. An older lease was left
// behind by a crashed or disconnected machine and is taken over. A lease of
// a process that no longer runs on this machine is taken over at once.
const LeaseTTL = 30 * time.Minute

// ErrLeaseHeld is returned when another machine is syncing with the mirror
var ErrLeaseHeld = errors.New("the remote mirror is being synced by another machine")

// Lease is the content of the lease file
type Lease struct {
	Host       string    `json:"host"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

func (m *Mirror) leasePath() string {
	return filepath.Join(m.root, consts.MirrorLeaseFilename)
}

func currentHolder() Lease {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return Lease{Host: host, PID: os.Getpid()}
}

// ReadLease returns the lease held on the mirror, if any
func (m *Mirror) ReadLease() (Lease, bool, error) {
	var l Lease

	b, err := os.ReadFile(m.leasePath())
	if os.IsNotExist(err) {
		return l, false, nil
	}
	if err != nil {
		return l, false, errors.Wrap(err, "reading the lease file")
	}
	if err := json.Unmarshal(b, &l); err != nil {
		// a lease that cannot be read protects nothing
		return l, false, nil
	}

	return l, true, nil
}

// acquireLease writes the lease file unless another live holder has it. It
// returns a function releasing the lease.
func (m *Mirror) acquireLease() (func(), error) {
	me := currentHolder()

	held, ok, err := m.ReadLease()
	if err != nil {
		return nil, reconcile.NewTransient(reconcile.PhaseSnapshot, err)
	}
	if ok && (held.Host != me.Host || held.PID != me.PID) {
		age := m.clock.Since(held.AcquiredAt)
		// a holder on this machine is known to be gone once its process is
		deadLocal := held.Host == me.Host && !processAlive(held.PID)
		if age < LeaseTTL && !deadLocal {
			return nil, reconcile.NewTransient(reconcile.PhaseSnapshot,
				errors.Wrapf(ErrLeaseHeld, "%s (pid %d) since %s", held.Host, held.PID, held.AcquiredAt.Format(time.RFC3339)))
		}

		log.WithFields(log.Fields{"host": held.Host, "pid": held.PID, "age": age, "holder_alive": !deadLocal}).Warn("taking over a stale mirror lease")
	}

	me.AcquiredAt = m.clock.Now().UTC()
	b, err := json.Marshal(me)
	if err != nil {
		return nil, errors.Wrap(err, "encoding the lease")
	}
	if err := utils.WriteFileAtomic(m.leasePath(), b, 0644); err != nil {
		return nil, reconcile.NewTransient(reconcile.PhaseSnapshot, errors.Wrap(err, "writing the lease file"))
	}

	release := func() {
		cur, ok, err := m.ReadLease()
		if err != nil || !ok || cur.Host != me.Host || cur.PID != me.PID {
			return
		}
		if err := os.Remove(m.leasePath()); err != nil && !os.IsNotExist(err) {
			log.WithFields(log.Fields{"path": m.leasePath()}).ErrorWrap(err, "releasing the mirror lease")
		}
	}

	return release, nil
}
