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
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dnote/papercli/pkg/assert"
	"github.com/dnote/papercli/pkg/cli/consts"
	"github.com/dnote/papercli/pkg/cli/lock"
	"github.com/dnote/papercli/pkg/clock"
	"github.com/pkg/errors"
)

func TestSchedulerSkipsWhileBusy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	run := func(ctx context.Context) (*Result, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return &Result{}, nil
	}
	s := NewScheduler(run, time.Minute, "", clock.NewMock())

	done := make(chan bool)
	go func() {
		done <- s.Trigger(context.Background(), "timer")
	}()
	<-started

	assert.Equal(t, s.Trigger(context.Background(), "watch"), false, "a trigger during a cycle must be skipped")

	close(release)
	assert.Equal(t, <-done, true, "the first trigger must run")
	assert.Equal(t, atomic.LoadInt32(&calls), int32(1), "calls mismatch")
}

func TestSchedulerSkipsWhenLocked(t *testing.T) {
	run := func(ctx context.Context) (*Result, error) {
		return nil, NewTransient(PhaseLock, lock.ErrBusy)
	}
	s := NewScheduler(run, time.Minute, "", clock.NewMock())

	assert.Equal(t, s.Trigger(context.Background(), "timer"), false, "a busy lock must skip the cycle")
}

func TestSchedulerReportsFailures(t *testing.T) {
	run := func(ctx context.Context) (*Result, error) {
		return nil, NewTransient(PhaseSnapshot, errors.New("unmounted"))
	}
	s := NewScheduler(run, time.Minute, "", clock.NewMock())

	assert.Equal(t, s.Trigger(context.Background(), "timer"), true, "a failed cycle still ran")
	assert.Equal(t, atomic.LoadInt32(&s.busy), int32(0), "busy flag must be cleared")
}

func TestSchedulerIgnoresOwnWrites(t *testing.T) {
	c := clock.NewMock()
	run := func(ctx context.Context) (*Result, error) {
		return &Result{}, nil
	}
	s := NewScheduler(run, time.Minute, "", c)
	s.Trigger(context.Background(), "timer")

	assert.Equal(t, s.changedAfterLastCycle(c.Now().Add(-time.Second)), false, "a change before the end of the cycle")
	assert.Equal(t, s.changedAfterLastCycle(c.Now().Add(time.Second)), true, "a change after the end of the cycle")
}

func TestSchedulerTimer(t *testing.T) {
	var calls int32
	run := func(ctx context.Context) (*Result, error) {
		atomic.AddInt32(&calls, 1)
		return &Result{}, nil
	}
	s := NewScheduler(run, time.Second, "", clock.NewMock())

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&calls) == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	if atomic.LoadInt32(&calls) == 0 {
		t.Fatal("the timer never triggered a cycle")
	}
}

func stopWithin(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(d):
		t.Fatalf("Stop did not return within %s", d)
	}
}

func TestSchedulerStopAfterCancel(t *testing.T) {
	dir := t.TempDir()
	run := func(ctx context.Context) (*Result, error) {
		return &Result{}, nil
	}
	s := NewScheduler(run, time.Hour, dir, clock.NewMock())

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	// a change after the cancellation still produces a watcher event
	if err := os.WriteFile(filepath.Join(dir, consts.MirrorExportFilename), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(watchPollInterval + time.Second)

	stopWithin(t, s, 5*time.Second)
	stopWithin(t, s, time.Second)
}

func TestSchedulerStopWaitsForCycles(t *testing.T) {
	dir := t.TempDir()
	started := make(chan struct{}, 1)
	var finished int32
	run := func(ctx context.Context) (*Result, error) {
		started <- struct{}{}
		time.Sleep(200 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
		return &Result{}, nil
	}
	s := NewScheduler(run, time.Hour, dir, clock.NewMock())

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, consts.MirrorExportFilename), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		s.Stop()
		t.Fatal("the change never triggered a cycle")
	}

	stopWithin(t, s, 5*time.Second)
	assert.Equal(t, atomic.LoadInt32(&finished), int32(1), "Stop must wait for the running cycle")
}
