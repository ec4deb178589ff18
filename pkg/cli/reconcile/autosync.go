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
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dnote/papercli/pkg/cli/consts"
	"github.com/dnote/papercli/pkg/cli/lock"
	"github.com/dnote/papercli/pkg/cli/log"
	"github.com/dnote/papercli/pkg/clock"
	"github.com/pkg/errors"
	"github.com/radovskyb/watcher"
	"github.com/robfig/cron"
	"golang.org/x/time/rate"
)

const (
	// watchPollInterval is how often the mirror is polled for changes
	watchPollInterval = 2 * time.Second
	// watchMinGap is the minimum time between two cycles triggered by
	// changes in the mirror
	watchMinGap = 30 * time.Second
)

// RunFunc runs one cycle
type RunFunc func(ctx context.Context) (*Result, error)

// Scheduler runs cycles periodically and when the mirror changes. A trigger
// that arrives while a cycle runs is skipped, not queued.
type Scheduler struct {
	run      RunFunc
	interval time.Duration
	watchDir string
	clock    clock.Clock
	limiter  *rate.Limiter

	busy    int32
	lastEnd int64

	cron    *cron.Cron
	watcher *watcher.Watcher

	// mu guards stopped, so that no cycle is added to wg once Stop waits
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler returns a scheduler running cycles every interval and, if
// watchDir is not empty, when the export file in watchDir changes
func NewScheduler(run RunFunc, interval time.Duration, watchDir string, c clock.Clock) *Scheduler {
	return &Scheduler{
		run:      run,
		interval: interval,
		watchDir: watchDir,
		clock:    c,
		limiter:  rate.NewLimiter(rate.Every(watchMinGap), 1),
	}
}

// Trigger runs a cycle unless one is running. It reports whether a cycle
// ran.
func (s *Scheduler) Trigger(ctx context.Context, source string) bool {
	entry := log.WithFields(log.Fields{"trigger": source})

	if !atomic.CompareAndSwapInt32(&s.busy, 0, 1) {
		entry.Debug("skipping, a cycle is running")
		return false
	}
	defer atomic.StoreInt32(&s.busy, 0)
	defer func() {
		atomic.StoreInt64(&s.lastEnd, s.clock.Now().UnixNano())
	}()

	result, err := s.run(ctx)
	if errors.Is(err, lock.ErrBusy) {
		entry.Info("skipping, another process holds the lock")
		return false
	}
	if err != nil {
		log.WithFields(log.Fields{"trigger": source, "kind": KindOf(err).String()}).ErrorWrap(err, "auto-sync cycle failed")
		return true
	}

	entry.Info(result.Summary())
	return true
}

// track runs a triggered cycle that Stop waits for. Nothing runs once Stop
// was called.
func (s *Scheduler) track(ctx context.Context, source string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.Trigger(ctx, source)
}

// changedAfterLastCycle filters out change events caused by the cycles of
// this scheduler
func (s *Scheduler) changedAfterLastCycle(modTime time.Time) bool {
	return modTime.UnixNano() > atomic.LoadInt64(&s.lastEnd)
}

// Start starts the timer and the mirror watcher. They stop with Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()
	if err := s.cron.AddFunc("@every "+s.interval.String(), func() {
		s.track(ctx, "timer")
	}); err != nil {
		return errors.Wrapf(err, "scheduling every %s", s.interval)
	}
	s.cron.Start()

	if s.watchDir == "" {
		return nil
	}

	w := watcher.New()
	w.SetMaxEvents(1)
	w.FilterOps(watcher.Create, watcher.Write, watcher.Rename, watcher.Move)
	w.AddFilterHook(watcher.RegexFilterHook(regexp.MustCompile("^"+regexp.QuoteMeta(consts.MirrorExportFilename)+"$"), false))
	if err := w.Add(s.watchDir); err != nil {
		s.cron.Stop()
		return errors.Wrapf(err, "watching %s", s.watchDir)
	}
	s.watcher = w

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.watch(ctx, w)
	}()
	go func() {
		defer s.wg.Done()
		if err := w.Start(watchPollInterval); err != nil {
			log.WithFields(log.Fields{"dir": s.watchDir}).ErrorWrap(err, "starting the watcher")
		}
	}()
	// a Close before the watcher runs would be lost
	w.Wait()

	return nil
}

// watch consumes the watcher until it is closed. The watcher blocks on
// unread events, so they are drained even after ctx is done.
func (s *Scheduler) watch(ctx context.Context, w *watcher.Watcher) {
	done := ctx.Done()
	for {
		select {
		case event := <-w.Event:
			if ctx.Err() != nil {
				continue
			}
			if event.FileInfo != nil && !s.changedAfterLastCycle(event.ModTime()) {
				continue
			}
			if !s.limiter.Allow() {
				log.WithFields(log.Fields{"path": event.Path}).Debug("throttling a mirror change")
				continue
			}
			go s.track(ctx, "watch")
		case err := <-w.Error:
			if ctx.Err() == nil {
				log.WithFields(log.Fields{"dir": s.watchDir}).ErrorWrap(err, "watching the mirror")
			}
		case <-w.Closed:
			return
		case <-done:
			done = nil
			go w.Close()
		}
	}
}

// Stop stops the timer and the watcher, and waits for running cycles. It is
// safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	if s.cron != nil {
		s.cron.Stop()
	}
	if s.watcher != nil {
		s.watcher.Close()
	}
	s.wg.Wait()
}
