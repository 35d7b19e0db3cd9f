// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package syncer

import (
	"context"
	"sync"
	"time"
)

// ReconcileJob periodically refreshes every tracked group as a safety net
// under the push path: a stamp that was never written (writer crashed
// between mutation and stamp) still converges within one interval. The job
// is idle until Start is called.
type ReconcileJob struct {
	session *Session

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReconcileJob creates a ReconcileJob over session.
func NewReconcileJob(session *Session) *ReconcileJob {
	return &ReconcileJob{session: session}
}

// Start stops any previously running job, then launches a background
// goroutine that refreshes all tracked groups every interval. If interval
// is zero or negative it defaults to 5 minutes. The goroutine exits when
// ctx is cancelled or Stop is called.
func (j *ReconcileJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	j.Stop()

	j.mu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-jobCtx.Done():
				return
			case <-t.C:
				j.session.Refresh()
			}
		}
	}()
}

// Stop cancels the background goroutine's context and blocks until it has
// fully exited. Safe to call when the job is not running.
func (j *ReconcileJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}
