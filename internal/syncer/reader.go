// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/metrics"
	"github.com/okazakov/go-spend-sync/models"
)

// MaxTrackedGroups bounds the number of concurrent group subscriptions a
// single agent holds. Every tracked group costs a push stream on the
// server, so the bound is enforced at subscribe time rather than left to
// resource exhaustion.
const MaxTrackedGroups = 10

// ErrTooManySubscriptions is returned by AddGroup when the subscription
// cap is reached. A group must be removed before another can be tracked.
var ErrTooManySubscriptions = errors.New("too many group subscriptions")

// GroupSnapshot is one decoded group document delivered to the reactor.
type GroupSnapshot struct {
	GroupID string
	Group   models.SharedGroup
	Version int64
	Exists  bool
}

// Reader maintains one push subscription per tracked group and funnels all
// snapshots into a single channel for the reactor. A dropped stream is
// re-established automatically with backoff; the store delivers the
// current snapshot on resubscribe, so no change is lost across a drop.
type Reader struct {
	source SnapshotSource
	log    *logger.Logger

	baseDelay time.Duration
	maxDelay  time.Duration
	maxGroups int

	out chan GroupSnapshot

	mu     sync.Mutex
	groups map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// ReaderOption customizes a Reader.
type ReaderOption func(*Reader)

// WithResubscribeDelay sets the backoff bounds for re-establishing a
// dropped subscription.
func WithResubscribeDelay(base, max time.Duration) ReaderOption {
	return func(r *Reader) {
		r.baseDelay = base
		r.maxDelay = max
	}
}

// WithMaxTrackedGroups overrides the subscription cap.
func WithMaxTrackedGroups(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.maxGroups = n
		}
	}
}

// NewReader returns a Reader over source.
func NewReader(source SnapshotSource, log *logger.Logger, opts ...ReaderOption) *Reader {
	r := &Reader{
		source:    source,
		log:       log,
		baseDelay: time.Second,
		maxDelay:  30 * time.Second,
		maxGroups: MaxTrackedGroups,
		out:       make(chan GroupSnapshot, 64),
		groups:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshots is the merged stream of group snapshots across all tracked
// groups.
func (r *Reader) Snapshots() <-chan GroupSnapshot {
	return r.out
}

// AddGroup starts watching a group. Tracking an already tracked group is a
// no-op. Returns ErrTooManySubscriptions at the cap.
func (r *Reader) AddGroup(ctx context.Context, groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[groupID]; ok {
		return nil
	}
	if len(r.groups) >= r.maxGroups {
		return fmt.Errorf("%w: tracking %d groups", ErrTooManySubscriptions, len(r.groups))
	}

	gctx, cancel := context.WithCancel(ctx)
	r.groups[groupID] = cancel
	r.wg.Add(1)
	go r.watchLoop(gctx, groupID)
	return nil
}

// RemoveGroup stops watching a group. Unknown groups are a no-op.
func (r *Reader) RemoveGroup(groupID string) {
	r.mu.Lock()
	cancel, ok := r.groups[groupID]
	delete(r.groups, groupID)
	r.mu.Unlock()

	if ok {
		cancel()
	}
}

// Tracked returns the IDs of the currently tracked groups.
func (r *Reader) Tracked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.groups))
	for id := range r.groups {
		ids = append(ids, id)
	}
	return ids
}

// Close stops all subscriptions, waits for the watch goroutines to exit
// and closes the snapshot channel.
func (r *Reader) Close() {
	r.mu.Lock()
	for id, cancel := range r.groups {
		cancel()
		delete(r.groups, id)
	}
	r.mu.Unlock()

	r.wg.Wait()
	close(r.out)
}

func (r *Reader) watchLoop(ctx context.Context, groupID string) {
	defer r.wg.Done()
	log := r.log.With().Str("func", "watchLoop").Str("group_id", groupID).Logger()

	delay := r.baseDelay
	first := true
	for {
		if ctx.Err() != nil {
			return
		}

		sub, err := r.source.Watch(ctx, groupID)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", delay).Msg("subscribe failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, r.maxDelay)
			continue
		}
		if !first {
			metrics.WatchResubscribes.Inc()
			log.Debug().Msg("subscription re-established")
		}
		first = false
		delay = r.baseDelay

		r.pump(ctx, groupID, sub.Snapshots(), log)
		sub.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warn().Dur("retry_in", delay).Msg("subscription dropped")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// pump forwards decoded snapshots until the stream closes or ctx ends.
func (r *Reader) pump(ctx context.Context, groupID string, docs <-chan docstore.Doc, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case doc, ok := <-docs:
			if !ok {
				return
			}

			snap := GroupSnapshot{GroupID: groupID, Version: doc.Version, Exists: doc.Exists}
			if doc.Exists {
				if err := doc.Decode(&snap.Group); err != nil {
					log.Error().Err(err).Msg("undecodable group document, skipping snapshot")
					continue
				}
			}

			select {
			case <-ctx.Done():
				return
			case r.out <- snap:
			}
		}
	}
}
