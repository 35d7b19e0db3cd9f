// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package syncer

import (
	"context"
	"time"

	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/metrics"
	"github.com/okazakov/go-spend-sync/models"
)

// GroupFetcher performs one fetch-and-merge cycle and returns the group's
// full post-merge record set. Discard undoes the local side of a merge
// whose group stopped being tracked while the fetch ran. *Fetcher is the
// production implementation.
type GroupFetcher interface {
	FetchGroup(ctx context.Context, groupID string) ([]models.Record, error)
	Discard(ctx context.Context, groupID string) error
}

type fetchResult struct {
	groupID string
	records []models.Record
	err     error
}

// Reactor turns member update stamps into cache invalidations and
// refetches. It consumes the reader's snapshot stream, diffs each group's
// member_updates map against the previously seen one, and on any foreign
// change evicts the group's cache, emits an invalidation event and
// schedules a delta fetch.
//
// Reactor state and the cache's write side are owned by the single Run
// goroutine; fetches run concurrently but report back into the loop, so
// evict/refill ordering is never racy.
//
// The local member's own stamp is skipped during diffing: the writer
// updates it on every local mutation, and reacting to it would refetch
// data the client just wrote.
type Reactor struct {
	self    string
	reader  *Reader
	cache   *Cache
	fetcher GroupFetcher
	log     *logger.Logger

	prev         map[string]map[string]time.Time
	inflight     map[string]bool
	pendingDirty map[string]bool
	forgotten    map[string]bool

	fetchDone chan fetchResult
	forget    chan string
	refresh   chan string
	events    chan Event
}

// NewReactor wires a Reactor. self is the local member identity whose own
// stamps are ignored.
func NewReactor(self string, reader *Reader, cache *Cache, fetcher GroupFetcher, log *logger.Logger) *Reactor {
	return &Reactor{
		self:         self,
		reader:       reader,
		cache:        cache,
		fetcher:      fetcher,
		log:          log,
		prev:         make(map[string]map[string]time.Time),
		inflight:     make(map[string]bool),
		pendingDirty: make(map[string]bool),
		forgotten:    make(map[string]bool),
		fetchDone:    make(chan fetchResult),
		forget:       make(chan string),
		refresh:      make(chan string),
		events:       make(chan Event, 64),
	}
}

// Events is the stream of cache lifecycle notifications. Events are
// dropped, not blocked on, when the consumer lags.
func (r *Reactor) Events() <-chan Event {
	return r.events
}

// Forget drops all reactor and cache state for a group, typically after
// the local user left it. Safe to call while Run is active.
func (r *Reactor) Forget(groupID string) {
	r.forget <- groupID
}

// Refresh schedules an unconditional fetch for the group, coalesced with
// any fetch already in flight. The periodic reconcile job uses it to catch
// changes whose stamps were lost (a writer crash between mutation and
// stamp, a dropped stream).
func (r *Reactor) Refresh(groupID string) {
	r.refresh <- groupID
}

// Run processes snapshots until ctx is cancelled.
func (r *Reactor) Run(ctx context.Context) {
	log := r.log.With().Str("func", "Run").Logger()
	log.Debug().Str("self", r.self).Msg("reactor started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("reactor stopped")
			return

		case snap, ok := <-r.reader.Snapshots():
			if !ok {
				log.Debug().Msg("snapshot stream closed, reactor stopped")
				return
			}
			r.handleSnapshot(ctx, snap)

		case res := <-r.fetchDone:
			r.handleFetchDone(ctx, res)

		case groupID := <-r.forget:
			r.cache.evict(groupID)
			delete(r.prev, groupID)
			delete(r.pendingDirty, groupID)
			if r.inflight[groupID] {
				// the running fetch completes but its result is dropped
				r.forgotten[groupID] = true
			}

		case groupID := <-r.refresh:
			r.scheduleFetch(ctx, groupID)
		}
	}
}

func (r *Reactor) handleSnapshot(ctx context.Context, snap GroupSnapshot) {
	log := r.log.With().Str("func", "handleSnapshot").Str("group_id", snap.GroupID).Logger()

	if !snap.Exists {
		log.Info().Msg("group document gone, dropping cache")
		r.cache.evict(snap.GroupID)
		delete(r.prev, snap.GroupID)
		r.emit(Event{Type: EventInvalidated, GroupID: snap.GroupID, At: time.Now()})
		return
	}

	updates := snap.Group.MemberUpdates
	seen, primed := r.prev[snap.GroupID]
	r.prev[snap.GroupID] = cloneStamps(updates)

	if !primed {
		// first snapshot after tracking: baseline, then load the cache
		r.scheduleFetch(ctx, snap.GroupID)
		return
	}

	if !r.dirty(seen, updates) {
		return
	}

	log.Debug().Msg("foreign member update, invalidating cache")
	metrics.CacheInvalidations.Inc()
	r.cache.evict(snap.GroupID)
	r.emit(Event{Type: EventInvalidated, GroupID: snap.GroupID, At: time.Now()})
	r.scheduleFetch(ctx, snap.GroupID)
}

// dirty reports whether any member other than self changed its stamp.
func (r *Reactor) dirty(seen, updates map[string]time.Time) bool {
	for member, at := range updates {
		if member == r.self {
			continue
		}
		if prev, ok := seen[member]; !ok || !prev.Equal(at) {
			return true
		}
	}
	for member := range seen {
		if member == r.self {
			continue
		}
		if _, ok := updates[member]; !ok {
			return true
		}
	}
	return false
}

// scheduleFetch starts a fetch for the group unless one is already in
// flight, in which case the group is marked dirty and refetched once the
// running fetch completes. Any number of invalidations during a fetch
// coalesce into a single follow-up.
func (r *Reactor) scheduleFetch(ctx context.Context, groupID string) {
	if r.inflight[groupID] {
		r.pendingDirty[groupID] = true
		return
	}
	r.inflight[groupID] = true

	go func() {
		records, err := r.fetcher.FetchGroup(ctx, groupID)
		select {
		case r.fetchDone <- fetchResult{groupID: groupID, records: records, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (r *Reactor) handleFetchDone(ctx context.Context, res fetchResult) {
	log := r.log.With().Str("func", "handleFetchDone").Str("group_id", res.groupID).Logger()
	delete(r.inflight, res.groupID)

	if r.forgotten[res.groupID] {
		// the group was forgotten while the fetch ran; its records must
		// not re-enter the cache or the local state. A re-tracked group
		// still honours its pending fetch below.
		delete(r.forgotten, res.groupID)
		if err := r.fetcher.Discard(ctx, res.groupID); err != nil {
			log.Warn().Err(err).Msg("stale merge not discarded")
		}
		log.Debug().Msg("group forgotten mid-fetch, result discarded")
	} else if res.err != nil {
		// cache stays evicted; the next stamp or reconcile retries
		log.Warn().Err(res.err).Msg("group fetch failed")
	} else {
		r.cache.put(res.groupID, res.records)
		r.emit(Event{Type: EventRefreshed, GroupID: res.groupID, At: time.Now()})
	}

	if r.pendingDirty[res.groupID] {
		delete(r.pendingDirty, res.groupID)
		r.scheduleFetch(ctx, res.groupID)
	}
}

func (r *Reactor) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		r.log.Warn().Str("func", "emit").Str("group_id", ev.GroupID).Msg("event dropped, consumer lagging")
	}
}

func cloneStamps(in map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
