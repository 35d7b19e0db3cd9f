// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package syncer

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/okazakov/go-spend-sync/models"
)

// EventType discriminates cache lifecycle events.
type EventType int

const (
	// EventInvalidated: the group's cached records were evicted after a
	// foreign member update. The cache misses until the refetch lands.
	EventInvalidated EventType = iota

	// EventRefreshed: a fetch completed and the group's records are cached
	// again. UI layers re-render on this event.
	EventRefreshed
)

func (t EventType) String() string {
	switch t {
	case EventInvalidated:
		return "invalidated"
	case EventRefreshed:
		return "refreshed"
	default:
		return "unknown"
	}
}

// Event is a cache lifecycle notification emitted by the reactor.
type Event struct {
	Type    EventType
	GroupID string
	At      time.Time
}

// Cache holds each tracked group's last fetched record set. All writes go
// through the reactor's single goroutine; that exclusive ownership is what
// makes invalidate-then-refetch race-free. Readers (UI, services) only get
// the read-side accessor.
type Cache struct {
	c *gocache.Cache
}

// NewCache returns a cache whose entries expire after ttl as a safety net
// against groups that stop receiving snapshots (0 disables expiry). The
// reactor normally evicts and refills entries long before the TTL fires.
func NewCache(ttl time.Duration) *Cache {
	cleanup := ttl
	if cleanup <= 0 {
		cleanup = 0
	}
	return &Cache{c: gocache.New(ttl, cleanup)}
}

// RecordsFor returns the cached record set for the group. ok is false on a
// miss, meaning a fetch is pending or the group is not tracked.
func (c *Cache) RecordsFor(groupID string) ([]models.Record, bool) {
	v, ok := c.c.Get(groupID)
	if !ok {
		return nil, false
	}
	return v.([]models.Record), true
}

func (c *Cache) put(groupID string, records []models.Record) {
	c.c.Set(groupID, records, gocache.DefaultExpiration)
}

func (c *Cache) evict(groupID string) {
	c.c.Delete(groupID)
}
