// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package models

import (
	"encoding/json"
	"time"
)

// Record is the transport shape of a single synced resource as returned by
// the delta endpoint and held in the client cache. The payload is opaque to
// the sync layer; consumers decode it into the concrete domain type
// (Transaction, MerchantMapping, ...) identified by Kind.
type Record struct {
	// ID is the record's document identifier within its group.
	ID string `json:"id"`

	// GroupID is the shared group the record belongs to.
	GroupID string `json:"group_id"`

	// Kind names the domain type encoded in Payload.
	Kind string `json:"kind"`

	// Payload is the record body as stored in the document store.
	Payload json.RawMessage `json:"payload"`

	// UpdatedAt is the server-assigned time of the last change. The delta
	// endpoint selects records by this field.
	UpdatedAt time.Time `json:"updated_at"`

	// Deleted marks a soft-deleted record. Deleted records still travel
	// through delta responses so every member converges on the removal.
	Deleted bool `json:"deleted"`

	// Version is the store-assigned write counter, used for stale-edit
	// detection.
	Version int64 `json:"version"`
}
