// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package models

import "time"

// MaxGroupMembers is the hard cap on the number of members a shared group
// may hold. The cap bounds both the size of the MemberUpdates map and the
// number of push subscriptions a single client maintains.
const MaxGroupMembers = 10

// SharedGroup is the document shape of a shared expense group. It is the
// coordination point of the synchronization layer: every mutation that
// touches a resource belonging to the group stamps the acting member's
// entry in MemberUpdates, and every other member's client reacts to that
// stamp by invalidating its local cache and pulling a delta.
type SharedGroup struct {
	// ID is the group document identifier.
	ID string `json:"id"`

	// OwnerID is the member that created the group.
	OwnerID string `json:"owner_id"`

	// Members is the bounded membership list. Its length never exceeds
	// MaxGroupMembers.
	Members []string `json:"members"`

	// MemberUpdates maps a member identity to the server-assigned time of
	// that member's last change to any resource of the group. A member may
	// only ever write the entry keyed by its own identity; the store
	// enforces this rule on write.
	MemberUpdates map[string]time.Time `json:"member_updates"`

	// CreatedAt is the server-assigned creation timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// HasMember reports whether id is present in the membership list.
func (g *SharedGroup) HasMember(id string) bool {
	for _, m := range g.Members {
		if m == id {
			return true
		}
	}
	return false
}
