// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package models

import "time"

// TrustState is the lifecycle state of a trust record between two users.
type TrustState string

const (
	// TrustPending means a trust request was issued and not yet answered.
	TrustPending TrustState = "pending"

	// TrustGranted means the peer accepted the request; shared resources
	// may now be tagged with the peer.
	TrustGranted TrustState = "granted"

	// TrustRevoked means a previously granted trust was withdrawn.
	TrustRevoked TrustState = "revoked"
)

// validTrustTransitions enumerates the allowed state machine edges.
// Anything not listed is a precondition failure, not a retryable error.
var validTrustTransitions = map[TrustState][]TrustState{
	TrustPending: {TrustGranted, TrustRevoked},
	TrustGranted: {TrustRevoked},
	TrustRevoked: {TrustPending},
}

// CanTransition reports whether moving from to next is a legal edge of the
// trust state machine.
func (s TrustState) CanTransition(next TrustState) bool {
	for _, allowed := range validTrustTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TrustRecord tracks the trust relationship a user holds toward a peer.
// State transitions run through the mutation guard: the current state is
// read inside the transaction that writes the next one.
type TrustRecord struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	PeerID    string     `json:"peer_id"`
	State     TrustState `json:"state"`
	UpdatedAt time.Time  `json:"updated_at"`
}
