// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

// Package ledger holds the domain services built on top of the sync
// layer: credit accounts, merchant mappings, trust records, shared groups
// and expense transactions. Every conditional mutation runs through the
// mutation guard; every change to a shared resource stamps the owning
// group so other members converge.
package ledger

import "errors"

// Document collections used by the ledger services.
const (
	CreditsCollection      = "credits"
	MappingsCollection     = "mappings"
	TrustCollection        = "trust"
	GroupsCollection       = "groups"
	TransactionsCollection = "transactions"
)

var (
	// ErrInsufficientCredits rejects a deduction that would drive the
	// balance negative.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrStaleEdit rejects an edit based on an outdated version of the
	// record. The caller reloads and retries with fresh data.
	ErrStaleEdit = errors.New("stale edit")

	// ErrInvalidTransition rejects an illegal trust state machine edge.
	ErrInvalidTransition = errors.New("invalid trust transition")

	// ErrGroupFull rejects adding a member beyond the group cap.
	ErrGroupFull = errors.New("group is full")

	// ErrNotOwner rejects a group management action by a non-owner.
	ErrNotOwner = errors.New("actor is not the group owner")

	// ErrNotFound reports a missing document.
	ErrNotFound = errors.New("not found")
)
