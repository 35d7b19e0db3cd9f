// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package models

import "time"

// Transaction is a single expense record. Transactions tagged with a
// GroupID are shared resources: every edit or delete stamps the group so
// other members pull the change.
type Transaction struct {
	// ID is the transaction document identifier (UUIDv7).
	ID string `json:"id"`

	// GroupID is the shared group the transaction is tagged with.
	// Empty for personal, unshared transactions.
	GroupID string `json:"group_id,omitempty"`

	// OwnerID is the user that recorded the expense.
	OwnerID string `json:"owner_id"`

	// Merchant is the raw merchant name as read from the receipt.
	Merchant string `json:"merchant"`

	// Amount is the expense amount in minor currency units.
	Amount int64 `json:"amount"`

	// Currency is the ISO 4217 currency code.
	Currency string `json:"currency"`

	// Category is the spending category, usually resolved through a
	// MerchantMapping.
	Category string `json:"category,omitempty"`

	// Note is an optional free-form annotation.
	Note string `json:"note,omitempty"`

	// OccurredAt is the purchase time printed on the receipt.
	OccurredAt time.Time `json:"occurred_at"`

	// UpdatedAt is the server-assigned time of the last change.
	UpdatedAt time.Time `json:"updated_at"`

	// Version is the store-assigned write counter. Edits carry the version
	// they were based on; a mismatch inside the guard transaction is a
	// stale edit.
	Version int64 `json:"version"`

	// Deleted marks a soft-deleted transaction.
	Deleted bool `json:"deleted"`
}
