// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package models

import "time"

// DeltaRequest asks the delta endpoint for every record of a group changed
// at or after Since. Repeating a request with the same Since is safe: the
// endpoint is idempotent and the client merges by upsert.
type DeltaRequest struct {
	GroupID string `json:"group_id"`

	// Since is the caller's sync watermark. The zero value requests a full
	// snapshot of the group's records.
	Since time.Time `json:"since"`
}

// DeltaResponse carries the changed records and the server-side time the
// query was evaluated at. AsOf becomes the caller's next watermark once the
// records have been merged successfully.
type DeltaResponse struct {
	Records []Record  `json:"records"`
	AsOf    time.Time `json:"as_of"`
}
