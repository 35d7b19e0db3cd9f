// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package models

// BatchResult reports the per-chunk outcome of a batched write. It is
// returned as data, never collapsed into a bare success/failure boolean,
// so a consumer can render partial-failure feedback ("3 of 4 succeeded")
// and decide what to do about the failed chunks.
//
// A batch has no atomicity across chunks: SucceededChunks and FailedChunks
// may both be non-zero, and the writes of every succeeded chunk are durable
// regardless of later failures.
type BatchResult struct {
	// TotalChunks is the number of chunks the operation set was split into.
	TotalChunks int `json:"total_chunks"`

	// SucceededChunks is the number of chunks whose commit succeeded,
	// possibly after the single per-chunk retry.
	SucceededChunks int `json:"succeeded_chunks"`

	// FailedChunks is the number of chunks that failed after their retry.
	FailedChunks int `json:"failed_chunks"`

	// Errors holds one entry per failed chunk, each identifying the chunk
	// index. Empty when every chunk succeeded.
	Errors []error `json:"-"`
}

// AllSucceeded reports whether every chunk committed.
func (r BatchResult) AllSucceeded() bool {
	return r.FailedChunks == 0 && r.TotalChunks > 0
}
