// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

// Package batch chunks large write sets to fit the document store's
// per-call operation cap and commits the chunks sequentially, retrying
// each failed chunk once. Used by bulk import and bulk delete paths where
// one logical operation produces hundreds of document writes.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/metrics"
	"github.com/okazakov/go-spend-sync/models"
)

// Writer is the slice of the document store the coordinator needs.
type Writer interface {
	BatchWrite(ctx context.Context, ops []docstore.Op) error
}

// Coordinator splits operation sets into store-sized chunks and commits
// them one after another. Chunks are independent: a failed chunk is
// recorded and the remaining chunks still commit, so a partially applied
// batch is a normal outcome surfaced through BatchResult, not an error.
type Coordinator struct {
	writer Writer
	log    *logger.Logger

	chunkSize  int
	retryDelay time.Duration
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithChunkSize overrides the chunk size. Values above the store cap are
// clamped to docstore.MaxBatchOps.
func WithChunkSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.chunkSize = min(n, docstore.MaxBatchOps)
		}
	}
}

// WithRetryDelay sets the pause before a failed chunk's single retry.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.retryDelay = d }
}

// NewCoordinator returns a Coordinator writing through w. Defaults: chunks
// of docstore.MaxBatchOps, 1s delay before the per-chunk retry.
func NewCoordinator(w Writer, log *logger.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		writer:     w,
		log:        log,
		chunkSize:  docstore.MaxBatchOps,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commit writes ops in chunks of the configured size, in order. Each chunk
// is attempted twice at most: once, and once more after the retry delay.
// The returned BatchResult accounts for every chunk; the returned error is
// only non-nil for caller mistakes (empty handling aside, currently never)
// or context cancellation between chunks, with the partial result still
// populated.
func (c *Coordinator) Commit(ctx context.Context, ops []docstore.Op) (models.BatchResult, error) {
	log := c.log.With().Str("func", "Commit").Logger()

	if len(ops) == 0 {
		return models.BatchResult{}, nil
	}

	total := (len(ops) + c.chunkSize - 1) / c.chunkSize
	res := models.BatchResult{TotalChunks: total}

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			res.FailedChunks = total - res.SucceededChunks
			for j := i; j < total; j++ {
				res.Errors = append(res.Errors, fmt.Errorf("chunk %d/%d: %w", j+1, total, err))
			}
			return res, err
		}

		start := i * c.chunkSize
		end := min(start+c.chunkSize, len(ops))
		chunk := ops[start:end]

		if err := c.commitChunk(ctx, chunk); err != nil {
			log.Error().Err(err).Int("chunk", i+1).Int("total", total).Msg("chunk failed after retry")
			metrics.BatchChunks.WithLabelValues("failed").Inc()
			res.FailedChunks++
			res.Errors = append(res.Errors, fmt.Errorf("chunk %d/%d: %w", i+1, total, err))
			continue
		}
		metrics.BatchChunks.WithLabelValues("succeeded").Inc()
		res.SucceededChunks++
	}

	log.Debug().
		Int("total", res.TotalChunks).
		Int("succeeded", res.SucceededChunks).
		Int("failed", res.FailedChunks).
		Msg("batch committed")
	return res, nil
}

// commitChunk writes one chunk with a single retry. Everything except an
// over-cap error is considered transient enough for the one retry; the cap
// error is deterministic and retrying it would only repeat the rejection.
func (c *Coordinator) commitChunk(ctx context.Context, chunk []docstore.Op) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(c.retryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.writer.BatchWrite(ctx, chunk)
		if err == nil {
			return nil
		}
		if errors.Is(err, docstore.ErrBatchTooLarge) || ctx.Err() != nil {
			return err
		}
		return retry.RetryableError(err)
	})
}
