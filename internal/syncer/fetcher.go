// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package syncer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/okazakov/go-spend-sync/internal/localstate"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/metrics"
	"github.com/okazakov/go-spend-sync/models"
)

// DeltaAPI fetches the records of a group changed since a watermark.
type DeltaAPI interface {
	FetchDelta(ctx context.Context, req models.DeltaRequest) (models.DeltaResponse, error)
}

// Fetcher pulls deltas and merges them into the local state. The watermark
// only moves forward after the fetched records were merged successfully;
// a merge failure leaves it in place so the next fetch re-requests the
// same window. Re-merging is safe because merges are upserts.
type Fetcher struct {
	api   DeltaAPI
	local *localstate.DB
	log   *logger.Logger
}

// NewFetcher returns a Fetcher merging through local.
func NewFetcher(api DeltaAPI, local *localstate.DB, log *logger.Logger) *Fetcher {
	return &Fetcher{api: api, local: local, log: log}
}

// FetchGroup performs one delta fetch-and-merge cycle for the group and
// returns the group's full post-merge record set. The first fetch of a
// group (no watermark yet) requests a full snapshot via the zero Since.
func (f *Fetcher) FetchGroup(ctx context.Context, groupID string) ([]models.Record, error) {
	log := f.log.With().Str("func", "FetchGroup").Str("group_id", groupID).Logger()

	st, _, err := f.local.Watermark(ctx, groupID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := f.api.FetchDelta(ctx, models.DeltaRequest{GroupID: groupID, Since: st.Watermark})
	if err != nil {
		metrics.DeltaFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch delta for %s: %w", groupID, err)
	}
	metrics.DeltaFetchDuration.Observe(float64(time.Since(started).Milliseconds()))

	if err = f.local.UpsertRecords(ctx, groupID, resp.Records); err != nil {
		metrics.DeltaFetches.WithLabelValues("merge_error").Inc()
		return nil, fmt.Errorf("merge delta for %s: %w", groupID, err)
	}

	// merge landed, the watermark may advance
	if resp.AsOf.After(st.Watermark) {
		err = f.local.SetWatermark(ctx, models.SyncState{
			GroupID:   groupID,
			Watermark: resp.AsOf,
			UpdatedAt: time.Now(),
		})
		if err != nil {
			// next fetch re-pulls an already merged window; harmless
			log.Warn().Err(err).Msg("watermark not advanced")
		}
	}

	metrics.DeltaFetches.WithLabelValues("ok").Inc()
	log.Debug().
		Int("records", len(resp.Records)).
		Time("since", st.Watermark).
		Time("as_of", resp.AsOf).
		Msg("delta merged")

	return f.local.RecordsFor(ctx, groupID)
}

// Discard drops the group's merged records and watermark from the local
// state. The reactor calls it when a fetch completes for a group that was
// forgotten while the fetch ran, so the merge it performed does not
// resurrect rows the session already deleted.
func (f *Fetcher) Discard(ctx context.Context, groupID string) error {
	return f.local.DeleteGroup(ctx, groupID)
}

// HTTPDeltaAPI talks to the server's delta endpoint.
type HTTPDeltaAPI struct {
	client *resty.Client
}

// HTTPDeltaAPIConfig configures the delta endpoint client.
type HTTPDeltaAPIConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewHTTPDeltaAPI returns a DeltaAPI over the server's HTTP surface.
func NewHTTPDeltaAPI(cfg HTTPDeltaAPIConfig) *HTTPDeltaAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.Token)

	return &HTTPDeltaAPI{client: cli}
}

func (h *HTTPDeltaAPI) FetchDelta(ctx context.Context, req models.DeltaRequest) (models.DeltaResponse, error) {
	var out models.DeltaResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&out).
		Post("/api/delta")
	if err != nil {
		return models.DeltaResponse{}, fmt.Errorf("delta request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return models.DeltaResponse{}, fmt.Errorf("delta request: server returned %s", resp.Status())
	}
	return out, nil
}
