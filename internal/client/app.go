// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

// Package client assembles the agent application: the local state
// database, the push subscription reader, the reactor, and the periodic
// reconcile job, wired into a single runnable App.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/okazakov/go-spend-sync/internal/config"
	"github.com/okazakov/go-spend-sync/internal/localstate"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/realtime"
	"github.com/okazakov/go-spend-sync/internal/syncer"
	"github.com/okazakov/go-spend-sync/internal/workers"
)

const defaultCacheTTL = 30 * time.Minute

// App is the running agent: a sync session plus its background jobs.
type App struct {
	session *syncer.Session
	job     *syncer.ReconcileJob
	local   *localstate.DB
	cfg     *config.AgentConfig
	log     *logger.Logger
}

// NewApp wires the agent from its configuration.
func NewApp(cfg *config.AgentConfig, log *logger.Logger) (*App, error) {
	local, err := localstate.Open(context.Background(), cfg.Storage.Path, log)
	if err != nil {
		return nil, fmt.Errorf("open local state: %w", err)
	}

	source := realtime.NewWSSource(realtime.WSSourceConfig{
		BaseURL: cfg.Adapter.ServerURL,
		Token:   cfg.Adapter.Token,
		Timeout: cfg.Adapter.RequestTimeout,
	}, log)
	reader := syncer.NewReader(source, log)

	api := syncer.NewHTTPDeltaAPI(syncer.HTTPDeltaAPIConfig{
		BaseURL: cfg.Adapter.ServerURL,
		Token:   cfg.Adapter.Token,
		Timeout: cfg.Adapter.RequestTimeout,
	})
	fetcher := syncer.NewFetcher(api, local, log)

	cache := syncer.NewCache(defaultCacheTTL)
	reactor := syncer.NewReactor(cfg.UserID, reader, cache, fetcher, log)
	session := syncer.NewSession(cfg.UserID, reader, reactor, cache, local, log)

	return &App{
		session: session,
		job:     syncer.NewReconcileJob(session),
		local:   local,
		cfg:     cfg,
		log:     log,
	}, nil
}

// Session exposes the sync session for the embedding application.
func (a *App) Session() *syncer.Session {
	return a.session
}

// Run starts the reactor loop and the reconcile job, subscribes to the
// given groups, and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context, groupIDs ...string) error {
	background := workers.NewWorkers(
		workers.WorkerFunc(func() { go a.session.Run(ctx) }),
		workers.WorkerFunc(func() { a.job.Start(ctx, a.cfg.Workers.ReconcileInterval) }),
	)
	background.Run()
	defer a.job.Stop()

	for _, groupID := range groupIDs {
		if err := a.session.AddGroup(ctx, groupID); err != nil {
			return fmt.Errorf("track group %s: %w", groupID, err)
		}
	}

	<-ctx.Done()
	return nil
}

// Close releases the session and the local state database.
func (a *App) Close() error {
	a.session.Close()
	return a.local.Close()
}
