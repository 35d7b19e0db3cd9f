package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/okazakov/go-spend-sync/internal/config"
	"github.com/okazakov/go-spend-sync/internal/deltasvc"
	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/internal/metrics"
	"github.com/okazakov/go-spend-sync/internal/realtime"
	"github.com/okazakov/go-spend-sync/internal/server"
	"github.com/okazakov/go-spend-sync/internal/token"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	log := logger.NewLogger("spend-sync-server")
	cfg, err := config.GetStructuredConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}
	if err = cfg.ValidateServer(); err != nil {
		log.Fatal().Err(err).Msg("invalid server configs")
	}

	log.Debug().Any("config", cfg).Msg("received configs")

	if err = metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatal().Err(err).Msg("error registering metrics")
	}

	ctx := context.Background()
	store, err := docstore.NewPostgres(ctx, cfg.Storage.DB.DSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error connecting to database")
	}
	defer func() { _ = store.Close() }()

	if err = store.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("error applying migrations")
	}

	tokens, err := token.NewManager(cfg.Auth.TokenIssuer, cfg.Auth.TokenSignKey, cfg.Auth.TokenDuration)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating token manager")
	}

	api := deltasvc.NewHandler(deltasvc.NewService(store.DB(), log), tokens, log)
	bridge := realtime.NewBridge(store, log)
	router := server.NewRouter(api, bridge, tokens, log)

	srv, err := server.NewServer(router, cfg.Server, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating server")
	}

	srv.RunServer()
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}

	if buildDate == "" {
		buildDate = "N/A"
	}

	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
