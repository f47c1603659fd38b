package main

import (
	"context"

	"github.com/proximityhq/proximity-backend/internal/app"
	"github.com/proximityhq/proximity-backend/internal/cache"
	"github.com/proximityhq/proximity-backend/internal/config"
	"github.com/proximityhq/proximity-backend/internal/db"
	"github.com/proximityhq/proximity-backend/internal/logger"
	"github.com/proximityhq/proximity-backend/internal/server"
	"github.com/proximityhq/proximity-backend/internal/vecstore"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}

	// Optional vector index for the hybrid formation strategy
	var vectors *vecstore.Index
	if cfg.Vector.Enabled {
		vectors, err = vecstore.Open(cfg.Vector.Path, vecstore.HashEmbedder{Dimension: cfg.Vector.Dimension})
		if err != nil {
			log.Error("failed to open vector index", "err", err)
			return
		}
		defer vectors.Close()
	}

	appCtx := app.New(database, redisCache, log, vectors)

	if cfg.App.Env == "development" {
		if err := db.SeedDemoData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	addr := cfg.HTTP.Host + ":" + cfg.HTTP.Port
	log.Info("starting HTTP server", "addr", addr)

	if err := server.StartHTTPServer(cfg, appCtx); err != nil {
		log.Error("failed to start HTTP server", "err", err)
	}
}
