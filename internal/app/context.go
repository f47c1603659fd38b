package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/proximityhq/proximity-backend/internal/cache"
	"github.com/proximityhq/proximity-backend/internal/matching"
	"github.com/proximityhq/proximity-backend/internal/vecstore"
)

// AppContext holds shared dependencies (DB, Redis, Logger, optional vector
// index). Vectors is nil when the vector store is disabled; Similarity is the
// matching-facing view of the same index.
type AppContext struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Vectors    *vecstore.Index
	Similarity matching.SimilarityProvider
}

// New creates a new AppContext. vectors may be nil when the vector store is
// disabled.
func New(db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, vectors *vecstore.Index) *AppContext {
	appCtx := &AppContext{
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Vectors:    vectors,
	}
	if vectors != nil {
		appCtx.Similarity = vectors
	}
	return appCtx
}
