package server

import (
	"context"
	"fmt"
	"time"

	"github.com/d0rc/geo-locator/engines"
	"github.com/d0rc/geo-locator/settings"
	"github.com/d0rc/geo-locator/vectors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Context carries everything a request needs, it is built once per process
// and shared by all handlers.
type Context struct {
	Config   *settings.ConfigurationFile
	Log      zerolog.Logger
	VectorDB vectors.VectorDB
	Embedder engines.Embedder
	// Cache is nil when no redis is configured
	Cache   ResultCache
	Limiter *rate.Limiter
}

func NewContext(config *settings.ConfigurationFile, lg zerolog.Logger, vectorDB vectors.VectorDB, embedder engines.Embedder, cache ResultCache) *Context {
	ctx := &Context{
		Config:   config,
		Log:      lg,
		VectorDB: vectorDB,
		Embedder: embedder,
		Cache:    cache,
	}
	if config.Server.RateLimitQPS > 0 {
		burst := config.Server.RateBurst
		if burst <= 0 {
			burst = int(config.Server.RateLimitQPS) + 1
		}
		ctx.Limiter = rate.NewLimiter(rate.Limit(config.Server.RateLimitQPS), burst)
	}
	return ctx
}

// NewContextFromConfig loads configPath and connects to the configured
// vector store, inference runtime and cache.
func NewContextFromConfig(configPath string, lg zerolog.Logger) (*Context, error) {
	config, err := settings.ProcessConfigurationFile(configPath)
	if err != nil {
		return nil, err
	}

	vectorDB, err := vectors.NewVectorDB(&config.VectorDB, lg)
	if err != nil {
		return nil, err
	}

	embedder := engines.NewRemoteInferenceEngine(&config.Inference, lg)
	if uint64(embedder.Dims()) != config.VectorDB.Dimensions {
		return nil, fmt.Errorf("inference embeddings-dims %d do not match vector-db dimensions %d",
			embedder.Dims(), config.VectorDB.Dimensions)
	}

	var cache ResultCache
	if config.Cache.RedisAddr != "" {
		cache = NewRedisCache(&config.Cache)
	}

	return NewContext(config, lg.With().Str("cfg-file", configPath).Logger(), vectorDB, embedder, cache), nil
}

// Start makes sure the collection exists and is ready before onStart is called.
func (ctx *Context) Start(c context.Context, onStart func(ctx *Context)) error {
	collection := ctx.Config.VectorDB.Collection
	err := ctx.VectorDB.CreateCollection(c, collection, vectors.CollectionParametersFromConfig(&ctx.Config.VectorDB))
	if err != nil {
		return err
	}

	ctx.Log.Info().Str("collection", collection).Msg("waiting for collection")
	err = ctx.VectorDB.WaitForCollection(c, collection, time.Duration(ctx.Config.VectorDB.PollDelayMs)*time.Millisecond)
	if err != nil {
		return err
	}

	onStart(ctx)
	return nil
}

func (ctx *Context) Close() error {
	if ctx.Cache != nil {
		_ = ctx.Cache.Close()
	}
	return ctx.VectorDB.Close()
}
