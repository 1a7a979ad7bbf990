// Studify - Education Platform Content Pipeline and Recommendations
// Copyright 2026 Bai Fan (baifan1366)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/baifan1366/Studify-sub011

// Package main is the entry point for the Studify content pipeline
// server.
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, config file, environment (Koanf v2)
//  2. Postgres: durable job queue, embedding queue, and embedding store
//  3. NATS JetStream: embedded or external, one stream for all pipeline subjects
//  4. Pipeline: signed step dispatcher, step executors, runner
//  5. Embedding: queue, dual-model generator, polling worker
//  6. Recommendations: gateway-backed provider, badger response cache, engine
//  7. HTTP API: chi router under the supervisor tree
//
// Shutdown is graceful on SIGINT and SIGTERM: the supervisor tree
// drains the HTTP server and the message router before the process
// exits.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/baifan1366/Studify-sub011/internal/api"
	"github.com/baifan1366/Studify-sub011/internal/config"
	"github.com/baifan1366/Studify-sub011/internal/embedding"
	"github.com/baifan1366/Studify-sub011/internal/logging"
	"github.com/baifan1366/Studify-sub011/internal/pipeline"
	"github.com/baifan1366/Studify-sub011/internal/recommend"
	"github.com/baifan1366/Studify-sub011/internal/store"
	"github.com/baifan1366/Studify-sub011/internal/supervisor"
	"github.com/baifan1366/Studify-sub011/internal/supervisor/services"
	"github.com/baifan1366/Studify-sub011/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Bool("embedded_nats", cfg.NATS.EmbeddedServer).
		Msg("starting studify content pipeline")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := store.New(ctx, cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		logging.Fatal().Err(err).Msg("failed to ensure schema")
	}
	logging.Info().Msg("postgres ready")

	serverCfg, pubCfg, subCfg, streamCfg, routerCfg := transport.FromAppConfig(cfg.NATS)

	natsURL := cfg.NATS.URL
	if cfg.NATS.EmbeddedServer {
		embedded, err := transport.NewEmbeddedServer(serverCfg)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to start embedded nats server")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := embedded.Shutdown(shutdownCtx); err != nil {
				logging.Error().Err(err).Msg("embedded nats shutdown")
			}
		}()
		natsURL = embedded.ClientURL()
		pubCfg.URL = natsURL
		subCfg.URL = natsURL
		logging.Info().Str("url", natsURL).Msg("embedded nats server started")
	}

	nc, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(pubCfg.ReconnectWait),
	)
	if err != nil {
		logging.Fatal().Err(err).Str("url", natsURL).Msg("failed to connect to nats")
	}
	defer nc.Close()

	streams, err := transport.NewStreamManager(nc, streamCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create stream manager")
	}
	if _, err := streams.EnsureStream(ctx); err != nil {
		logging.Fatal().Err(err).Msg("failed to provision pipeline stream")
	}

	wmLogger := logging.NewWatermillAdapter()

	publisher, err := transport.NewPublisher(pubCfg, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create publisher")
	}
	defer publisher.Close()
	publisher.SetCircuitBreaker(transport.NewPublishBreaker())

	subscriber, err := transport.NewSubscriber(subCfg, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create subscriber")
	}
	defer subscriber.Close()

	router, err := transport.NewRouter(routerCfg, publisher.WatermillPublisher(), wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create message router")
	}

	signer, err := transport.NewSigner(cfg.Pipeline.SigningSecret, cfg.Pipeline.SignatureMaxAge)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create step signer")
	}

	dispatcher := pipeline.NewDispatcher(publisher, pg, signer, cfg.Pipeline)

	contentReader := embedding.NewHTTPContentReader(cfg.Pipeline.ContentSourceURL, cfg.Pipeline.ClientTimeout)
	queue := embedding.NewQueue(pg, contentReader)

	var modelA, modelB embedding.Embedder
	if cfg.Embedding.ModelAURL != "" {
		modelA = embedding.NewHTTPEmbedder("model_a", cfg.Embedding.ModelAURL, cfg.Embedding.APIKey, cfg.Embedding.ClientTimeout)
	}
	if cfg.Embedding.ModelBURL != "" {
		modelB = embedding.NewHTTPEmbedder("model_b", cfg.Embedding.ModelBURL, cfg.Embedding.APIKey, cfg.Embedding.ClientTimeout)
	}
	generator, err := embedding.NewGenerator(pg, modelA, modelB, cfg.Embedding.MaxRetries)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create embedding generator")
	}
	embeddingWorker := embedding.NewWorker(generator, cfg.Embedding.BatchSize, cfg.Embedding.Interval)

	compressor := pipeline.NewHTTPCompressor(cfg.Pipeline.CompressorURL, cfg.Pipeline.ClientTimeout)
	transcriber := pipeline.NewHTTPTranscriber(cfg.Pipeline.TranscriberURL, cfg.Pipeline.ClientTimeout)
	contentSource := pipeline.NewHTTPContentSource(cfg.Pipeline.ContentSourceURL, cfg.Pipeline.ClientTimeout)

	runner := pipeline.NewRunner(pg, signer, dispatcher, cfg.Pipeline.StepTimeout,
		pipeline.NewCompressExecutor(compressor),
		pipeline.NewTranscribeExecutor(contentSource, transcriber, queue, pg),
		pipeline.NewEmbedExecutor(queue),
	)
	if cfg.Pipeline.NotifierURL != "" {
		runner.SetNotifier(pipeline.NewHTTPNotifier(cfg.Pipeline.NotifierURL, cfg.Pipeline.ClientTimeout))
	}
	runner.Register(router, subscriber.WatermillSubscriber())

	jobs := pipeline.NewService(pg, dispatcher, cfg.Pipeline)

	engine, err := buildRecommendEngine(cfg, pg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create recommendation engine")
	}
	if engine != nil {
		defer engine.Close()
	}

	var recommender api.Recommender
	if engine != nil {
		recommender = engine
	}

	apiServer := api.NewServer(cfg.Server, jobs, runner, signer, queue, recommender,
		api.ReadinessCheck{Name: "postgres", Check: pg.Ping},
		api.ReadinessCheck{Name: "nats", Check: func(ctx context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats connection %s", nc.Status())
			}
			return nil
		}},
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	tree.AddMessagingService(services.NewRouterService(router))
	tree.AddMessagingService(embeddingWorker)
	tree.AddMessagingService(pipeline.NewRetryReclaimer(pg, dispatcher, cfg.Pipeline.RetrySweepInterval))
	tree.AddAPIService(services.NewHTTPService(httpServer, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", httpServer.Addr).Msg("supervisor tree starting")
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Fatal().Err(err).Msg("supervisor tree failed")
	}
	logging.Info().Msg("shutdown complete")
}

// buildRecommendEngine wires the recommendation stack. A missing
// gateway URL disables recommendations entirely; the API then answers
// 503 on the recommendations endpoint.
func buildRecommendEngine(cfg *config.Config, pg *store.Postgres) (*recommend.Engine, error) {
	if cfg.Recommend.GatewayURL == "" {
		logging.Warn().Msg("recommendation gateway not configured; recommendations disabled")
		return nil, nil
	}

	provider, err := recommend.NewGatewayProvider(cfg.Recommend.GatewayURL, cfg.Recommend.GatewayTimeout, pg)
	if err != nil {
		return nil, err
	}

	var cache recommend.ResponseCache
	if cfg.Recommend.CachePath != "" {
		cache, err = recommend.NewBadgerCache(cfg.Recommend.CachePath, cfg.Recommend.CacheTTL)
		if err != nil {
			return nil, err
		}
	}

	return recommend.NewEngine(cfg.Recommend, provider, cache)
}
