package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/hippo/internal/api"
	"github.com/nidhogg/hippo/internal/assocgraph"
	"github.com/nidhogg/hippo/internal/attention"
	"github.com/nidhogg/hippo/internal/config"
	"github.com/nidhogg/hippo/internal/consolidation"
	"github.com/nidhogg/hippo/internal/embedding"
	"github.com/nidhogg/hippo/internal/enrichment"
	"github.com/nidhogg/hippo/internal/episode"
	"github.com/nidhogg/hippo/internal/metrics"
	"github.com/nidhogg/hippo/internal/model"
	"github.com/nidhogg/hippo/internal/pipeline"
	"github.com/nidhogg/hippo/internal/semantic"
	"github.com/nidhogg/hippo/internal/store"
	"github.com/nidhogg/hippo/internal/vectorstore"
	"github.com/nidhogg/hippo/internal/writeback"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting hippo...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/hippo.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// PostgreSQL is the system of record; nothing runs without it.
	st, err := store.New(cfg.Database.Postgres.DSN,
		time.Duration(cfg.Writeback.PoolTimeoutSeconds)*time.Second, logger)
	if err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}
	defer st.Close()
	if err := st.Migrate(context.Background(), "migrations"); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// Redis backs the metrics stream and the enrichment cache; both degrade
	// cleanly when it is absent.
	var collector metrics.Collector = metrics.NewLogCollector(logger)
	var rdb *redis.Client
	if cfg.Database.Redis.URL != "" {
		stream, sErr := metrics.NewStreamCollector(cfg.Database.Redis.URL, logger)
		if sErr != nil {
			logger.Warn("Redis unavailable, metrics stay log-only", zap.Error(sErr))
		} else {
			defer stream.Close()
			collector = metrics.Multi{collector, stream}
			if opts, pErr := redis.ParseURL(cfg.Database.Redis.URL); pErr == nil {
				rdb = redis.NewClient(opts)
				defer rdb.Close()
			}
		}
	}

	// Enrichment: remote behind a circuit breaker, rule-based fallback, and a
	// Redis TTL cache when available.
	var remote enrichment.Provider
	if cfg.Enrichment.Endpoint != "" {
		remote = enrichment.NewRemoteProvider(cfg.Enrichment.Endpoint, cfg.Enrichment.APIKey,
			time.Duration(cfg.Enrichment.TimeoutSeconds)*time.Second, cfg.Enrichment.MaxRetries)
	}
	var enricher enrichment.Provider = enrichment.NewBreaker(remote,
		enrichment.NewFallbackProvider(), cfg.Enrichment.FailureThreshold, time.Minute, logger)
	if rdb != nil {
		enricher = enrichment.NewCache(enricher, rdb,
			time.Duration(cfg.Enrichment.CacheTTLSecs)*time.Second, logger)
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		logger.Warn("embedding disabled", zap.Error(err))
	}

	var vectors *vectorstore.Client
	if cfg.Database.Qdrant.Host != "" && embedder != nil {
		vc, vErr := vectorstore.NewClient(cfg.Database.Qdrant)
		if vErr != nil {
			logger.Warn("Qdrant unavailable, clustering falls back to category hash", zap.Error(vErr))
		} else if eErr := vc.EnsureCentroids(context.Background(), uint64(embedder.Dimension())); eErr != nil {
			logger.Warn("centroid collection unavailable", zap.Error(eErr))
			vc.Close()
		} else {
			vectors = vc
			defer vectors.Close()
		}
	}

	var graph *assocgraph.Graph
	if cfg.Database.Neo4j.URI != "" {
		driver, nErr := neo4j.NewDriverWithContext(cfg.Database.Neo4j.URI,
			neo4j.BasicAuth(cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, ""))
		if nErr == nil {
			nErr = driver.VerifyConnectivity(context.Background())
		}
		if nErr != nil {
			logger.Warn("Neo4j unavailable, running without association graph", zap.Error(nErr))
		} else {
			graph = assocgraph.New(driver, logger)
			defer graph.Close(context.Background())
		}
	}

	writer := writeback.NewWriter(st, cfg.Writeback, logger)
	fetchLimit := cfg.Writeback.BatchSize

	gate := attention.NewGate(cfg.Attention, logger)
	attentionJob := attention.NewJob(st, gate, writer, cfg.Attention, fetchLimit, logger)
	episodeJob := episode.NewBuilder(st, enricher, writer, cfg.Episode, fetchLimit, logger)
	sampler := consolidation.NewRandomPairSampler(cfg.Attention.Seed + 1)
	consolidationJob := consolidation.NewEngine(st, enricher, graph, sampler, writer,
		cfg.Consolidation, cfg.Episode.HebbianCap, logger)
	semanticJob := semantic.NewBuilder(st, embedder, vectors, graph, writer,
		cfg.Semantic, fetchLimit, logger)

	runner := pipeline.NewRunner(st, collector,
		time.Duration(cfg.Writeback.LockTTLSeconds)*time.Second, logger)

	stages := map[model.Stage]pipeline.StageFunc{
		model.StageAttention:     attentionJob.Run,
		model.StageEpisode:       episodeJob.Run,
		model.StageConsolidation: consolidationJob.Run,
		model.StageSemantic:      semanticJob.Run,
	}
	maintenance := map[string]pipeline.StageFunc{
		"rescale":   semanticJob.Rescale,
		"recluster": semanticJob.Recluster,
	}

	// One-shot mode: `hippo run <stage|all|rescale|recluster>` for cron-style
	// scheduling, otherwise serve the ops API.
	if len(os.Args) > 2 && os.Args[1] == "run" {
		os.Exit(runOnce(os.Args[2], runner, stages, maintenance, logger))
	}

	handler := api.NewHandler(st, runner, stages, maintenance, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("hippo listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down hippo...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func runOnce(target string, runner *pipeline.Runner,
	stages map[model.Stage]pipeline.StageFunc,
	maintenance map[string]pipeline.StageFunc, logger *zap.Logger) int {

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := func(stage model.Stage, fn pipeline.StageFunc) bool {
		result := runner.Run(ctx, stage, fn)
		return result.Status != model.RunFailed
	}

	switch {
	case target == "all":
		for _, stage := range model.Stages() {
			if !run(stage, stages[stage]) {
				return 1
			}
		}
	case maintenance[target] != nil:
		if !run(model.StageSemantic, maintenance[target]) {
			return 1
		}
	case stages[model.Stage(target)] != nil:
		if !run(model.Stage(target), stages[model.Stage(target)]) {
			return 1
		}
	default:
		logger.Error("unknown run target", zap.String("target", target))
		return 2
	}
	return 0
}
