// cmd/chat-service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"medchat-engine/internal/api"
	"medchat-engine/internal/common/config"
	"medchat-engine/internal/common/database"
	"medchat-engine/internal/common/logger"
	"medchat-engine/internal/common/observability"
	"medchat-engine/internal/genai"
	"medchat-engine/internal/knowledge"
	"medchat-engine/internal/models"
	"medchat-engine/internal/telemetry"

	ci "medchat-engine/internal/dialogue/classify-intent"
	eg "medchat-engine/internal/dialogue/evaluate-gating"
	ga "medchat-engine/internal/dialogue/generate-answer"
	mp "medchat-engine/internal/dialogue/merge-profile"
	ot "medchat-engine/internal/dialogue/orchestrate-turn"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("info", "console")
		fallback.Fatal("config load failed", zap.Error(err))
	}

	zapLog, err := logger.NewFromConfig(cfg.Logging)
	if err != nil {
		zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting chat service...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("backend", cfg.Knowledge.Backend),
		zap.String("source", cfg.Knowledge.Source),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	catalog := &cfg.Catalog
	var checks []api.ReadinessCheck

	// --- Init PostgreSQL with retry (postgres corpus source only) ---
	var pg *database.PostgresClient
	if cfg.Knowledge.Backend == config.BackendMemory && cfg.Knowledge.Source == config.SourcePostgres {
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		checks = append(checks, api.ReadinessCheck{Name: "postgres", Check: pg.Ping})
		zapLog.Info("PostgreSQL connected successfully")
	}

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	if cfg.Knowledge.Backend == config.BackendElasticsearch {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		checks = append(checks, api.ReadinessCheck{Name: "elasticsearch", Check: esClient.Ping})
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	if cfg.Knowledge.CacheEnabled {
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		checks = append(checks, api.ReadinessCheck{Name: "redis", Check: redis.Ping})
		zapLog.Info("Redis connected successfully")
	}

	// --- Knowledge ---
	storeLog := &knowledgeLoggerAdapter{log}
	var (
		retriever  knowledge.Retriever
		store      *knowledge.Store
		fileLoader *knowledge.FileLoader
	)

	switch cfg.Knowledge.Backend {
	case config.BackendElasticsearch:
		esRetriever := knowledge.NewESRetriever(esClient, cfg.Knowledge.Index, storeLog)
		if _, err := esRetriever.EnsureIndex(ctx); err != nil {
			zapLog.Warn("could not ensure knowledge index", zap.String("index", cfg.Knowledge.Index), zap.Error(err))
		}
		retriever = esRetriever
	default:
		store = knowledge.NewStore(catalog, storeLog)
		var loader knowledge.Loader
		if cfg.Knowledge.Source == config.SourcePostgres {
			pl, err := knowledge.NewPostgresLoader(pg, cfg.Knowledge.Table)
			if err != nil {
				zapLog.Fatal("invalid knowledge table", zap.Error(err))
			}
			loader = pl
		} else {
			fileLoader = knowledge.NewFileLoader(cfg.Knowledge.CorpusPath)
			loader = fileLoader
		}
		if _, err := store.Reload(ctx, loader); err != nil {
			zapLog.Fatal("initial corpus load failed", zap.Error(err))
		}
		checks = append(checks, api.ReadinessCheck{Name: "knowledge", Check: func(context.Context) error {
			if !store.Ready() {
				return errors.New("no corpus snapshot loaded")
			}
			return nil
		}})
		retriever = store
	}

	var cached *knowledge.CachedRetriever
	if cfg.Knowledge.CacheEnabled {
		cached = knowledge.NewCachedRetriever(retriever, redis,
			config.GetDuration(cfg.Knowledge.CacheTTL), storeLog)
		retriever = cached
	}

	// --- Corpus hot reload (file source only) ---
	if cfg.Knowledge.Watch && fileLoader != nil {
		watcher, err := knowledge.NewWatcher(store, fileLoader,
			config.GetDuration(cfg.Knowledge.WatchDebounce), storeLog)
		if err != nil {
			zapLog.Fatal("corpus watcher failed", zap.Error(err))
		}
		if cached != nil {
			watcher.OnReload(func(_ *knowledge.Snapshot, err error) {
				if err != nil {
					return
				}
				if _, err := cached.Invalidate(context.Background()); err != nil {
					zapLog.Warn("retrieval cache invalidation failed", zap.Error(err))
				}
			})
		}
		go func() {
			if err := watcher.Start(ctx); err != nil {
				zapLog.Error("corpus watcher stopped", zap.Error(err))
			}
		}()
	}

	// --- Dialogue components ---
	var (
		extractor  mp.Extractor
		classifier ci.Classifier
	)
	if cfg.GenAI.Enabled {
		client := genai.NewClient(&genai.Config{
			BaseURL:    cfg.GenAI.BaseURL,
			APIKey:     cfg.GenAI.APIKey,
			Timeout:    config.GetDuration(cfg.GenAI.Timeout),
			MaxRetries: cfg.GenAI.MaxRetries,
		}, &genaiLoggerAdapter{log})
		extractor = &mp.FallbackExtractor{
			Primary:   mp.NewModelExtractor(client, catalog),
			Secondary: mp.NewRuleExtractor(catalog),
		}
		classifier = &ci.FallbackClassifier{
			Primary:   ci.NewModelClassifier(client, catalog),
			Secondary: ci.NewRuleClassifier(catalog),
		}
		zapLog.Info("GenAI analysis enabled", zap.String("baseUrl", cfg.GenAI.BaseURL))
	}

	language := models.Language(cfg.Dialogue.DefaultLanguage)

	merger := mp.NewHandler(&mp.Config{Catalog: catalog}, extractor, &mergeProfileLoggerAdapter{log})
	intents := ci.NewHandler(&ci.Config{Catalog: catalog, DefaultLanguage: language}, classifier, &classifyIntentLoggerAdapter{log})
	gate := eg.NewHandler(&eg.Config{Table: cfg.Dialogue.GatingTable(), Catalog: catalog}, &evaluateGatingLoggerAdapter{log})
	answerer := ga.NewHandler(&ga.Config{Catalog: catalog, Encoding: cfg.Dialogue.TokenizerEncoding}, nil, &generateAnswerLoggerAdapter{log})

	// --- Telemetry ---
	var emitter ot.Emitter = telemetry.NopEmitter{}
	var httpEmitter *telemetry.HTTPEmitter
	if cfg.Telemetry.Enabled {
		httpEmitter = telemetry.NewHTTPEmitter(&telemetry.Config{
			MetricsURL:  cfg.Telemetry.MetricsURL,
			ServiceName: cfg.Telemetry.ServiceName,
			Timeout:     config.GetDuration(cfg.Telemetry.Timeout),
			QueueSize:   cfg.Telemetry.QueueSize,
		}, &telemetryLoggerAdapter{log})
		emitter = httpEmitter
		zapLog.Info("Telemetry enabled", zap.String("metricsUrl", cfg.Telemetry.MetricsURL))
	}

	turns := ot.NewHandler(&ot.Config{
		Catalog:         catalog,
		TurnTimeout:     config.GetDuration(cfg.Dialogue.TurnTimeout),
		DefaultLanguage: language,
		Limits: knowledge.Limits{
			MaxResults: cfg.Knowledge.MaxResults,
			MaxChars:   cfg.Knowledge.MaxChars,
		},
		Backend: cfg.Knowledge.Backend,
	}, ot.Dependencies{
		Merger:        merger,
		Classifier:    intents,
		Gate:          gate,
		Retriever:     retriever,
		Answerer:      answerer,
		Emitter:       emitter,
		Observability: obs,
	}, &orchestrateTurnLoggerAdapter{log})

	// --- HTTP Server ---
	server := api.NewServer(&api.Config{
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	}, turns, checks, &apiLoggerAdapter{log})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Routes(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("Chat server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("chat server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining turns...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down chat server", zap.Error(err))
	}

	stop()

	if httpEmitter != nil {
		if err := httpEmitter.Close(shutdownCtx); err != nil {
			zapLog.Warn("Telemetry queue not fully drained", zap.Error(err))
		}
	}

	zapLog.Info("Chat service stopped gracefully")
}

// Logger adapters for components that declare their own Logger interfaces
type mergeProfileLoggerAdapter struct {
	logger.Logger
}

func (a *mergeProfileLoggerAdapter) With(fields map[string]interface{}) mp.Logger {
	return &mergeProfileLoggerAdapter{a.Logger.With(fields)}
}

type classifyIntentLoggerAdapter struct {
	logger.Logger
}

func (a *classifyIntentLoggerAdapter) With(fields map[string]interface{}) ci.Logger {
	return &classifyIntentLoggerAdapter{a.Logger.With(fields)}
}

type evaluateGatingLoggerAdapter struct {
	logger.Logger
}

func (a *evaluateGatingLoggerAdapter) With(fields map[string]interface{}) eg.Logger {
	return &evaluateGatingLoggerAdapter{a.Logger.With(fields)}
}

type generateAnswerLoggerAdapter struct {
	logger.Logger
}

func (a *generateAnswerLoggerAdapter) With(fields map[string]interface{}) ga.Logger {
	return &generateAnswerLoggerAdapter{a.Logger.With(fields)}
}

type orchestrateTurnLoggerAdapter struct {
	logger.Logger
}

func (a *orchestrateTurnLoggerAdapter) With(fields map[string]interface{}) ot.Logger {
	return &orchestrateTurnLoggerAdapter{a.Logger.With(fields)}
}

type knowledgeLoggerAdapter struct {
	logger.Logger
}

func (a *knowledgeLoggerAdapter) With(fields map[string]interface{}) knowledge.Logger {
	return &knowledgeLoggerAdapter{a.Logger.With(fields)}
}

type genaiLoggerAdapter struct {
	logger.Logger
}

func (a *genaiLoggerAdapter) With(fields map[string]interface{}) genai.Logger {
	return &genaiLoggerAdapter{a.Logger.With(fields)}
}

type telemetryLoggerAdapter struct {
	logger.Logger
}

func (a *telemetryLoggerAdapter) With(fields map[string]interface{}) telemetry.Logger {
	return &telemetryLoggerAdapter{a.Logger.With(fields)}
}

type apiLoggerAdapter struct {
	logger.Logger
}

func (a *apiLoggerAdapter) With(fields map[string]interface{}) api.Logger {
	return &apiLoggerAdapter{a.Logger.With(fields)}
}
