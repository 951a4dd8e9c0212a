// cmd/indexer/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"forms-indexer/internal/common/config"
	"forms-indexer/internal/common/database"
	"forms-indexer/internal/common/logger"
	"forms-indexer/internal/common/observability"
	"forms-indexer/internal/indexer/assembler"
	"forms-indexer/internal/indexer/driver"
	"forms-indexer/internal/indexer/elastic"
	"forms-indexer/internal/indexer/extractor"
	"forms-indexer/internal/indexer/history"
	"forms-indexer/internal/indexer/listener"
	"forms-indexer/internal/indexer/mapping"
	"forms-indexer/internal/store"
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
			delay *= 2
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

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting forms indexer...",
		zap.String("environment", cfg.App.Environment),
		zap.String("index", cfg.Indexer.IndexName),
	)

	obs := observability.New(cfg.App.Name, os.Getenv("JAEGER_COLLECTOR_ENDPOINT"))
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
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
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Wire the pipeline ---
	formStore := store.NewFormStore(pg.GetDB())
	workflowStore := store.NewWorkflowStore(pg.GetDB(), cfg.Indexer.HistoryBatchSize)
	fieldCodes := extractor.NewFieldCodeCache(formStore)
	ex := extractor.New(fieldCodes, log)
	resolver := history.New(workflowStore, log)
	as := assembler.New(cfg.Indexer.InstanceName)
	indexClient := elastic.New(esClient.Client, cfg.Indexer.IndexName, cfg.Indexer.Retry, log)

	schema, err := mapping.Build(ctx, formStore)
	if err != nil {
		zapLog.Fatal("mapping schema build failed", zap.Error(err))
	}
	if err := indexClient.EnsureIndex(ctx, schema); err != nil {
		zapLog.Fatal("index setup failed", zap.Error(err))
	}

	d := driver.New(formStore, resolver, ex, as, indexClient, obs, cfg.Indexer.Workers, log)

	queue := driver.NewQueue(d, obs, cfg.Indexer.QueueSize, log)
	queue.Start(ctx, cfg.Indexer.Workers)

	events, err := listener.New(redisClient.GetClient(), cfg.Indexer.EventsChannel, queue, log)
	if err != nil {
		zapLog.Fatal("event listener setup failed", zap.Error(err))
	}
	go func() {
		if err := events.Run(ctx); err != nil && ctx.Err() == nil {
			zapLog.Error("event listener stopped", zap.Error(err))
		}
	}()

	// --- Admin / metrics HTTP listener ---
	var reindexRunning atomic.Bool
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/reindex", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !reindexRunning.CompareAndSwap(false, true) {
			http.Error(w, "re-index already running", http.StatusConflict)
			return
		}
		go func() {
			defer reindexRunning.Store(false)
			if err := d.FullReindex(context.Background()); err != nil {
				log.WithError(err).Error("full re-index finished with failures", map[string]interface{}{})
			}
		}()
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintln(w, "re-index started")
	})

	server := &http.Server{Addr: cfg.HTTP.Address, Handler: mux}
	go func() {
		zapLog.Info("HTTP listener started", zap.String("address", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Wait for shutdown ---
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	zapLog.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	queue.Stop()
	zapLog.Info("Shutdown complete")
}
