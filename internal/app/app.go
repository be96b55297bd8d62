package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	kafkaadapter "docstream/internal/adapter/kafka"
	"docstream/internal/config"
	"docstream/internal/middleware"
	"docstream/internal/worker"

	"docstream/features/document"
	"docstream/features/job"
	"docstream/features/stats"
)

// TaskPublisher is the durable log producer. Close must flush all
// outstanding sends before releasing the connection.
type TaskPublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
	Close() error
}

type App struct {
	Handler     http.Handler
	Coordinator *worker.Coordinator
	Monitor     *worker.Monitor
	Reconciler  *worker.Reconciler

	cfg      *config.Config
	producer TaskPublisher
}

// pipelineStore joins the job repo's status transitions with the chunk
// table's embedding flag behind the single store the worker consumes.
type pipelineStore struct {
	*job.PostgresRepo
	docs *document.PostgresRepo
}

func (s *pipelineStore) SetChunkEmbeddingID(ctx context.Context, chunkID string) error {
	return s.docs.SetChunkEmbeddingID(ctx, chunkID)
}

func New(cfg *config.Config, db *sql.DB, producer TaskPublisher, vecStore worker.VectorStore, embedder worker.Embedder) (*App, error) {
	// Feature: Document
	documentRepo := document.NewPostgresRepo(db)
	documentService := document.NewService(documentRepo, producer)
	documentHandler := document.NewHandler(documentService)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobHandler := job.NewHandler(jobRepo)

	// Worker pipeline
	store := &pipelineStore{PostgresRepo: jobRepo, docs: documentRepo}
	monitor := worker.NewMonitor(time.Duration(cfg.HealthIntervalSeconds) * time.Second)

	var coordinator *worker.Coordinator
	var reconciler *worker.Reconciler
	if cfg.EnableWorker {
		if embedder == nil {
			return nil, fmt.Errorf("worker role requires an embedding client")
		}
		processor := worker.NewEmbeddingWorker(store, embedder, vecStore, cfg.EmbedRetryAttempts)
		reader := kafkaadapter.NewGroupReader(cfg.KafkaBroker, cfg.ConsumerGroup, cfg.ConsumerBatchSize)
		coordinator = worker.NewCoordinator(reader, producer, processor, store, monitor, cfg.MaxDeliveryAttempts)
		reconciler = worker.NewReconciler(
			jobRepo, producer,
			time.Duration(cfg.ReconcileIntervalSeconds)*time.Second,
			time.Duration(cfg.ReconcileMinAgeSeconds)*time.Second,
		)
	}

	// Feature: Stats
	statsHandler := stats.NewHandler(jobRepo, monitor)

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /documents", middleware.CorrelationID(http.HandlerFunc(documentHandler.Create)))
	mux.Handle("GET /documents/{id}/chunks", middleware.CorrelationID(http.HandlerFunc(documentHandler.ListChunks)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(http.HandlerFunc(jobHandler.ListFailed)))

	mux.Handle("GET /stats", middleware.CorrelationID(http.HandlerFunc(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:     mux,
		Coordinator: coordinator,
		Monitor:     monitor,
		Reconciler:  reconciler,
		cfg:         cfg,
		producer:    producer,
	}, nil
}

// Run supervises the enabled roles until the context is canceled. The
// producer is flushed and closed last so requeued messages from an
// in-flight disposition are never dropped on shutdown.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.EnableAPI {
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", a.cfg.ServerPort),
			Handler: a.Handler,
		}

		g.Go(func() error {
			<-ctx.Done()
			slog.Info("shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		g.Go(func() error {
			slog.Info("server starting", "port", a.cfg.ServerPort)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	if a.Coordinator != nil {
		g.Go(func() error {
			return a.Coordinator.Run(ctx)
		})
		g.Go(func() error {
			return a.Reconciler.Run(ctx)
		})
		g.Go(func() error {
			return a.Monitor.Run(ctx)
		})
	}

	err := g.Wait()

	if closeErr := a.producer.Close(); closeErr != nil {
		slog.Error("failed to close producer", "error", closeErr)
	}

	return err
}
