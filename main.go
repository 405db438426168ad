package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paperbase/backend/features/chat"
	"paperbase/backend/features/document"
	"paperbase/backend/features/job"
	"paperbase/backend/features/sync"
	"paperbase/backend/features/webhook"
	"paperbase/backend/internal/adapter/gemini"
	"paperbase/backend/internal/adapter/storage"
	wstore "paperbase/backend/internal/adapter/weaviate"
	"paperbase/backend/internal/answer"
	"paperbase/backend/internal/config"
	"paperbase/backend/internal/logger"
	"paperbase/backend/internal/middleware"
	"paperbase/backend/internal/pdfx"
	"paperbase/backend/internal/text"
	"paperbase/backend/internal/vector"
	"paperbase/backend/internal/watcher"
	"paperbase/backend/internal/worker"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

func main() {
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	// 1. Database
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("failed to open db connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		slog.Error("failed to ping db after retries", "error", err)
		os.Exit(1)
	}

	// 2. Migrations
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		slog.Error("failed to create migration driver", "error", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		slog.Error("failed to create migration instance", "error", err)
		os.Exit(1)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied successfully")

	// 3. Object storage
	minioClient, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		slog.Error("failed to create minio client", "error", err)
		os.Exit(1)
	}
	objectStore := storage.NewStore(minioClient, cfg.MinioBucket)

	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err = objectStore.EnsureBucket(context.Background()); err == nil {
			slog.Info("bucket ensured", "bucket", cfg.MinioBucket)
			break
		}
		slog.Warn("failed to ensure bucket, retrying...", "attempt", i+1, "error", err)
		time.Sleep(retryDelay)
	}
	if err != nil {
		slog.Error("failed to ensure bucket after retries", "error", err)
		os.Exit(1)
	}

	// 4. Weaviate connection & schema
	wClient, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.WeaviateHost,
		Scheme: cfg.WeaviateScheme,
	})
	if err != nil {
		slog.Error("failed to create weaviate client", "error", err)
		os.Exit(1)
	}

	wAdapter := vector.NewWeaviateClientAdapter(wClient)
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err = vector.EnsureSchema(context.Background(), wAdapter); err == nil {
			slog.Info("weaviate schema ensured")
			break
		}
		slog.Warn("failed to ensure weaviate schema, retrying...", "attempt", i+1, "error", err)
		time.Sleep(retryDelay)
	}
	if err != nil {
		slog.Error("failed to ensure weaviate schema after retries", "error", err)
		os.Exit(1)
	}
	vecStore := wstore.NewStore(wClient)

	// 5. Gemini
	embedder, err := gemini.NewEmbedder(context.Background(), cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	completer, err := gemini.NewCompleter(context.Background(), cfg.GeminiAPIKey, cfg.CompletionModel)
	if err != nil {
		slog.Error("failed to create completer", "error", err)
		os.Exit(1)
	}

	// 6. NSQ producer, topic pre-creation
	nsqProducer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		slog.Error("failed to create NSQ producer", "error", err)
		os.Exit(1)
	}

	// NSQ creates topics lazily on publish; consumers asking lookupd get 404
	// until then, so create the topic up front via the nsqd http api.
	topicURL := fmt.Sprintf("http://%s/topic/create?topic=%s", cfg.NSQDHTTP, config.TopicIndexTask)
	if host, _, splitErr := net.SplitHostPort(cfg.NSQDHTTP); splitErr != nil || host == "" {
		slog.Warn("NSQD_HTTP not in host:port form, using as-is", "value", cfg.NSQDHTTP)
	}
	go func() {
		time.Sleep(retryDelay)
		resp, err := http.Post(topicURL, "application/json", nil)
		if err != nil {
			slog.Warn("failed to pre-create index.task topic", "error", err, "url", topicURL)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			slog.Info("index.task topic pre-created successfully")
		}
	}()

	// 7. Features
	splitter := text.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	extractor := pdfx.NewExtractor()

	documentRepo := document.NewPostgresRepo(db)
	documentService := document.NewService(documentRepo, objectStore, extractor, embedder, vecStore, nsqProducer, splitter)
	documentHandler := document.NewHandler(documentService, cfg.MaxUploadSizeMB<<20)

	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, nsqProducer)
	jobHandler := job.NewHandler(jobService)

	syncService := sync.NewService(documentRepo, objectStore, vecStore)
	syncHandler := sync.NewHandler(syncService)

	queryLogger, err := answer.NewFileQueryLogger("data/logs/query.log")
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = answer.NewQueryLogger(os.Stdout)
	}
	answerService := answer.NewService(embedder, vecStore, completer, queryLogger)
	chatHandler := chat.NewHandler(answerService)

	storageWatcher := watcher.New(documentService, objectStore, documentRepo,
		time.Duration(cfg.WatchIntervalSeconds)*time.Second)
	watcherHandler := watcher.NewHandler(storageWatcher)

	webhookHandler := webhook.NewHandler(documentService, storageWatcher)

	// 8. Index task consumer
	indexConsumer := worker.NewIndexConsumer(documentService, jobRepo)
	consumer, err := nsq.NewConsumer(config.TopicIndexTask, "backend", nsq.NewConfig())
	if err != nil {
		slog.Error("failed to create NSQ consumer", "error", err)
		os.Exit(1)
	}
	consumer.AddHandler(nsq.HandlerFunc(indexConsumer.HandleMessage))
	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		slog.Error("failed to connect to NSQLookupd", "error", err)
	} else {
		slog.Info("index task consumer connected")
	}

	// 9. Reconcile once before the watcher starts ticking.
	if report, err := syncService.Reconcile(context.Background()); err != nil {
		slog.Error("startup reconcile failed", "error", err)
	} else {
		slog.Info("startup reconcile complete", "removed", report.Removed, "orphans", report.Orphans)
	}

	storageWatcher.Start(context.Background())

	// 10. Routes
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.CorrelationID(enableCORS(h)))
	}

	route("POST /documents/upload", documentHandler.Upload)
	route("GET /documents", documentHandler.List)
	route("GET /documents/{id}", documentHandler.Get)
	route("DELETE /documents/{id}", documentHandler.Delete)
	route("POST /documents/process-from-storage", documentHandler.ProcessFromStorage)

	route("GET /storage/files", documentHandler.ListStorageFiles)
	route("GET /storage/files/{object}/url", documentHandler.FileURL)

	route("POST /webhooks/storage", webhookHandler.HandleStorageEvent)

	route("GET /watcher/status", watcherHandler.Status)
	route("POST /watcher/force-check", watcherHandler.ForceCheck)

	route("POST /sync/reconcile", syncHandler.Reconcile)
	route("GET /sync/status", syncHandler.Status)

	route("POST /chat", chatHandler.Ask)

	route("GET /jobs", jobHandler.List)
	route("POST /jobs/{id}/retry", jobHandler.Retry)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// 11. Serve with graceful shutdown
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	storageWatcher.Stop()
	consumer.Stop()
	<-consumer.StopChan
	nsqProducer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	slog.Info("shutdown complete")
}
