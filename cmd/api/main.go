package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	appanalysis "github.com/respiralab/breathe-easy/internal/application/analysis"
	"github.com/respiralab/breathe-easy/internal/config"
	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
	"github.com/respiralab/breathe-easy/internal/infra/classifier"
	mysqlp "github.com/respiralab/breathe-easy/internal/infra/db/mysql"
	postgresp "github.com/respiralab/breathe-easy/internal/infra/db/postgres"
	"github.com/respiralab/breathe-easy/internal/infra/httpserver"
	minioStore "github.com/respiralab/breathe-easy/internal/infra/storage"
	"github.com/respiralab/breathe-easy/internal/infra/stream"
	"github.com/respiralab/breathe-easy/internal/infra/transcribe"
	"github.com/respiralab/breathe-easy/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect history database
	var db *sql.DB
	var repo domain.Repository
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		repo = postgresp.NewHistoryRepository(db)
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		repo = mysqlp.NewHistoryRepository(db)
	}
	defer db.Close()

	// init minio (optional: skip artifact retention when unconfigured)
	var artifacts domain.ArtifactStore
	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		artifacts = store
	}

	// init upstream classifier
	model := classifier.New(cfg.Classifier.URL, time.Duration(cfg.Classifier.TimeoutSeconds)*time.Second)

	// init whisper (optional)
	var transcriber domain.Transcriber
	if cfg.OpenAI.APIKey != "" {
		transcriber = transcribe.NewWhisper(cfg.OpenAI.APIKey, cfg.OpenAI.WhisperModel)
	}

	// init stream sessions
	spool, err := stream.OpenSpool(cfg.Stream.SpoolPath)
	if err != nil {
		log.Fatalf("stream spool error: %v", err)
	}
	defer spool.Close()

	streams := stream.NewManager(spool, time.Duration(cfg.Stream.IdleTimeoutSeconds)*time.Second)
	defer streams.Close()

	// init service
	svc := &appanalysis.Service{
		Repo:        repo,
		Classifier:  model,
		Transcriber: transcriber,
		Artifacts:   artifacts,
		Clock:       appanalysis.SystemClock{},
	}

	// init router
	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(svc, streams, httpserver.Options{
		APIKeys:      cfg.Auth.APIKeys,
		ModelVersion: cfg.Classifier.ModelVersion,
		Labels:       cfg.Classifier.Labels,
		RateCapacity: 30,
		RateRefill:   1,
		Checks: map[string]middleware.HealthChecker{
			"database":   &middleware.DatabaseHealthChecker{DB: db},
			"classifier": &middleware.ClassifierHealthChecker{Classifier: model},
		},
	}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// run server
	go func() {
		log.Printf("gateway listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down gateway...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
