package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"portal-backend/cmd"
	"portal-backend/internal/api"
	"portal-backend/internal/chat"
	"portal-backend/internal/database"
	"portal-backend/internal/extraction"
	"portal-backend/internal/inference"
	"portal-backend/internal/storage"
)

type APIConfig struct {
	DatabaseURL  string `env:"DATABASE_URL" envDefault:"file:portal.db"`
	ModelBaseURL string `env:"MODEL_BASE_URL" envDefault:"http://localhost:1234"`
	ModelName    string `env:"MODEL_NAME" envDefault:"qwen2.5-14b-instruct"`
	APIPort      string `env:"API_PORT" envDefault:"8001"`

	// Attachment blob storage: local directory by default, S3/MinIO when a
	// bucket is configured.
	UploadDir         string `env:"UPLOAD_DIR" envDefault:"./uploads"`
	S3Bucket          string `env:"S3_BUCKET"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	var objects storage.ObjectStore
	if cfg.S3Bucket != "" {
		objects, err = storage.NewS3Store(context.Background(), storage.S3Config{
			EndpointURL:     cfg.S3EndpointURL,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
		})
	} else {
		objects, err = storage.NewLocalStore(cfg.UploadDir)
	}
	if err != nil {
		log.Fatalf("Failed to create object store: %v", err)
	}

	llm := inference.NewClient(cfg.ModelBaseURL, cfg.ModelName)
	continuations := chat.NewContinuationStore(db)
	exchanger := chat.NewExchanger(db, llm, continuations)
	extractor := extraction.NewExtractor()

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-Id"},
	}))

	chatService := api.NewChatService(db, exchanger, extractor, objects)
	chatService.AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
