// Command donorscoped is the hosted donorscope service.
// It serves the REST API, the gift webhook endpoint, Prometheus metrics,
// and a health check.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/donorscope/donorscope/internal/api"
	"github.com/donorscope/donorscope/internal/ingestion"
	"github.com/donorscope/donorscope/internal/metrics"
	"github.com/donorscope/donorscope/internal/platform"
	"github.com/donorscope/donorscope/internal/research"
	"github.com/donorscope/donorscope/internal/store"
	"github.com/donorscope/donorscope/internal/webhook"
	"github.com/donorscope/donorscope/pkg/config"
	"github.com/donorscope/donorscope/pkg/scoring"
)

type serviceConfig struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	ScoringConfig  string
	StorageBackend string
	StoragePath    string
	Bucket         string
	BucketPrefix   string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	WebhookSecret  string
	APIKey         string
}

func loadConfig() serviceConfig {
	return serviceConfig{
		AppEnv:         envOrDefault("APP_ENV", "production"),
		Port:           envOrDefault("PORT", "8080"),
		DatabaseURL:    envOrDefault("DATABASE_URL", "postgres://localhost:5432/donorscope?sslmode=disable"),
		ScoringConfig:  os.Getenv("SCORING_CONFIG"),
		StorageBackend: envOrDefault("STORAGE_BACKEND", "local"),
		StoragePath:    envOrDefault("LOCAL_STORAGE_PATH", "/tmp/donorscope-data"),
		Bucket:         os.Getenv("STORAGE_BUCKET"),
		BucketPrefix:   os.Getenv("STORAGE_PREFIX"),
		S3Region:       os.Getenv("AWS_REGION"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3AccessKey:    os.Getenv("AWS_ACCESS_KEY_ID"),
		S3SecretKey:    os.Getenv("AWS_SECRET_ACCESS_KEY"),
		WebhookSecret:  os.Getenv("GIFT_WEBHOOK_SECRET"),
		APIKey:         os.Getenv("API_KEY"),
	}
}

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg := loadConfig()
	logger := platform.NewLogger(cfg.AppEnv)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("donorscoped exited")
	}
}

func run(cfg serviceConfig, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg, err := config.Load(cfg.ScoringConfig)
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := platform.AutoMigrate(db); err != nil {
		return err
	}
	if v, dirty, err := platform.SchemaVersion(db); err == nil {
		logger.Info().Uint("schema_version", v).Bool("dirty", dirty).Msg("migrations applied")
	}

	storage, closeStorage, err := newStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()
	logger.Info().Str("backend", cfg.StorageBackend).Msg("blob storage ready")

	// Initialize services
	m := metrics.New()
	storeSvc := store.NewService(db)
	engine := scoring.NewEngine(appCfg.Scoring.Policy()).WithConcurrency(appCfg.Scoring.Concurrency)

	summarizer, err := research.New(appCfg.Research, engine, nil)
	if err != nil {
		return err
	}
	summarizer = research.Instrumented{Next: summarizer, Provider: firstNonEmpty(appCfg.Research.Provider, research.ProviderPerplexity), Metrics: m}

	ingestionSvc := ingestion.NewService(storeSvc, storage, engine, logger, m)
	apiHandler := api.NewHandler(storeSvc, ingestionSvc, engine, summarizer, nil, logger)

	if cfg.WebhookSecret == "" {
		logger.Warn().Msg("GIFT_WEBHOOK_SECRET is not set; gift webhooks will be rejected")
	}
	webhookHandler := webhook.NewHandler([]byte(cfg.WebhookSecret), storeSvc, logger, m)

	// Set up HTTP routes
	apiMux := http.NewServeMux()
	apiHandler.RegisterRoutes(apiMux)

	mux := http.NewServeMux()
	mux.Handle("/api/", api.APIKeyAuth(cfg.APIKey)(apiMux))
	mux.Handle("POST /v1/webhooks/gifts", webhookHandler)
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", healthHandler(db))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.RequestLogger(logger)(api.CORS(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("starting donorscoped")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newStorage selects the blob store named by STORAGE_BACKEND.
func newStorage(ctx context.Context, cfg serviceConfig) (ingestion.StorageClient, func(), error) {
	noop := func() {}
	switch cfg.StorageBackend {
	case "local":
		return ingestion.NewLocalStorage(cfg.StoragePath), noop, nil
	case "s3":
		s, err := ingestion.NewS3Storage(ctx, ingestion.S3Config{
			Bucket:    cfg.Bucket,
			Prefix:    cfg.BucketPrefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case "gcs":
		s, err := ingestion.NewGCSStorage(ctx, cfg.Bucket, cfg.BucketPrefix)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown STORAGE_BACKEND %q (want local, s3 or gcs)", cfg.StorageBackend)
	}
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "database unreachable"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
