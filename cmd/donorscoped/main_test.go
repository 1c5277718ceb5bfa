package main

import (
	"context"
	"testing"

	"github.com/donorscope/donorscope/internal/ingestion"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("APP_ENV", "")

	cfg := loadConfig()
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.StorageBackend != "local" {
		t.Errorf("StorageBackend = %q, want local", cfg.StorageBackend)
	}
	if cfg.AppEnv != "production" {
		t.Errorf("AppEnv = %q, want production", cfg.AppEnv)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("STORAGE_BUCKET", "gifts")
	t.Setenv("GIFT_WEBHOOK_SECRET", "s3cret")

	cfg := loadConfig()
	if cfg.Port != "9090" || cfg.StorageBackend != "s3" || cfg.Bucket != "gifts" || cfg.WebhookSecret != "s3cret" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestNewStorage(t *testing.T) {
	ctx := context.Background()

	s, closeFn, err := newStorage(ctx, serviceConfig{StorageBackend: "local", StoragePath: t.TempDir()})
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	defer closeFn()
	if _, ok := s.(*ingestion.LocalStorage); !ok {
		t.Errorf("local backend = %T", s)
	}

	if _, _, err := newStorage(ctx, serviceConfig{StorageBackend: "ftp"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, _, err := newStorage(ctx, serviceConfig{StorageBackend: "s3"}); err == nil {
		t.Error("expected error for s3 without a bucket")
	}
	if _, _, err := newStorage(ctx, serviceConfig{StorageBackend: "gcs"}); err == nil {
		t.Error("expected error for gcs without a bucket")
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("DONORSCOPED_TEST_KEY", "")
	if got := envOrDefault("DONORSCOPED_TEST_KEY", "fallback"); got != "fallback" {
		t.Errorf("got %q", got)
	}
	t.Setenv("DONORSCOPED_TEST_KEY", "set")
	if got := envOrDefault("DONORSCOPED_TEST_KEY", "fallback"); got != "set" {
		t.Errorf("got %q", got)
	}
}
