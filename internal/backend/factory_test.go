package backend

import (
	"context"
	"path/filepath"
	"testing"

	"hardline/internal/config"
	"hardline/internal/storage"
	"hardline/internal/storage/memory"
)

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	t.Run("memory", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend})
		if err != nil {
			t.Fatalf("CreateBackend: %v", err)
		}
		defer res.Cleanup()
		if _, ok := res.Store.(*memory.Store); !ok {
			t.Fatalf("expected memory store, got %T", res.Store)
		}
		if res.Publisher != nil || res.AMQP != nil {
			t.Fatalf("publisher must be nil without AMQP")
		}
		if err := res.Ready(ctx); err != nil {
			t.Fatalf("Ready: %v", err)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "hl.db")})
		if err != nil {
			t.Fatalf("CreateBackend: %v", err)
		}
		if _, ok := res.Store.(*storage.SQLiteRepository); !ok {
			t.Fatalf("expected sqlite repository, got %T", res.Store)
		}
		if err := res.Ready(ctx); err != nil {
			t.Fatalf("Ready: %v", err)
		}
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup: %v", err)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, cfg := range []Config{
			{Type: "sheets"},
			{Type: SQLiteBackend},
			{Type: MemoryBackend, AMQPURL: "amqp://localhost/"},
		} {
			if _, err := f.CreateBackend(ctx, cfg); err == nil {
				t.Errorf("expected error for %+v", cfg)
			}
		}
	})
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", AMQPDialAttempts: 3})
	if err != nil || cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "x.db" || cfg.AMQPDialAttempts != 3 {
		t.Fatalf("FromAppConfig = %+v, %v", cfg, err)
	}
}
