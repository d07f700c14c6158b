package projection

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/contentpipe/search-projector/internal/content"
	"github.com/contentpipe/search-projector/pkg/config"
	"github.com/contentpipe/search-projector/pkg/postgres"
)

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	cfg := config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "contentsearch_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "contentsearch"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
	db, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	store := NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	rec := &Record{
		Key:          content.Key("app-1", "item-1"),
		AppID:        "app-1",
		ContentID:    "item-1",
		DocCurrent:   "doc-A",
		DocPublished: "doc-A",
		Revision:     2,
	}
	if err := store.Save(ctx, []*Record{rec}); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx, []content.ItemKey{rec.Key, content.Key("app-1", "absent")})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected only the saved record, got %d", len(loaded))
	}
	got := loaded[rec.Key]
	if got.DocCurrent != "doc-A" || got.DocPublished != "doc-A" || got.Revision != 2 || got.Deleted {
		t.Errorf("round trip mismatch: %+v", got)
	}

	// Saves replace whole records.
	rec.DocPublished = ""
	rec.Deleted = true
	if err := store.Save(ctx, []*Record{rec}); err != nil {
		t.Fatalf("save update: %v", err)
	}
	loaded, err = store.Load(ctx, []content.ItemKey{rec.Key})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got = loaded[rec.Key]
	if got.DocPublished != "" || !got.Deleted {
		t.Errorf("update not applied: %+v", got)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	loaded, err = store.Load(ctx, []content.ItemKey{rec.Key})
	if err != nil {
		t.Fatalf("load after clear: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty store after clear, got %d records", len(loaded))
	}
}
