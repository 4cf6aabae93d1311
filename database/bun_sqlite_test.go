package database

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/drummonds/officepreview/config"
	"github.com/oklog/ulid/v2"
)

func newSQLiteRepository(t *testing.T) *BunDB {
	t.Helper()
	if Logger == nil {
		Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	dbFile := filepath.Join(t.TempDir(), "databases", "preview_test.sqlite")
	db, err := NewRepository(config.ServerConfig{DatabaseType: "sqlite", DatabaseDbname: dbFile})
	if err != nil {
		t.Fatalf("Failed to setup sqlite repository: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBunSQLiteDatabase(t *testing.T) {
	db := newSQLiteRepository(t)
	ctx := context.Background()

	t.Run("Save and lookup converted file", func(t *testing.T) {
		if _, ok, err := db.LookupConverted(ctx, "missing.pdf"); err != nil || ok {
			t.Fatalf("Expected no entry for missing key, got ok=%v err=%v", ok, err)
		}

		if err := db.SaveConverted(ctx, "budget_0a1b2c.pdf", "budget_0a1b2c.pdf"); err != nil {
			t.Fatalf("Failed to save converted file: %v", err)
		}
		rel, ok, err := db.LookupConverted(ctx, "budget_0a1b2c.pdf")
		if err != nil {
			t.Fatalf("Failed to lookup converted file: %v", err)
		}
		if !ok || rel != "budget_0a1b2c.pdf" {
			t.Errorf("Expected budget_0a1b2c.pdf, got %q (found %v)", rel, ok)
		}
	})

	t.Run("Save replaces existing entry", func(t *testing.T) {
		if err := db.SaveConverted(ctx, "budget_0a1b2c.pdf", "v2/budget_0a1b2c.pdf"); err != nil {
			t.Fatalf("Failed to replace converted file: %v", err)
		}
		rel, _, err := db.LookupConverted(ctx, "budget_0a1b2c.pdf")
		if err != nil {
			t.Fatalf("Failed to lookup converted file: %v", err)
		}
		if rel != "v2/budget_0a1b2c.pdf" {
			t.Errorf("Expected v2/budget_0a1b2c.pdf, got %s", rel)
		}
	})

	t.Run("Delete converted file", func(t *testing.T) {
		if err := db.DeleteConverted(ctx, "budget_0a1b2c.pdf"); err != nil {
			t.Fatalf("Failed to delete converted file: %v", err)
		}
		if _, ok, err := db.LookupConverted(ctx, "budget_0a1b2c.pdf"); err != nil || ok {
			t.Errorf("Expected entry to be gone, got ok=%v err=%v", ok, err)
		}
		// deleting twice is fine
		if err := db.DeleteConverted(ctx, "budget_0a1b2c.pdf"); err != nil {
			t.Errorf("Expected repeated delete to succeed, got %v", err)
		}
	})

	t.Run("Page sets keep order", func(t *testing.T) {
		pages := []string{"deck_1/0.jpg", "deck_1/1.jpg", "deck_1/2.jpg", "deck_1/10.jpg"}
		if err := db.SavePages(ctx, "deck_1.pdf", pages); err != nil {
			t.Fatalf("Failed to save pages: %v", err)
		}
		got, ok, err := db.LookupPages(ctx, "deck_1.pdf")
		if err != nil {
			t.Fatalf("Failed to lookup pages: %v", err)
		}
		if !ok || len(got) != len(pages) {
			t.Fatalf("Expected %d pages, got %d (found %v)", len(pages), len(got), ok)
		}
		for i := range pages {
			if got[i] != pages[i] {
				t.Errorf("Expected page %d to be %s, got %s", i, pages[i], got[i])
			}
		}

		if err := db.SavePages(ctx, "deck_1.pdf", pages[:1]); err != nil {
			t.Fatalf("Failed to replace pages: %v", err)
		}
		got, _, _ = db.LookupPages(ctx, "deck_1.pdf")
		if len(got) != 1 {
			t.Errorf("Expected replaced set of 1 page, got %d", len(got))
		}

		if err := db.DeletePages(ctx, "deck_1.pdf"); err != nil {
			t.Fatalf("Failed to delete pages: %v", err)
		}
		if _, ok, _ := db.LookupPages(ctx, "deck_1.pdf"); ok {
			t.Error("Expected page set to be gone")
		}
	})

	t.Run("Conversion jobs", func(t *testing.T) {
		okID, err := db.StartConversion(ctx, "memo_aa.pdf", "/tmp/memo.docx")
		if err != nil {
			t.Fatalf("Failed to start conversion: %v", err)
		}
		running, err := db.GetJob(ctx, okID)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if running.Status != JobStatusRunning || running.Type != JobTypeConversion {
			t.Errorf("Expected running conversion job, got %s %s", running.Type, running.Status)
		}
		if err := db.FinishConversion(ctx, okID, true, "success"); err != nil {
			t.Fatalf("Failed to finish conversion: %v", err)
		}

		failID, err := db.StartConversion(ctx, "memo_bb.pdf", "/tmp/memo2.docx")
		if err != nil {
			t.Fatalf("Failed to start conversion: %v", err)
		}
		if err := db.FinishConversion(ctx, failID, false, "incompatible-format"); err != nil {
			t.Fatalf("Failed to fail conversion: %v", err)
		}

		done, err := db.GetJob(ctx, okID)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if done.Status != JobStatusCompleted || done.Result != "success" || done.CompletedAt == nil {
			t.Errorf("Expected completed job with result, got %+v", done)
		}
		failed, err := db.GetJob(ctx, failID)
		if err != nil {
			t.Fatalf("Failed to get job: %v", err)
		}
		if failed.Status != JobStatusFailed || failed.Error != "incompatible-format" {
			t.Errorf("Expected failed job with error, got %+v", failed)
		}

		if err := db.FinishConversion(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", true, ""); err == nil {
			t.Error("Expected error finishing an unknown job")
		}

		recent, err := db.GetRecentJobs(ctx, 10)
		if err != nil {
			t.Fatalf("Failed to get recent jobs: %v", err)
		}
		if len(recent) != 2 {
			t.Errorf("Expected 2 jobs, got %d", len(recent))
		}

		removed, err := db.DeleteOldJobs(ctx, -time.Hour)
		if err != nil {
			t.Fatalf("Failed to delete old jobs: %v", err)
		}
		if removed != 2 {
			t.Errorf("Expected 2 finished jobs removed, got %d", removed)
		}
	})
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "preview.sqlite")
	cfg := config.ServerConfig{DatabaseType: "sqlite", DatabaseDbname: dbFile}

	first, err := NewRepository(cfg)
	if err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}
	if err := first.SaveConverted(context.Background(), "a.pdf", "a.pdf"); err != nil {
		t.Fatalf("Failed to save converted file: %v", err)
	}
	first.Close()

	second, err := NewRepository(cfg)
	if err != nil {
		t.Fatalf("Failed to reopen repository: %v", err)
	}
	defer second.Close()
	if _, ok, err := second.LookupConverted(context.Background(), "a.pdf"); err != nil || !ok {
		t.Errorf("Expected entry to survive reopen, got ok=%v err=%v", ok, err)
	}
}

func TestUnknownDatabaseType(t *testing.T) {
	if _, err := NewRepository(config.ServerConfig{DatabaseType: "oracle"}); err == nil {
		t.Error("Expected error for unknown database type")
	}
}

func TestCalculateUUIDUniqueWithinInstant(t *testing.T) {
	at := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := CalculateUUID(at)
		if err != nil {
			t.Fatalf("Failed to create id: %v", err)
		}
		if seen[id.String()] {
			t.Fatalf("Expected unique ids for the same instant, got duplicate %s after %d", id, i)
		}
		seen[id.String()] = true
		if id.Time() != ulid.Timestamp(at) {
			t.Errorf("Expected id timestamp %d, got %d", ulid.Timestamp(at), id.Time())
		}
	}
}

func TestStartConversionDistinctIDs(t *testing.T) {
	db := newSQLiteRepository(t)
	ctx := context.Background()
	first, err := db.StartConversion(ctx, "key-a", "/tmp/a.docx")
	if err != nil {
		t.Fatalf("Failed to start first job: %v", err)
	}
	second, err := db.StartConversion(ctx, "key-a", "/tmp/a.docx")
	if err != nil {
		t.Fatalf("Failed to start second job: %v", err)
	}
	if first == second {
		t.Errorf("Expected distinct job ids, got %s twice", first)
	}
}
