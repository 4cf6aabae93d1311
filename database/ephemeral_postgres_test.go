package database

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/drummonds/officepreview/config"
)

func TestEphemeralPostgresRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping ephemeral PostgreSQL test in short mode")
	}
	Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// postgres binaries are not installed everywhere
	server, sqlDB, err := setupEphemeralPostgres(ctx)
	if err != nil {
		t.Skipf("Ephemeral PostgreSQL unavailable: %v", err)
	}
	sqlDB.Close()
	server.Cleanup()

	repo, err := NewRepository(config.ServerConfig{DatabaseType: "ephemeral"})
	if err != nil {
		t.Fatalf("Failed to setup ephemeral repository: %v", err)
	}
	defer repo.Close()

	if err := repo.SaveConverted(ctx, "report_abc.pdf", "report_abc.pdf"); err != nil {
		t.Fatalf("Failed to save converted file: %v", err)
	}
	if err := repo.SaveConverted(ctx, "report_abc.pdf", "nested/report_abc.pdf"); err != nil {
		t.Fatalf("Failed to upsert converted file: %v", err)
	}
	rel, ok, err := repo.LookupConverted(ctx, "report_abc.pdf")
	if err != nil {
		t.Fatalf("Failed to lookup converted file: %v", err)
	}
	if !ok || rel != "nested/report_abc.pdf" {
		t.Errorf("Expected nested/report_abc.pdf, got %q (found %v)", rel, ok)
	}

	id, err := repo.StartConversion(ctx, "report_abc.pdf", "/tmp/report.docx")
	if err != nil {
		t.Fatalf("Failed to start conversion job: %v", err)
	}
	if err := repo.FinishConversion(ctx, id, true, "success"); err != nil {
		t.Fatalf("Failed to finish conversion job: %v", err)
	}
	job, err := repo.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if job.Status != JobStatusCompleted {
		t.Errorf("Expected status %s, got %s", JobStatusCompleted, job.Status)
	}
}
