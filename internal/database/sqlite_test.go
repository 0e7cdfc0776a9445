package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"bookloom/internal/database"
)

func TestOpenSQLiteCreatesSchemaOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "bookloom.db")

	db, err := database.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	second, err := database.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	var versions int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&versions); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if versions != 1 {
		t.Fatalf("expected one schema_version row, got %d", versions)
	}

	health, err := db.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.Readable || !health.IntegrityCheck || health.SchemaVersion != database.SchemaVersion {
		t.Fatalf("unexpected health %+v", health)
	}
	if health.Location != path {
		t.Fatalf("unexpected location %q", health.Location)
	}
}

func TestOpenSQLiteRejectsOtherSchemaVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bookloom.db")
	db, err := database.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, err := db.ExecAffected(ctx, "UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := database.OpenSQLite(ctx, path); !errors.Is(err, database.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestFormatTimeSortsChronologically(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base.Add(500 * time.Millisecond),
		base,
		base.Add(time.Nanosecond),
		base.Add(-time.Hour),
		base.Add(90 * time.Second),
	}
	formatted := make([]string, len(times))
	for i, ts := range times {
		formatted[i] = database.FormatTime(ts)
		if len(formatted[i]) != len(database.TimeLayout) {
			t.Fatalf("expected fixed width, got %q", formatted[i])
		}
	}
	sort.Strings(formatted)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i := range times {
		parsed, err := database.ParseTime(formatted[i])
		if err != nil {
			t.Fatalf("ParseTime(%q): %v", formatted[i], err)
		}
		if !parsed.Equal(times[i]) {
			t.Fatalf("order mismatch at %d: %s vs %s", i, parsed, times[i])
		}
	}
}

func TestFormatTimeNormalizesZone(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*60*60)
	local := time.Date(2026, 3, 1, 14, 0, 0, 0, zone)
	if got := database.FormatTime(local); got != "2026-03-01T12:00:00.000000000Z" {
		t.Fatalf("unexpected formatted time %q", got)
	}
}
