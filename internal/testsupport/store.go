package testsupport

import (
	"context"
	"testing"
	"time"

	"bookloom/internal/config"
	"bookloom/internal/database"
	"bookloom/internal/library"
	"bookloom/internal/queue"
)

// Stores bundles the SQLite-backed stores a test needs.
type Stores struct {
	DB      *database.DB
	Queue   *queue.Store
	Library *library.SQLiteStore
}

// MustOpenStores opens the configured SQLite database and registers cleanup.
// When clock is non-nil both stores read time from it.
func MustOpenStores(t testing.TB, cfg *config.Config, clock *Clock) *Stores {
	t.Helper()

	db, err := database.OpenSQLite(context.Background(), cfg.Store.SQLitePath)
	if err != nil {
		t.Fatalf("database.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	var (
		queueOpts   []queue.Option
		libraryOpts []library.Option
	)
	if clock != nil {
		queueOpts = append(queueOpts, queue.WithClock(clock.Now))
		libraryOpts = append(libraryOpts, library.WithClock(clock.Now))
	}
	return &Stores{
		DB:      db,
		Queue:   queue.NewStore(db, queueOpts...),
		Library: library.NewStore(db, libraryOpts...),
	}
}

// NewBook creates a book for tests.
func NewBook(t testing.TB, store library.Store, title string, chapters int) *library.Book {
	t.Helper()

	book, err := store.CreateBook(context.Background(), library.Book{
		Title:        title,
		Premise:      "A lighthouse keeper befriends a storm.",
		Audience:     "children",
		ChapterCount: chapters,
	})
	if err != nil {
		t.Fatalf("store.CreateBook: %v", err)
	}
	return book
}

// MustClaim claims the next job of pipeline for owner and fails the test when
// nothing is claimable.
func MustClaim(t testing.TB, store queue.Repository, pipeline queue.Pipeline, owner string, lease time.Duration) *queue.Job {
	t.Helper()

	job, err := store.ClaimNext(context.Background(), pipeline, nil, lease, owner)
	if err != nil {
		t.Fatalf("store.ClaimNext: %v", err)
	}
	if job == nil {
		t.Fatalf("no %s job claimable", pipeline)
	}
	return job
}
