package daemonrun_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bookloom/internal/admin"
	"bookloom/internal/config"
	"bookloom/internal/daemonrun"
	"bookloom/internal/library"
	"bookloom/internal/logging"
	"bookloom/internal/queue"
	"bookloom/internal/services/genai"
	"bookloom/internal/testsupport"
	"bookloom/internal/workflow"
)

func openStores(t *testing.T, cfg *config.Config) *daemonrun.Stores {
	t.Helper()
	stores, err := daemonrun.OpenStores(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenStores: %v", err)
	}
	t.Cleanup(func() { _ = stores.Close() })
	return stores
}

func TestOpenStoresRejectsUnknownDriver(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConfig(func(c *config.Config) {
		c.Store.Driver = "mysql"
	}))
	_, err := daemonrun.OpenStores(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported store driver") {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func TestAutoNarrateEnqueuesAudioAfterText(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAutoNarrate(), testsupport.WithoutImages())
	stores := openStores(t, cfg)
	gen := testsupport.NewFakeGenerator()
	mgr := daemonrun.NewManager(cfg, stores, gen, logging.NewNop(), workflow.WithoutJobLogs())
	svc := daemonrun.NewAdmin(cfg, stores, logging.NewNop())
	ctx := context.Background()

	book, _, err := svc.EnqueueBook(ctx, admin.BookRequest{Title: "North Light", Premise: "A fox learns to sail.", Chapters: 2})
	if err != nil {
		t.Fatalf("EnqueueBook: %v", err)
	}
	gen.Handle("outline", func(context.Context, genai.Request) (genai.Result, error) {
		return genai.Result{Content: testsupport.OutlineJSON("North Light", 2)}, nil
	})

	if claimed, err := mgr.Tick(ctx, queue.PipelineText); err != nil || !claimed {
		t.Fatalf("text tick = %v, %v", claimed, err)
	}
	audio, err := stores.Jobs.FindBySubject(ctx, book.ID, queue.PipelineAudio)
	if err != nil {
		t.Fatalf("audio job not enqueued: %v", err)
	}
	if audio.Status != queue.StatusPending {
		t.Fatalf("audio status = %s", audio.Status)
	}
	stored, err := stores.Library.GetBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if stored.Status != library.BookComplete || stored.AudioStatus != library.BookQueued {
		t.Fatalf("book statuses = %s/%s", stored.Status, stored.AudioStatus)
	}

	if claimed, err := mgr.Tick(ctx, queue.PipelineAudio); err != nil || !claimed {
		t.Fatalf("audio tick = %v, %v", claimed, err)
	}
	stored, _ = stores.Library.GetBook(ctx, book.ID)
	if stored.AudioStatus != library.BookComplete {
		t.Fatalf("audio status = %s, want complete", stored.AudioStatus)
	}
}

func TestWithoutAutoNarrateLeavesAudioIdle(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutImages())
	stores := openStores(t, cfg)
	gen := testsupport.NewFakeGenerator()
	gen.Handle("outline", func(context.Context, genai.Request) (genai.Result, error) {
		return genai.Result{Content: testsupport.OutlineJSON("Quiet", 1)}, nil
	})
	mgr := daemonrun.NewManager(cfg, stores, gen, logging.NewNop(), workflow.WithoutJobLogs())
	svc := daemonrun.NewAdmin(cfg, stores, logging.NewNop())
	ctx := context.Background()

	book, _, err := svc.EnqueueBook(ctx, admin.BookRequest{Title: "Quiet", Premise: "Snow falls.", Chapters: 1})
	if err != nil {
		t.Fatalf("EnqueueBook: %v", err)
	}
	if _, err := mgr.Tick(ctx, queue.PipelineText); err != nil {
		t.Fatalf("text tick: %v", err)
	}
	if _, err := stores.Jobs.FindBySubject(ctx, book.ID, queue.PipelineAudio); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected no audio job, got %v", err)
	}
}
