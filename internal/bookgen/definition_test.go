package bookgen_test

import (
	"context"
	"errors"
	"image"
	_ "image/png"
	"os"
	"strings"
	"testing"
	"time"

	"bookloom/internal/artifacts"
	"bookloom/internal/bookgen"
	"bookloom/internal/config"
	"bookloom/internal/library"
	"bookloom/internal/logging"
	"bookloom/internal/pipeline"
	"bookloom/internal/queue"
	"bookloom/internal/services"
	"bookloom/internal/services/genai"
	"bookloom/internal/testsupport"
)

const lease = 5 * time.Minute

type fixture struct {
	cfg    *config.Config
	stores *testsupport.Stores
	gen    *testsupport.FakeGenerator
	book   *library.Book
	exec   *pipeline.Executor
}

func newFixture(t *testing.T, chapters int, opts ...bookgen.Option) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	stores := testsupport.MustOpenStores(t, cfg, nil)
	book := testsupport.NewBook(t, stores.Library, "the storm keeper", chapters)
	gen := testsupport.NewFakeGenerator()
	gen.Handle("outline", func(context.Context, genai.Request) (genai.Result, error) {
		return genai.Result{Content: testsupport.OutlineJSON("the storm keeper", chapters), Usage: genai.Usage{Tokens: 50}}, nil
	})
	def := bookgen.New(stores.Library, gen, artifacts.NewLayout(cfg.Paths.ArtifactDir), opts...)
	if _, _, err := stores.Queue.Enqueue(context.Background(), book.ID, queue.PipelineText); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return &fixture{
		cfg:    cfg,
		stores: stores,
		gen:    gen,
		book:   book,
		exec:   pipeline.NewExecutor(stores.Queue, def, logging.NewNop()),
	}
}

func (f *fixture) run(t *testing.T) (pipeline.Outcome, *queue.Job) {
	t.Helper()
	job := testsupport.MustClaim(t, f.stores.Queue, queue.PipelineText, "w1", lease)
	outcome, err := f.exec.Execute(context.Background(), job, "w1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	reloaded, err := f.stores.Queue.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return outcome, reloaded
}

func withImages() bookgen.Option {
	return bookgen.WithImages(artifacts.ImageOptions{MaxDimension: 32, Format: "png"})
}

func TestTextPipelineProducesIllustratedBook(t *testing.T) {
	f := newFixture(t, 3, withImages())
	ctx := context.Background()

	outcome, job := f.run(t)
	if outcome != pipeline.OutcomeComplete {
		t.Fatalf("outcome = %s (error %q), want complete", outcome, job.Error)
	}

	outline, err := f.stores.Library.GetOutline(ctx, f.book.ID)
	if err != nil {
		t.Fatalf("get outline: %v", err)
	}
	if outline.Title != "The Storm Keeper" {
		t.Fatalf("outline title = %q", outline.Title)
	}
	if got := outline.Chapters[1].Title; got != "Part 2 Of The Voyage" {
		t.Fatalf("chapter 2 title = %q", got)
	}

	for i := 1; i <= 3; i++ {
		ch, err := f.stores.Library.GetChapter(ctx, f.book.ID, i)
		if err != nil {
			t.Fatalf("get chapter %d: %v", i, err)
		}
		if !ch.HasBody() {
			t.Fatalf("chapter %d has no body", i)
		}
		file, err := os.Open(ch.ImagePath)
		if err != nil {
			t.Fatalf("open chapter %d image: %v", i, err)
		}
		cfg, _, err := image.DecodeConfig(file)
		file.Close()
		if err != nil {
			t.Fatalf("decode chapter %d image: %v", i, err)
		}
		if cfg.Width != 32 || cfg.Height != 24 {
			t.Fatalf("chapter %d image = %dx%d, want 32x24", i, cfg.Width, cfg.Height)
		}
	}

	for _, kind := range []library.ExtraKind{library.ExtraCoverPrompt, library.ExtraForeword, library.ExtraAfterword} {
		if _, err := f.stores.Library.GetExtra(ctx, f.book.ID, kind); err != nil {
			t.Fatalf("extra %s: %v", kind, err)
		}
	}

	book, err := f.stores.Library.GetBook(ctx, f.book.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if book.Status != library.BookComplete {
		t.Fatalf("book status = %q, want complete", book.Status)
	}
	if got := f.gen.Count("chapter_text"); got != 3 {
		t.Fatalf("chapter_text calls = %d, want 3", got)
	}
	if got := f.gen.Count("chapter_image"); got != 3 {
		t.Fatalf("chapter_image calls = %d, want 3", got)
	}
	if job.Cost == 0 {
		t.Fatal("expected billed cost")
	}
}

func TestChapterPromptCarriesPreviousChapter(t *testing.T) {
	f := newFixture(t, 2)
	if outcome, job := f.run(t); outcome != pipeline.OutcomeComplete {
		t.Fatalf("outcome = %s (error %q)", outcome, job.Error)
	}
	first, err := f.stores.Library.GetChapter(context.Background(), f.book.ID, 1)
	if err != nil {
		t.Fatalf("get chapter 1: %v", err)
	}
	lastSentence := first.Body[strings.LastIndex(strings.TrimSuffix(first.Body, "."), ".")+1:]

	for _, req := range f.gen.Requests() {
		if req.Purpose != "chapter_text" || !strings.Contains(req.Prompt, "Write chapter 2") {
			continue
		}
		if !strings.Contains(req.Prompt, "End of the previous chapter") || !strings.Contains(req.Prompt, strings.TrimSpace(lastSentence)) {
			t.Fatalf("chapter 2 prompt lacks previous chapter context:\n%s", req.Prompt)
		}
		return
	}
	t.Fatal("no chapter 2 request recorded")
}

func TestShortOutlineFailsJob(t *testing.T) {
	f := newFixture(t, 3)
	f.gen.Handle("outline", func(context.Context, genai.Request) (genai.Result, error) {
		return genai.Result{Content: testsupport.OutlineJSON("short", 2), Usage: genai.Usage{Tokens: 40}}, nil
	})

	outcome, job := f.run(t)
	if outcome != pipeline.OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", outcome)
	}
	if !strings.Contains(job.Error, "outline has 2 chapters, want 3") {
		t.Fatalf("job error = %q", job.Error)
	}
	if job.Cost != 40 {
		t.Fatalf("cost = %d, want the rejected outline billed", job.Cost)
	}
	book, _ := f.stores.Library.GetBook(context.Background(), f.book.ID)
	if book.Status != library.BookFailed {
		t.Fatalf("book status = %q, want failed", book.Status)
	}
}

func TestLongOutlineIsTrimmed(t *testing.T) {
	f := newFixture(t, 2)
	f.gen.Handle("outline", func(context.Context, genai.Request) (genai.Result, error) {
		return genai.Result{Content: "```json\n" + testsupport.OutlineJSON("long", 4) + "\n```"}, nil
	})
	if outcome, job := f.run(t); outcome != pipeline.OutcomeComplete {
		t.Fatalf("outcome = %s (error %q)", outcome, job.Error)
	}
	chapters, err := f.stores.Library.ListChapters(context.Background(), f.book.ID)
	if err != nil {
		t.Fatalf("list chapters: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("chapters = %d, want 2", len(chapters))
	}
}

func TestRepeatedChapterIsRejected(t *testing.T) {
	f := newFixture(t, 3)
	f.gen.Handle("chapter_text", func(context.Context, genai.Request) (genai.Result, error) {
		return genai.Result{Content: testsupport.Prose("same", 60)}, nil
	})

	outcome, job := f.run(t)
	if outcome != pipeline.OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", outcome)
	}
	if !strings.Contains(job.Error, "chapter 2 repeats the previous chapter") {
		t.Fatalf("job error = %q", job.Error)
	}
	if !job.Progress.StepDone(1, queue.StepText) || job.Progress.StepDone(2, queue.StepText) {
		t.Fatalf("progress = %+v, want only chapter 1", job.Progress.Units)
	}
}

func TestRequeueResumesWithoutRegenerating(t *testing.T) {
	f := newFixture(t, 3, withImages())
	failed := false
	f.gen.Handle("chapter_image", func(_ context.Context, req genai.Request) (genai.Result, error) {
		if !failed && strings.Contains(req.Prompt, "Part 2") {
			failed = true
			return genai.Result{Usage: genai.Usage{Tokens: 7}}, services.Wrap(services.ErrTransient, "genai", "chapter_image", "status 503", nil)
		}
		return testsupport.DefaultResponse(req)
	})

	outcome, job := f.run(t)
	if outcome != pipeline.OutcomeFailed {
		t.Fatalf("first outcome = %s, want failed", outcome)
	}
	if _, err := f.stores.Queue.Requeue(context.Background(), job.ID, false, lease); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	outcome, job = f.run(t)
	if outcome != pipeline.OutcomeComplete {
		t.Fatalf("second outcome = %s (error %q)", outcome, job.Error)
	}

	want := map[string]int{"outline": 1, "cover_prompt": 1, "foreword": 1, "afterword": 1, "chapter_text": 3, "chapter_image": 4}
	for purpose, n := range want {
		if got := f.gen.Count(purpose); got != n {
			t.Errorf("%s calls = %d, want %d", purpose, got, n)
		}
	}
}

func TestResumeKeepsIllustrationWrittenBeforeCrash(t *testing.T) {
	f := newFixture(t, 3, withImages())
	ctx := context.Background()
	failed := false
	f.gen.Handle("chapter_image", func(_ context.Context, req genai.Request) (genai.Result, error) {
		if !failed && strings.Contains(req.Prompt, "Part 2") {
			failed = true
			return genai.Result{}, services.Wrap(services.ErrTransient, "genai", "chapter_image", "status 503", nil)
		}
		return testsupport.DefaultResponse(req)
	})

	outcome, job := f.run(t)
	if outcome != pipeline.OutcomeFailed {
		t.Fatalf("first outcome = %s, want failed", outcome)
	}

	// The image landed on disk but the worker died before recording it.
	path := artifacts.NewLayout(f.cfg.Paths.ArtifactDir).ChapterImagePath(f.book.ID, 2, "png")
	if _, err := artifacts.SaveImage(testsupport.PNG(64, 48), path, artifacts.ImageOptions{MaxDimension: 32, Format: "png"}); err != nil {
		t.Fatalf("save image: %v", err)
	}
	if ch, err := f.stores.Library.GetChapter(ctx, f.book.ID, 2); err != nil || ch.ImagePath != "" {
		t.Fatalf("chapter 2 before resume = %+v, %v", ch, err)
	}

	if _, err := f.stores.Queue.Requeue(ctx, job.ID, false, lease); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	outcome, job = f.run(t)
	if outcome != pipeline.OutcomeComplete {
		t.Fatalf("second outcome = %s (error %q)", outcome, job.Error)
	}

	// One for chapter 1, the failed chapter 2 attempt, one for chapter 3.
	if got := f.gen.Count("chapter_image"); got != 3 {
		t.Fatalf("chapter_image calls = %d, want 3", got)
	}
	ch, err := f.stores.Library.GetChapter(ctx, f.book.ID, 2)
	if err != nil {
		t.Fatalf("get chapter 2: %v", err)
	}
	if ch.ImagePath != path {
		t.Fatalf("chapter 2 image path = %q, want %q", ch.ImagePath, path)
	}
	if !job.Progress.StepDone(2, queue.StepImage) {
		t.Fatal("chapter 2 image flag not repaired")
	}
}

func TestBookendFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, 1)
	f.gen.Handle("foreword", func(context.Context, genai.Request) (genai.Result, error) {
		return genai.Result{}, errors.New("content filtered")
	})

	outcome, job := f.run(t)
	if outcome != pipeline.OutcomeComplete {
		t.Fatalf("outcome = %s (error %q)", outcome, job.Error)
	}
	ctx := context.Background()
	if _, err := f.stores.Library.GetExtra(ctx, f.book.ID, library.ExtraForeword); !errors.Is(err, library.ErrNotFound) {
		t.Fatalf("foreword err = %v, want not found", err)
	}
	if _, err := f.stores.Library.GetExtra(ctx, f.book.ID, library.ExtraAfterword); err != nil {
		t.Fatalf("afterword: %v", err)
	}
}

func TestStoredOutlineIsReused(t *testing.T) {
	f := newFixture(t, 2)
	err := f.stores.Library.SaveOutline(context.Background(), library.Outline{
		BookID: f.book.ID,
		Title:  "Kept",
		Chapters: []library.OutlineChapter{
			{Index: 1, Title: "One", Synopsis: "First."},
			{Index: 2, Title: "Two", Synopsis: "Second."},
		},
	})
	if err != nil {
		t.Fatalf("save outline: %v", err)
	}

	outcome, job := f.run(t)
	if outcome != pipeline.OutcomeComplete {
		t.Fatalf("outcome = %s (error %q)", outcome, job.Error)
	}
	if got := f.gen.Count("outline"); got != 0 {
		t.Fatalf("outline calls = %d, want 0", got)
	}
	if !job.Progress.HasMilestone("outline") {
		t.Fatal("outline milestone not repaired")
	}
	ch, _ := f.stores.Library.GetChapter(context.Background(), f.book.ID, 2)
	if ch == nil || ch.Title != "Two" {
		t.Fatalf("chapter 2 = %+v", ch)
	}
}

func TestCompletionHookReceivesBook(t *testing.T) {
	var got string
	f := newFixture(t, 1, bookgen.WithCompletionHook(func(_ context.Context, bookID string) error {
		got = bookID
		return nil
	}))
	if outcome, job := f.run(t); outcome != pipeline.OutcomeComplete {
		t.Fatalf("outcome = %s (error %q)", outcome, job.Error)
	}
	if got != f.book.ID {
		t.Fatalf("hook book = %q, want %q", got, f.book.ID)
	}
}
