package narration_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookloom/internal/artifacts"
	"bookloom/internal/library"
	"bookloom/internal/logging"
	"bookloom/internal/narration"
	"bookloom/internal/pipeline"
	"bookloom/internal/queue"
	"bookloom/internal/services"
	"bookloom/internal/services/genai"
	"bookloom/internal/testsupport"
)

const lease = 5 * time.Minute

var tideSentences = []string{
	"The lamp burned through the night.",
	"Waves climbed the black rocks again.",
	"The keeper counted every single ship.",
	"At dawn the storm finally grew tired.",
	"Gulls returned to the quiet harbour.",
}

type fixture struct {
	stores *testsupport.Stores
	gen    *testsupport.FakeGenerator
	layout artifacts.Layout
	book   *library.Book
	job    *queue.Job
	exec   *pipeline.Executor
}

// newFixture seeds a book whose text pipeline already finished.
func newFixture(t *testing.T, bodies []string, bookends bool) *fixture {
	t.Helper()
	ctx := context.Background()
	cfg := testsupport.NewConfig(t, testsupport.WithChunkLimit(40))
	stores := testsupport.MustOpenStores(t, cfg, nil)
	book := testsupport.NewBook(t, stores.Library, "The Storm Keeper", len(bodies))

	outline := library.Outline{BookID: book.ID, Title: book.Title}
	for i, body := range bodies {
		index := i + 1
		title := []string{"Tide", "Ebb", "Flood"}[i%3]
		outline.Chapters = append(outline.Chapters, library.OutlineChapter{Index: index, Title: title, Synopsis: "..."})
		if body != "" {
			require.NoError(t, stores.Library.SaveChapterText(ctx, book.ID, index, title, body))
		}
	}
	require.NoError(t, stores.Library.SaveOutline(ctx, outline))
	if bookends {
		require.NoError(t, stores.Library.SaveExtra(ctx, library.Extra{BookID: book.ID, Kind: library.ExtraForeword, Content: "Before we begin."}))
		require.NoError(t, stores.Library.SaveExtra(ctx, library.Extra{BookID: book.ID, Kind: library.ExtraAfterword, Content: "Thank you for listening."}))
	}

	job, _, err := stores.Queue.Enqueue(ctx, book.ID, queue.PipelineAudio)
	require.NoError(t, err)

	gen := testsupport.NewFakeGenerator()
	layout := artifacts.NewLayout(cfg.Paths.ArtifactDir)
	def := narration.New(stores.Library, gen, layout, narration.Settings{
		Voice:         "alloy",
		Format:        "mp3",
		MaxChunkChars: cfg.Narration.MaxChunkChars,
	})
	return &fixture{
		stores: stores,
		gen:    gen,
		layout: layout,
		book:   book,
		job:    job,
		exec:   pipeline.NewExecutor(stores.Queue, def, logging.NewNop()),
	}
}

func (f *fixture) run(t *testing.T) (pipeline.Outcome, *queue.Job) {
	t.Helper()
	job := testsupport.MustClaim(t, f.stores.Queue, queue.PipelineAudio, "w1", lease)
	outcome, err := f.exec.Execute(context.Background(), job, "w1")
	require.NoError(t, err)
	reloaded, err := f.stores.Queue.Get(context.Background(), job.ID)
	require.NoError(t, err)
	return outcome, reloaded
}

func (f *fixture) narrated() []string {
	var prompts []string
	for _, req := range f.gen.Requests() {
		if req.Purpose == "narration" {
			prompts = append(prompts, req.Prompt)
		}
	}
	return prompts
}

func characters(prompts []string) int64 {
	var n int64
	for _, p := range prompts {
		n += int64(len([]rune(p)))
	}
	return n
}

func expectedAudio(prompts []string) string {
	var b strings.Builder
	for _, p := range prompts {
		b.WriteString("audio:" + p + "|")
	}
	return b.String()
}

func TestNarrationCoversBookendsAndChapters(t *testing.T) {
	f := newFixture(t, []string{strings.Join(tideSentences, " "), "A short second chapter."}, true)
	ctx := context.Background()

	outcome, job := f.run(t)
	require.Equal(t, pipeline.OutcomeComplete, outcome, job.Error)

	plan, err := f.stores.Library.GetAudioPlan(ctx, f.book.ID)
	require.NoError(t, err)
	var indexes []int
	var sources []library.AudioSource
	for _, u := range plan.Units {
		indexes = append(indexes, u.Index)
		sources = append(sources, u.Source)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, indexes)
	assert.Equal(t, []library.AudioSource{library.SourceForeword, library.SourceChapter, library.SourceChapter, library.SourceAfterword}, sources)

	segments, err := f.stores.Library.ListAudioSegments(ctx, f.book.ID)
	require.NoError(t, err)
	require.Len(t, segments, 4)
	for _, seg := range segments {
		assert.FileExists(t, seg.Path)
		assert.NoDirExists(t, f.layout.AudioPartsDir(f.book.ID, seg.Index))
	}

	prompts := f.narrated()
	assert.Equal(t, characters(prompts), job.Cost)
	chapterOne := prompts[1:6]
	data, err := os.ReadFile(f.layout.AudioUnitPath(f.book.ID, 1, "mp3"))
	require.NoError(t, err)
	assert.Equal(t, expectedAudio(chapterOne), string(data))

	book, err := f.stores.Library.GetBook(ctx, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, library.BookComplete, book.AudioStatus)
}

func TestNarrationSkipsMissingBookends(t *testing.T) {
	f := newFixture(t, []string{"One.", "Two."}, false)

	outcome, job := f.run(t)
	require.Equal(t, pipeline.OutcomeComplete, outcome, job.Error)

	plan, err := f.stores.Library.GetAudioPlan(context.Background(), f.book.ID)
	require.NoError(t, err)
	require.Len(t, plan.Units, 2)
	assert.Equal(t, 1, plan.Units[0].Index)
	assert.Equal(t, 2, plan.Units[1].Index)
}

func TestNarrationPlanRequiresEveryChapter(t *testing.T) {
	f := newFixture(t, []string{"One.", ""}, false)

	outcome, job := f.run(t)
	assert.Equal(t, pipeline.OutcomeFailed, outcome)
	assert.Contains(t, job.Error, "chapter 2 has no text")
	assert.Empty(t, f.narrated())
	assert.False(t, job.Progress.HasMilestone("narration_plan"))
}

func TestCancelBetweenChunksKeepsBilledParts(t *testing.T) {
	f := newFixture(t, []string{strings.Join(tideSentences, " ")}, false)
	calls := 0
	f.gen.Handle("narration", func(_ context.Context, req genai.Request) (genai.Result, error) {
		calls++
		if calls == 2 {
			_, err := f.stores.Queue.RequestCancel(context.Background(), f.job.ID, lease)
			require.NoError(t, err)
		}
		return testsupport.DefaultResponse(req)
	})

	outcome, job := f.run(t)
	require.Equal(t, pipeline.OutcomeCancelled, outcome)

	plan, err := f.stores.Library.GetAudioPlan(context.Background(), f.book.ID)
	require.NoError(t, err)
	require.Equal(t, 5, plan.Units[0].Chunks)

	prompts := f.narrated()
	require.Len(t, prompts, 2)
	assert.Equal(t, characters(prompts), job.Cost, "exactly the two generated chunks are billed")
	assert.FileExists(t, f.layout.AudioPartPath(f.book.ID, 1, 1, "mp3"))
	assert.FileExists(t, f.layout.AudioPartPath(f.book.ID, 1, 2, "mp3"))
	assert.NoFileExists(t, f.layout.AudioPartPath(f.book.ID, 1, 3, "mp3"))
	assert.NoFileExists(t, f.layout.AudioUnitPath(f.book.ID, 1, "mp3"))

	requeued, err := f.stores.Queue.Requeue(context.Background(), f.job.ID, false, lease)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusGenerating, requeued.Status)

	outcome, job = f.run(t)
	require.Equal(t, pipeline.OutcomeComplete, outcome, job.Error)
	prompts = f.narrated()
	require.Len(t, prompts, 5, "only chunks 3-5 are generated on resume")
	assert.Equal(t, characters(prompts), job.Cost)

	data, err := os.ReadFile(f.layout.AudioUnitPath(f.book.ID, 1, "mp3"))
	require.NoError(t, err)
	assert.Equal(t, expectedAudio(prompts), string(data))
}

func TestFailedChunkKeepsCostOfFinishedChunks(t *testing.T) {
	f := newFixture(t, []string{strings.Join(tideSentences, " ")}, false)
	calls := 0
	f.gen.Handle("narration", func(_ context.Context, req genai.Request) (genai.Result, error) {
		calls++
		if calls == 3 {
			return genai.Result{}, services.Wrap(services.ErrTransient, "narration", "speech", "provider returned 503", nil)
		}
		return testsupport.DefaultResponse(req)
	})

	outcome, job := f.run(t)
	require.Equal(t, pipeline.OutcomeFailed, outcome)
	assert.Contains(t, job.Error, "provider returned 503")

	prompts := f.narrated()
	require.Len(t, prompts, 3)
	assert.Equal(t, characters(prompts[:2]), job.Cost, "only the two finished chunks are billed")
	assert.FileExists(t, f.layout.AudioPartPath(f.book.ID, 1, 2, "mp3"))
	assert.NoFileExists(t, f.layout.AudioPartPath(f.book.ID, 1, 3, "mp3"))
}

func TestNarrationReusesExistingParts(t *testing.T) {
	f := newFixture(t, []string{strings.Join(tideSentences, " ")}, false)
	testsupport.WriteFile(t, f.layout.AudioPartPath(f.book.ID, 1, 1, "mp3"), []byte("kept|"))

	outcome, job := f.run(t)
	require.Equal(t, pipeline.OutcomeComplete, outcome, job.Error)

	prompts := f.narrated()
	require.Len(t, prompts, 4)
	data, err := os.ReadFile(f.layout.AudioUnitPath(f.book.ID, 1, "mp3"))
	require.NoError(t, err)
	assert.Equal(t, "kept|"+expectedAudio(prompts), string(data))
}

func TestNarrationIgnoresInterruptedPartWrites(t *testing.T) {
	f := newFixture(t, []string{strings.Join(tideSentences, " ")}, false)
	dir := f.layout.AudioPartsDir(f.book.ID, 1)
	testsupport.WriteFile(t, filepath.Join(dir, ".chunk-001.mp3.4711.tmp"), []byte("half"))
	testsupport.WriteFile(t, f.layout.AudioPartPath(f.book.ID, 1, 2, "mp3"), []byte("kept|"))

	outcome, job := f.run(t)
	require.Equal(t, pipeline.OutcomeComplete, outcome, job.Error)

	prompts := f.narrated()
	require.Len(t, prompts, 4, "only the finished second part is reused")
	data, err := os.ReadFile(f.layout.AudioUnitPath(f.book.ID, 1, "mp3"))
	require.NoError(t, err)
	assert.Equal(t, expectedAudio(prompts[:1])+"kept|"+expectedAudio(prompts[1:]), string(data))
	assert.NoDirExists(t, dir)
}

func TestForcedRequeueNarratesAgain(t *testing.T) {
	f := newFixture(t, []string{"One.", "Two."}, false)
	outcome, _ := f.run(t)
	require.Equal(t, pipeline.OutcomeComplete, outcome)
	before := len(f.narrated())

	_, err := f.stores.Queue.Requeue(context.Background(), f.job.ID, true, lease)
	require.NoError(t, err)
	outcome, _ = f.run(t)
	require.Equal(t, pipeline.OutcomeComplete, outcome)
	assert.Equal(t, 2*before, len(f.narrated()), "forced run narrates everything again")
}
