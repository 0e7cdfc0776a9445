package admin_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookloom/internal/admin"
	"bookloom/internal/artifacts"
	"bookloom/internal/library"
	"bookloom/internal/queue"
	"bookloom/internal/services"
	"bookloom/internal/testsupport"
)

const lease = 5 * time.Minute

type fixture struct {
	stores *testsupport.Stores
	clock  *testsupport.Clock
	layout artifacts.Layout
	svc    *admin.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock(time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))
	stores := testsupport.MustOpenStores(t, cfg, clock)
	layout := artifacts.NewLayout(cfg.Paths.ArtifactDir)
	svc := admin.New(stores.Queue, stores.Library, layout, lease, admin.WithClock(clock.Now))
	return &fixture{stores: stores, clock: clock, layout: layout, svc: svc}
}

func (f *fixture) book(t *testing.T, id string) *library.Book {
	t.Helper()
	book, err := f.stores.Library.GetBook(context.Background(), id)
	require.NoError(t, err)
	return book
}

// finishText drives the text job to complete the way a worker would.
func (f *fixture) finishText(t *testing.T, jobID string) {
	t.Helper()
	ctx := context.Background()
	job := testsupport.MustClaim(t, f.stores.Queue, queue.PipelineText, "worker-a", lease)
	require.Equal(t, jobID, job.ID)
	require.NoError(t, f.stores.Queue.Finish(ctx, job.ID, "worker-a", queue.StatusComplete, ""))
}

func TestEnqueueBookCreatesQueuedBookAndTextJob(t *testing.T) {
	f := newFixture(t)
	book, job, err := f.svc.EnqueueBook(context.Background(), admin.BookRequest{
		Title: "  The Salt Road ", Premise: "Two sisters cross a desert.", Chapters: 6,
	})
	require.NoError(t, err)

	assert.Equal(t, "The Salt Road", book.Title)
	assert.Equal(t, library.BookQueued, book.Status)
	assert.Equal(t, queue.PipelineText, job.Pipeline)
	assert.Equal(t, queue.StatusPending, job.Status)
	assert.Equal(t, book.ID, job.SubjectID)
	assert.Equal(t, library.BookQueued, f.book(t, book.ID).Status)
}

func TestEnqueueBookValidatesRequest(t *testing.T) {
	f := newFixture(t)
	for name, req := range map[string]admin.BookRequest{
		"missing title":   {Premise: "p", Chapters: 3},
		"missing premise": {Title: "x", Chapters: 3},
		"no chapters":     {Title: "x", Premise: "p"},
		"too many":        {Title: "x", Premise: "p", Chapters: admin.MaxChapters + 1},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := f.svc.EnqueueBook(context.Background(), req)
			assert.ErrorIs(t, err, services.ErrValidation)
		})
	}
	books, err := f.svc.Books(context.Background())
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestEnqueueNarrationRequiresCompletedText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book, job, err := f.svc.EnqueueBook(ctx, admin.BookRequest{Title: "Ember", Premise: "A quiet adventure.", Chapters: 2})
	require.NoError(t, err)

	_, _, err = f.svc.EnqueueNarration(ctx, book.ID)
	require.ErrorIs(t, err, services.ErrValidation)

	f.finishText(t, job.ID)
	audio, created, err := f.svc.EnqueueNarration(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, queue.PipelineAudio, audio.Pipeline)
	assert.Equal(t, library.BookQueued, f.book(t, book.ID).AudioStatus)

	again, created, err := f.svc.EnqueueNarration(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, audio.ID, again.ID)
}

func TestEnqueueNarrationUnknownBook(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.EnqueueNarration(context.Background(), "missing")
	assert.ErrorIs(t, err, library.ErrNotFound)
}

func TestRequeueRejectsFreshLockAndMirrorsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book, job, err := f.svc.EnqueueBook(ctx, admin.BookRequest{Title: "Lanterns", Premise: "A quiet adventure.", Chapters: 3})
	require.NoError(t, err)

	claimed := testsupport.MustClaim(t, f.stores.Queue, queue.PipelineText, "worker-a", lease)
	require.NoError(t, f.stores.Queue.SetStatus(ctx, claimed.ID, "worker-a", queue.StatusPlanning))
	require.NoError(t, f.stores.Queue.MarkMilestone(ctx, claimed.ID, "worker-a", "outline"))
	require.NoError(t, f.stores.Queue.SetStatus(ctx, claimed.ID, "worker-a", queue.StatusPlanned))
	require.NoError(t, f.stores.Queue.SetStatus(ctx, claimed.ID, "worker-a", queue.StatusGenerating))
	require.NoError(t, f.stores.Queue.MarkUnitStep(ctx, claimed.ID, "worker-a", 0, queue.StepText))

	_, err = f.svc.Requeue(ctx, job.ID, false)
	require.ErrorIs(t, err, queue.ErrJobLocked)

	require.NoError(t, f.stores.Queue.Finish(ctx, claimed.ID, "worker-a", queue.StatusFailed, "provider down"))
	require.NoError(t, f.stores.Library.SetBookStatus(ctx, book.ID, library.BookFailed))

	requeued, err := f.svc.Requeue(ctx, job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusGenerating, requeued.Status)
	assert.Empty(t, requeued.Error)
	assert.True(t, requeued.Progress.StepDone(0, queue.StepText))
	assert.Equal(t, library.BookGenerating, f.book(t, book.ID).Status)
}

func TestRequeueCompleteNeedsForce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book, job, err := f.svc.EnqueueBook(ctx, admin.BookRequest{Title: "Orchard", Premise: "A quiet adventure.", Chapters: 1})
	require.NoError(t, err)
	f.finishText(t, job.ID)

	_, err = f.svc.Requeue(ctx, job.ID, false)
	require.ErrorIs(t, err, queue.ErrInvalidTransition)

	forced, err := f.svc.Requeue(ctx, job.ID, true)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, forced.Status)
	assert.True(t, forced.ForceRegenerate)
	assert.Equal(t, library.BookQueued, f.book(t, book.ID).Status)
}

func TestCancelIdleJobAppliesImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book, job, err := f.svc.EnqueueBook(ctx, admin.BookRequest{Title: "Quiet", Premise: "A quiet adventure.", Chapters: 2})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCancelled, cancelled.Status)
	assert.Equal(t, library.BookCancelled, f.book(t, book.ID).Status)
}

func TestPauseRunningJobSetsMarkerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book, job, err := f.svc.EnqueueBook(ctx, admin.BookRequest{Title: "Tidewater", Premise: "A quiet adventure.", Chapters: 2})
	require.NoError(t, err)
	testsupport.MustClaim(t, f.stores.Queue, queue.PipelineText, "worker-a", lease)

	paused, err := f.svc.Pause(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, paused.PauseRequested)
	assert.Equal(t, queue.StatusPending, paused.Status)
	assert.Equal(t, library.BookQueued, f.book(t, book.ID).Status)

	controls, err := f.stores.Queue.Controls(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, controls.PauseRequested)
}

func TestPauseAudioJobIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book, job, err := f.svc.EnqueueBook(ctx, admin.BookRequest{Title: "Echo", Premise: "A quiet adventure.", Chapters: 1})
	require.NoError(t, err)
	f.finishText(t, job.ID)
	audio, _, err := f.svc.EnqueueNarration(ctx, book.ID)
	require.NoError(t, err)

	_, err = f.svc.Pause(ctx, audio.ID)
	assert.ErrorIs(t, err, queue.ErrInvalidTransition)
}

func TestDeleteBookRemovesJobsRecordsAndArtifacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book, job, err := f.svc.EnqueueBook(ctx, admin.BookRequest{Title: "Paper Boats", Premise: "A quiet adventure.", Chapters: 2})
	require.NoError(t, err)
	testsupport.WriteFile(t, f.layout.ChapterImagePath(book.ID, 0, "png"), testsupport.PNG(4, 4))

	testsupport.MustClaim(t, f.stores.Queue, queue.PipelineText, "worker-a", lease)
	require.ErrorIs(t, f.svc.DeleteBook(ctx, book.ID), queue.ErrJobLocked)

	f.clock.Advance(lease + time.Second)
	require.NoError(t, f.svc.DeleteBook(ctx, book.ID))

	_, err = f.stores.Queue.Get(ctx, job.ID)
	assert.ErrorIs(t, err, queue.ErrNotFound)
	_, err = f.stores.Library.GetBook(ctx, book.ID)
	assert.ErrorIs(t, err, library.ErrNotFound)
	_, err = os.Stat(f.layout.BookDir(book.ID))
	assert.True(t, os.IsNotExist(err))
}

func TestDescribeCollectsBookState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book, job, err := f.svc.EnqueueBook(ctx, admin.BookRequest{Title: "Glass Harbor", Premise: "A quiet adventure.", Chapters: 2})
	require.NoError(t, err)
	require.NoError(t, f.stores.Library.SaveChapterText(ctx, book.ID, 0, "Arrival", "The ferry docked."))

	detail, err := f.svc.Describe(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book.ID, detail.Book.ID)
	assert.Nil(t, detail.Outline)
	assert.Len(t, detail.Chapters, 1)
	require.NotNil(t, detail.TextJob)
	assert.Equal(t, job.ID, detail.TextJob.ID)
	assert.Nil(t, detail.AudioJob)
}
