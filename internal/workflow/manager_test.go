package workflow_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"bookloom/internal/artifacts"
	"bookloom/internal/bookgen"
	"bookloom/internal/config"
	"bookloom/internal/library"
	"bookloom/internal/logging"
	"bookloom/internal/narration"
	"bookloom/internal/notifications"
	"bookloom/internal/queue"
	"bookloom/internal/services/genai"
	"bookloom/internal/testsupport"
	"bookloom/internal/workflow"
)

type harness struct {
	cfg    *config.Config
	stores *testsupport.Stores
	clock  *testsupport.Clock
	gen    *testsupport.FakeGenerator
	mgr    *workflow.Manager
}

func newHarness(t *testing.T, cfgOpts []testsupport.ConfigOption, opts ...workflow.ManagerOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithoutImages()}, cfgOpts...)...)
	clock := testsupport.NewClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	stores := testsupport.MustOpenStores(t, cfg, clock)
	gen := testsupport.NewFakeGenerator()
	gen.Handle("outline", func(context.Context, genai.Request) (genai.Result, error) {
		return genai.Result{Content: testsupport.OutlineJSON("voyage", 2)}, nil
	})
	layout := artifacts.NewLayout(cfg.Paths.ArtifactDir)

	mgr := workflow.NewManager(cfg, stores.Queue, logging.NewNop(), append([]workflow.ManagerOption{workflow.WithOwner("worker-a")}, opts...)...)
	mgr.ConfigureLanes(
		bookgen.New(stores.Library, gen, layout),
		narration.New(stores.Library, gen, layout, narration.Settings{Voice: "alloy", Format: "mp3", MaxChunkChars: 200}),
	)
	return &harness{cfg: cfg, stores: stores, clock: clock, gen: gen, mgr: mgr}
}

func (h *harness) enqueueBook(t *testing.T, title string) (*library.Book, *queue.Job) {
	t.Helper()
	book := testsupport.NewBook(t, h.stores.Library, title, 2)
	job, _, err := h.stores.Queue.Enqueue(context.Background(), book.ID, queue.PipelineText)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return book, job
}

func (h *harness) job(t *testing.T, id string) *queue.Job {
	t.Helper()
	job, err := h.stores.Queue.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return job
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTickProcessesOneJobPerCall(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, first := h.enqueueBook(t, "first")
	h.clock.Advance(time.Second)
	_, second := h.enqueueBook(t, "second")

	claimed, err := h.mgr.Tick(ctx, queue.PipelineText)
	if err != nil || !claimed {
		t.Fatalf("first tick = %v, %v", claimed, err)
	}
	if got := h.job(t, first.ID).Status; got != queue.StatusComplete {
		t.Fatalf("first job status = %s, want complete", got)
	}
	if got := h.job(t, second.ID).Status; got != queue.StatusPending {
		t.Fatalf("second job status = %s, want pending", got)
	}

	if claimed, err := h.mgr.Tick(ctx, queue.PipelineText); err != nil || !claimed {
		t.Fatalf("second tick = %v, %v", claimed, err)
	}
	if claimed, err := h.mgr.Tick(ctx, queue.PipelineText); err != nil || claimed {
		t.Fatalf("idle tick = %v, %v, want false, nil", claimed, err)
	}

	logPath := workflow.NewJobLogs(h.cfg).Path(h.job(t, first.ID))
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read job log: %v", err)
	}
	if !strings.Contains(string(data), "job_start") {
		t.Fatalf("job log missing executor output:\n%s", data)
	}

	summary := h.mgr.Status(ctx)
	if summary.LastJob == nil || summary.LastJob.ID != second.ID {
		t.Fatalf("last job = %+v, want %s", summary.LastJob, second.ID)
	}
	if summary.QueueStats[queue.PipelineText][queue.StatusComplete] != 2 {
		t.Fatalf("stats = %+v", summary.QueueStats)
	}
}

func TestDisabledPipelineHasNoLane(t *testing.T) {
	disableAudio := func(cfg *config.Config) { cfg.Workflow.AudioEnabled = false }
	h := newHarness(t, []testsupport.ConfigOption{testsupport.WithConfig(disableAudio)})

	if got := h.mgr.Pipelines(); len(got) != 1 || got[0] != queue.PipelineText {
		t.Fatalf("pipelines = %v, want [text]", got)
	}
	if _, err := h.mgr.Tick(context.Background(), queue.PipelineAudio); err == nil {
		t.Fatal("expected error ticking a disabled lane")
	}
}

func TestClaimErrorIsReported(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.stores.DB.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}
	claimed, err := h.mgr.Tick(context.Background(), queue.PipelineText)
	if claimed || err == nil || !strings.Contains(err.Error(), "claim text job") {
		t.Fatalf("tick = %v, %v", claimed, err)
	}
}

func TestLostLeaseStopsRunWithoutWrites(t *testing.T) {
	h := newHarness(t, nil, workflow.WithHeartbeatInterval(10*time.Millisecond))
	book, job := h.enqueueBook(t, "contested")

	started := make(chan struct{})
	var once sync.Once
	h.gen.Handle("chapter_text", func(ctx context.Context, _ genai.Request) (genai.Result, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return genai.Result{}, ctx.Err()
	})

	stolen := make(chan error, 1)
	go func() {
		<-started
		// A heartbeat may land between the advance and the claim; keep
		// aging the lock until the second worker wins it.
		for attempt := 0; attempt < 50; attempt++ {
			h.clock.Advance(h.cfg.Lease() + time.Second)
			thief, err := h.stores.Queue.ClaimNext(context.Background(), queue.PipelineText, nil, h.cfg.Lease(), "worker-b")
			if err != nil || thief != nil {
				stolen <- err
				return
			}
		}
		stolen <- os.ErrDeadlineExceeded
	}()

	claimed, err := h.mgr.Tick(context.Background(), queue.PipelineText)
	if err != nil || !claimed {
		t.Fatalf("tick = %v, %v", claimed, err)
	}
	if err := <-stolen; err != nil {
		t.Fatalf("steal lease: %v", err)
	}

	got := h.job(t, job.ID)
	if got.LockedBy != "worker-b" {
		t.Fatalf("locked by %q, want worker-b", got.LockedBy)
	}
	if got.Status == queue.StatusFailed || got.Error != "" {
		t.Fatalf("fenced worker wrote failure: %s %q", got.Status, got.Error)
	}
	stored, _ := h.stores.Library.GetBook(context.Background(), book.ID)
	if stored.Status == library.BookFailed {
		t.Fatal("book mirrored as failed after lease loss")
	}
}

func TestStopReleasesRunningJob(t *testing.T) {
	h := newHarness(t, nil)
	_, job := h.enqueueBook(t, "interrupted")

	started := make(chan struct{})
	var once sync.Once
	h.gen.Handle("chapter_text", func(ctx context.Context, _ genai.Request) (genai.Result, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return genai.Result{}, ctx.Err()
	})

	if err := h.mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}
	h.mgr.Stop()

	got := h.job(t, job.ID)
	if got.LockedAt != nil {
		t.Fatal("lock still held after shutdown")
	}
	if got.Status != queue.StatusGenerating {
		t.Fatalf("status = %s, want generating", got.Status)
	}
	if !got.Progress.HasMilestone("outline") {
		t.Fatal("outline milestone lost")
	}
	if h.mgr.Status(context.Background()).Running {
		t.Fatal("manager still reports running")
	}
}

type manualClock struct {
	waits chan time.Duration
	fire  chan time.Time
}

func (c *manualClock) Now() time.Time { return time.Now() }

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	c.waits <- d
	return c.fire
}

func TestIdleLaneWaitsPollIntervalThenResumes(t *testing.T) {
	clock := &manualClock{waits: make(chan time.Duration, 16), fire: make(chan time.Time)}
	audioOff := func(cfg *config.Config) {
		cfg.Workflow.AudioEnabled = false
		cfg.Workflow.PollInterval = 45
		cfg.Workflow.HeartbeatInterval = 20
	}
	h := newHarness(t, []testsupport.ConfigOption{testsupport.WithConfig(audioOff)}, workflow.WithClock(clock))

	if err := h.mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.mgr.Stop()

	if d := <-clock.waits; d != 45*time.Second {
		t.Fatalf("idle wait = %s, want 45s", d)
	}
	_, job := h.enqueueBook(t, "late arrival")
	clock.fire <- time.Now()

	waitFor(t, "job completion", func() bool {
		return h.job(t, job.ID).Status == queue.StatusComplete
	})
	// The lane goes straight back to claiming and then idles again.
	for {
		d := <-clock.waits
		if d == 45*time.Second {
			break
		}
		if d != 20*time.Second {
			t.Fatalf("unexpected wait %s", d)
		}
	}
}

func TestAudioLaneNarratesCompletedBook(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	book, _ := h.enqueueBook(t, "spoken")

	if _, err := h.mgr.Tick(ctx, queue.PipelineText); err != nil {
		t.Fatalf("text tick: %v", err)
	}
	if _, _, err := h.stores.Queue.Enqueue(ctx, book.ID, queue.PipelineAudio); err != nil {
		t.Fatalf("enqueue narration: %v", err)
	}
	claimed, err := h.mgr.Tick(ctx, queue.PipelineAudio)
	if err != nil || !claimed {
		t.Fatalf("audio tick = %v, %v", claimed, err)
	}
	segments, err := h.stores.Library.ListAudioSegments(ctx, book.ID)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	// foreword + 2 chapters + afterword
	if len(segments) != 4 {
		t.Fatalf("segments = %d, want 4", len(segments))
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.JobEvent
}

func (r *recordingNotifier) NotifyJobFinished(_ context.Context, event notifications.JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

func TestCompletedJobIsNotified(t *testing.T) {
	rec := &recordingNotifier{}
	h := newHarness(t, nil, workflow.WithNotifier(rec))
	book, job := h.enqueueBook(t, "notified")

	if claimed, err := h.mgr.Tick(context.Background(), queue.PipelineText); err != nil || !claimed {
		t.Fatalf("tick = %v, %v", claimed, err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(rec.events))
	}
	ev := rec.events[0]
	if ev.JobID != job.ID || ev.BookID != book.ID {
		t.Fatalf("unexpected event ids %+v", ev)
	}
	if ev.Status != queue.StatusComplete || ev.Pipeline != queue.PipelineText {
		t.Fatalf("unexpected event %+v", ev)
	}
}
