package bookgen

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"bookloom/internal/artifacts"
	"bookloom/internal/library"
	"bookloom/internal/logging"
	"bookloom/internal/pipeline"
	"bookloom/internal/queue"
	"bookloom/internal/services"
	"bookloom/internal/services/genai"
)

const (
	// DefaultSimilarityLimit rejects a chapter whose wording is nearly the
	// same as the chapter before it.
	DefaultSimilarityLimit = 0.92
	previousContextChars   = 1500
)

// Definition is the text pipeline.
type Definition struct {
	store           library.Store
	gen             genai.Generator
	layout          artifacts.Layout
	images          artifacts.ImageOptions
	imagesEnabled   bool
	similarityLimit float64
	onComplete      func(ctx context.Context, bookID string) error
}

// Option customizes a Definition.
type Option func(*Definition)

// WithImages enables the illustration step with the given storage options.
func WithImages(opts artifacts.ImageOptions) Option {
	return func(d *Definition) {
		d.imagesEnabled = true
		d.images = opts
	}
}

// WithSimilarityLimit overrides DefaultSimilarityLimit. Values outside (0, 1]
// disable the check.
func WithSimilarityLimit(limit float64) Option {
	return func(d *Definition) {
		d.similarityLimit = limit
	}
}

// WithCompletionHook registers fn to run after a book's text completes.
func WithCompletionHook(fn func(ctx context.Context, bookID string) error) Option {
	return func(d *Definition) {
		d.onComplete = fn
	}
}

// New builds the text pipeline definition.
func New(store library.Store, gen genai.Generator, layout artifacts.Layout, opts ...Option) *Definition {
	d := &Definition{
		store:           store,
		gen:             gen,
		layout:          layout,
		similarityLimit: DefaultSimilarityLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Definition) Pipeline() queue.Pipeline { return queue.PipelineText }

// Steps lists text, then image when illustrations are enabled.
func (d *Definition) Steps() []queue.Step {
	if d.imagesEnabled {
		return []queue.Step{queue.StepText, queue.StepImage}
	}
	return []queue.Step{queue.StepText}
}

func (d *Definition) PlanExists(ctx context.Context, run *pipeline.Run) (bool, error) {
	outline, err := d.store.GetOutline(ctx, run.SubjectID())
	if errors.Is(err, library.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(outline.Chapters) > 0, nil
}

func (d *Definition) Units(ctx context.Context, run *pipeline.Run) ([]pipeline.Unit, error) {
	outline, err := d.outline(ctx, run.SubjectID())
	if err != nil {
		return nil, err
	}
	units := make([]pipeline.Unit, 0, len(outline.Chapters))
	for _, ch := range outline.Chapters {
		units = append(units, pipeline.Unit{Index: ch.Index, Label: ch.Title})
	}
	slices.SortFunc(units, func(a, b pipeline.Unit) int { return a.Index - b.Index })
	return units, nil
}

func (d *Definition) OutputExists(ctx context.Context, run *pipeline.Run, unit pipeline.Unit, step queue.Step) (bool, error) {
	chapter, err := d.store.GetChapter(ctx, run.SubjectID(), unit.Index)
	if errors.Is(err, library.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch step {
	case queue.StepText:
		return chapter.HasBody(), nil
	case queue.StepImage:
		return d.imageExists(ctx, run, chapter)
	}
	return false, services.Wrap(services.ErrValidation, "bookgen", "probe", "unknown step "+string(step), nil)
}

// imageExists trusts the recorded path first, then the layout path. A file
// at the layout path with no recorded path is linked back to the chapter.
func (d *Definition) imageExists(ctx context.Context, run *pipeline.Run, chapter *library.Chapter) (bool, error) {
	if chapter.ImagePath != "" && artifacts.Exists(chapter.ImagePath) {
		return true, nil
	}
	path := d.layout.ChapterImagePath(run.SubjectID(), chapter.Index, d.images.Format)
	if !artifacts.Exists(path) {
		return false, nil
	}
	if err := d.store.SaveChapterImage(ctx, run.SubjectID(), chapter.Index, path); err != nil {
		return false, fmt.Errorf("link chapter image: %w", err)
	}
	run.Logger.Info("chapter illustration found on disk; path restored",
		logging.String(logging.FieldEventType, "chapter_image_relinked"),
		logging.Int(logging.FieldUnit, chapter.Index),
		logging.String("path", path),
	)
	return true, nil
}

func (d *Definition) Execute(ctx context.Context, run *pipeline.Run, unit pipeline.Unit, step queue.Step) error {
	switch step {
	case queue.StepText:
		return d.writeChapter(ctx, run, unit)
	case queue.StepImage:
		return d.illustrateChapter(ctx, run, unit)
	}
	return services.Wrap(services.ErrValidation, "bookgen", "execute", "unknown step "+string(step), nil)
}

func (d *Definition) Extensions() []pipeline.Extension {
	return []pipeline.Extension{
		{Name: "cover_prompt", Run: d.coverPrompt},
		{Name: "bookends", Run: d.bookends},
	}
}

func (d *Definition) Mirror(ctx context.Context, run *pipeline.Run, status queue.Status) error {
	return d.store.SetBookStatus(ctx, run.SubjectID(), library.StatusForJob(status))
}

// OnComplete runs the completion hook, typically queueing narration.
func (d *Definition) OnComplete(ctx context.Context, run *pipeline.Run) error {
	if d.onComplete == nil {
		return nil
	}
	return d.onComplete(ctx, run.SubjectID())
}

func (d *Definition) book(ctx context.Context, id string) (*library.Book, error) {
	book, err := d.store.GetBook(ctx, id)
	if errors.Is(err, library.ErrNotFound) {
		return nil, services.Wrap(services.ErrNotFound, "bookgen", "load book", id, err)
	}
	return book, err
}

func (d *Definition) outline(ctx context.Context, bookID string) (*library.Outline, error) {
	outline, err := d.store.GetOutline(ctx, bookID)
	if errors.Is(err, library.ErrNotFound) {
		return nil, services.Wrap(services.ErrNotFound, "bookgen", "load outline", bookID, err)
	}
	return outline, err
}
