package narration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bookloom/internal/artifacts"
	"bookloom/internal/library"
	"bookloom/internal/logging"
	"bookloom/internal/pipeline"
	"bookloom/internal/queue"
	"bookloom/internal/services"
	"bookloom/internal/services/genai"
	"bookloom/internal/textutil"
)

// Settings control voice and chunking.
type Settings struct {
	Voice         string
	Format        string
	MaxChunkChars int
}

// Definition is the audio pipeline.
type Definition struct {
	store    library.Store
	gen      genai.Generator
	layout   artifacts.Layout
	settings Settings
}

// New builds the audio pipeline definition.
func New(store library.Store, gen genai.Generator, layout artifacts.Layout, settings Settings) *Definition {
	if settings.Format == "" {
		settings.Format = "mp3"
	}
	return &Definition{store: store, gen: gen, layout: layout, settings: settings}
}

func (d *Definition) Pipeline() queue.Pipeline { return queue.PipelineAudio }

func (d *Definition) Steps() []queue.Step { return []queue.Step{queue.StepAudio} }

func (d *Definition) Extensions() []pipeline.Extension { return nil }

func (d *Definition) Mirror(ctx context.Context, run *pipeline.Run, status queue.Status) error {
	return d.store.SetAudioStatus(ctx, run.SubjectID(), library.StatusForJob(status))
}

func (d *Definition) PlanExists(ctx context.Context, run *pipeline.Run) (bool, error) {
	plan, err := d.store.GetAudioPlan(ctx, run.SubjectID())
	if errors.Is(err, library.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(plan.Units) > 0, nil
}

// Plan lays out the narration units. It needs the outline and every chapter
// body; bookends are included only when they were generated.
func (d *Definition) Plan(ctx context.Context, run *pipeline.Run) error {
	bookID := run.SubjectID()
	outline, err := d.store.GetOutline(ctx, bookID)
	if errors.Is(err, library.ErrNotFound) {
		return services.Wrap(services.ErrValidation, "narration", "plan", "book has no outline", err)
	}
	if err != nil {
		return err
	}
	if len(outline.Chapters) == 0 {
		return services.Wrap(services.ErrValidation, "narration", "plan", "outline has no chapters", nil)
	}

	plan := library.AudioPlan{BookID: bookID, Voice: d.settings.Voice, Format: d.settings.Format}
	if unit, ok, err := d.extraUnit(ctx, bookID, library.ExtraForeword, 0); err != nil {
		return err
	} else if ok {
		plan.Units = append(plan.Units, unit)
	}
	last := 0
	for _, planned := range outline.Chapters {
		chapter, err := d.store.GetChapter(ctx, bookID, planned.Index)
		if err != nil && !errors.Is(err, library.ErrNotFound) {
			return err
		}
		if !chapter.HasBody() {
			return services.Wrap(services.ErrValidation, "narration", "plan",
				fmt.Sprintf("chapter %d has no text", planned.Index), nil)
		}
		plan.Units = append(plan.Units, d.audioUnit(planned.Index, chapter.Title, library.SourceChapter, chapterScript(chapter)))
		last = max(last, planned.Index)
	}
	if unit, ok, err := d.extraUnit(ctx, bookID, library.ExtraAfterword, last+1); err != nil {
		return err
	} else if ok {
		plan.Units = append(plan.Units, unit)
	}

	if err := d.store.SaveAudioPlan(ctx, plan); err != nil {
		return fmt.Errorf("save narration plan: %w", err)
	}
	chunks := 0
	for _, u := range plan.Units {
		chunks += u.Chunks
	}
	run.Logger.Info("narration plan stored",
		logging.String(logging.FieldEventType, "narration_plan_stored"),
		logging.Int("units", len(plan.Units)),
		logging.Int("chunks", chunks),
	)
	return nil
}

func (d *Definition) extraUnit(ctx context.Context, bookID string, kind library.ExtraKind, index int) (library.AudioUnit, bool, error) {
	extra, err := d.store.GetExtra(ctx, bookID, kind)
	if errors.Is(err, library.ErrNotFound) {
		return library.AudioUnit{}, false, nil
	}
	if err != nil {
		return library.AudioUnit{}, false, err
	}
	if strings.TrimSpace(extra.Content) == "" {
		return library.AudioUnit{}, false, nil
	}
	source := library.SourceForeword
	label := "Foreword"
	if kind == library.ExtraAfterword {
		source, label = library.SourceAfterword, "Afterword"
	}
	return d.audioUnit(index, label, source, extra.Content), true, nil
}

func (d *Definition) audioUnit(index int, label string, source library.AudioSource, script string) library.AudioUnit {
	return library.AudioUnit{
		Index:      index,
		Label:      label,
		Source:     source,
		Characters: len([]rune(script)),
		Chunks:     len(textutil.SplitChunks(script, d.settings.MaxChunkChars)),
	}
}

func (d *Definition) Units(ctx context.Context, run *pipeline.Run) ([]pipeline.Unit, error) {
	plan, err := d.plan(ctx, run.SubjectID())
	if err != nil {
		return nil, err
	}
	units := make([]pipeline.Unit, 0, len(plan.Units))
	for _, u := range plan.Units {
		units = append(units, pipeline.Unit{Index: u.Index, Label: u.Label})
	}
	return units, nil
}

// OutputExists reports whether the unit's final audio file is in place.
func (d *Definition) OutputExists(ctx context.Context, run *pipeline.Run, unit pipeline.Unit, _ queue.Step) (bool, error) {
	plan, err := d.plan(ctx, run.SubjectID())
	if err != nil {
		return false, err
	}
	return artifacts.Exists(d.layout.AudioUnitPath(run.SubjectID(), unit.Index, plan.Format)), nil
}

func (d *Definition) plan(ctx context.Context, bookID string) (*library.AudioPlan, error) {
	plan, err := d.store.GetAudioPlan(ctx, bookID)
	if errors.Is(err, library.ErrNotFound) {
		return nil, services.Wrap(services.ErrNotFound, "narration", "load plan", bookID, err)
	}
	return plan, err
}

// script returns the text narrated for a planned unit.
func (d *Definition) script(ctx context.Context, bookID string, unit library.AudioUnit) (string, error) {
	switch unit.Source {
	case library.SourceChapter:
		chapter, err := d.store.GetChapter(ctx, bookID, unit.Index)
		if err != nil {
			return "", fmt.Errorf("load chapter %d: %w", unit.Index, err)
		}
		return chapterScript(chapter), nil
	case library.SourceForeword, library.SourceAfterword:
		extra, err := d.store.GetExtra(ctx, bookID, library.ExtraKind(unit.Source))
		if err != nil {
			return "", fmt.Errorf("load %s: %w", unit.Source, err)
		}
		return extra.Content, nil
	}
	return "", services.Wrap(services.ErrValidation, "narration", "script", "unknown source "+string(unit.Source), nil)
}

// chapterScript announces the chapter title before its body.
func chapterScript(chapter *library.Chapter) string {
	title := strings.TrimSpace(chapter.Title)
	if title == "" {
		return chapter.Body
	}
	if !strings.ContainsAny(title[len(title)-1:], ".!?") {
		title += "."
	}
	return title + "\n\n" + chapter.Body
}
