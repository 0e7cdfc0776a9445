package bookgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bookloom/internal/library"
	"bookloom/internal/pipeline"
	"bookloom/internal/services"
	"bookloom/internal/services/genai"
)

func (d *Definition) coverPrompt(ctx context.Context, run *pipeline.Run) error {
	outline, err := d.outline(ctx, run.SubjectID())
	if err != nil {
		return err
	}
	return d.generateExtra(ctx, run, library.ExtraCoverPrompt, coverPrompt(outline))
}

// bookends writes the foreword and the afterword. The afterword is still
// attempted when the foreword fails.
func (d *Definition) bookends(ctx context.Context, run *pipeline.Run) error {
	book, err := d.book(ctx, run.SubjectID())
	if err != nil {
		return err
	}
	outline, err := d.outline(ctx, run.SubjectID())
	if err != nil {
		return err
	}
	var errs []error
	for _, kind := range []library.ExtraKind{library.ExtraForeword, library.ExtraAfterword} {
		if err := d.generateExtra(ctx, run, kind, bookendPrompt(kind, book, outline)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Definition) generateExtra(ctx context.Context, run *pipeline.Run, kind library.ExtraKind, prompt string) error {
	if !run.Force() {
		existing, err := d.store.GetExtra(ctx, run.SubjectID(), kind)
		if err == nil && existing.Content != "" {
			return nil
		}
		if err != nil && !errors.Is(err, library.ErrNotFound) {
			return err
		}
	}
	res, err := run.Generate(ctx, d.gen, genai.Request{
		Modality: genai.ModalityText,
		Purpose:  string(kind),
		System:   extraSystemPrompt,
		Prompt:   prompt,
	})
	if err != nil {
		return err
	}
	content := strings.TrimSpace(res.Content)
	if content == "" {
		return services.Wrap(services.ErrContent, "bookgen", string(kind), "empty response", nil)
	}
	return d.store.SaveExtra(ctx, library.Extra{BookID: run.SubjectID(), Kind: kind, Content: content})
}
