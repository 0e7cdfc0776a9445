package bookgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bookloom/internal/artifacts"
	"bookloom/internal/library"
	"bookloom/internal/logging"
	"bookloom/internal/pipeline"
	"bookloom/internal/services"
	"bookloom/internal/services/genai"
	"bookloom/internal/textutil"
)

func (d *Definition) writeChapter(ctx context.Context, run *pipeline.Run, unit pipeline.Unit) error {
	bookID := run.SubjectID()
	book, err := d.book(ctx, bookID)
	if err != nil {
		return err
	}
	outline, err := d.outline(ctx, bookID)
	if err != nil {
		return err
	}
	planned, ok := outline.Chapter(unit.Index)
	if !ok {
		return services.Wrap(services.ErrNotFound, "bookgen", "chapter", fmt.Sprintf("chapter %d is not in the outline", unit.Index), nil)
	}
	previous, err := d.previousBody(ctx, bookID, unit.Index)
	if err != nil {
		return err
	}

	res, err := run.Generate(ctx, d.gen, genai.Request{
		Modality: genai.ModalityText,
		Purpose:  "chapter_text",
		System:   ChapterSystemPrompt,
		Prompt:   chapterPrompt(book, outline, planned, previous),
	})
	if err != nil {
		return err
	}
	body := strings.TrimSpace(res.Content)
	if body == "" {
		return services.Wrap(services.ErrContent, "bookgen", "chapter", "empty chapter text", nil)
	}
	if previous != "" && d.similarityLimit > 0 && d.similarityLimit <= 1 {
		if score := textutil.Similarity(previous, body); score >= d.similarityLimit {
			return services.Wrap(services.ErrContent, "bookgen", "chapter",
				fmt.Sprintf("chapter %d repeats the previous chapter (similarity %.2f)", unit.Index, score), nil)
		}
	}
	if err := d.store.SaveChapterText(ctx, bookID, unit.Index, planned.Title, body); err != nil {
		return fmt.Errorf("save chapter text: %w", err)
	}
	run.Logger.Info("chapter text stored",
		logging.String(logging.FieldEventType, "chapter_text_stored"),
		logging.Int(logging.FieldUnit, unit.Index),
		logging.Int("characters", len([]rune(body))),
	)
	return nil
}

func (d *Definition) previousBody(ctx context.Context, bookID string, index int) (string, error) {
	if index <= 1 {
		return "", nil
	}
	chapter, err := d.store.GetChapter(ctx, bookID, index-1)
	if errors.Is(err, library.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return chapter.Body, nil
}

func (d *Definition) illustrateChapter(ctx context.Context, run *pipeline.Run, unit pipeline.Unit) error {
	bookID := run.SubjectID()
	outline, err := d.outline(ctx, bookID)
	if err != nil {
		return err
	}
	planned, ok := outline.Chapter(unit.Index)
	if !ok {
		return services.Wrap(services.ErrNotFound, "bookgen", "illustration", fmt.Sprintf("chapter %d is not in the outline", unit.Index), nil)
	}

	res, err := run.Generate(ctx, d.gen, genai.Request{
		Modality: genai.ModalityImage,
		Purpose:  "chapter_image",
		Prompt:   illustrationPrompt(outline, planned),
	})
	if err != nil {
		return err
	}
	if len(res.Data) == 0 {
		return services.Wrap(services.ErrContent, "bookgen", "illustration", "empty image payload", nil)
	}
	dst := d.layout.ChapterImagePath(bookID, unit.Index, d.images.Format)
	info, err := artifacts.SaveImage(res.Data, dst, d.images)
	if err != nil {
		return services.Wrap(services.ErrContent, "bookgen", "illustration", "store image", err)
	}
	if err := d.store.SaveChapterImage(ctx, bookID, unit.Index, info.Path); err != nil {
		return fmt.Errorf("save chapter image: %w", err)
	}
	run.Logger.Info("chapter illustration stored",
		logging.String(logging.FieldEventType, "chapter_image_stored"),
		logging.Int(logging.FieldUnit, unit.Index),
		logging.String("path", info.Path),
		logging.Int("width", info.Width),
		logging.Int("height", info.Height),
	)
	return nil
}
