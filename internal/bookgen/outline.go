package bookgen

import (
	"context"
	"fmt"
	"strings"

	"bookloom/internal/library"
	"bookloom/internal/logging"
	"bookloom/internal/pipeline"
	"bookloom/internal/services"
	"bookloom/internal/services/genai"
	"bookloom/internal/textutil"
)

type outlinePayload struct {
	Title    string                   `json:"title"`
	Style    string                   `json:"style"`
	Chapters []library.OutlineChapter `json:"chapters"`
}

// Plan generates the outline and stores it.
func (d *Definition) Plan(ctx context.Context, run *pipeline.Run) error {
	book, err := d.book(ctx, run.SubjectID())
	if err != nil {
		return err
	}
	if book.ChapterCount <= 0 {
		return services.Wrap(services.ErrValidation, "bookgen", "outline", "book has no chapter count", nil)
	}
	res, err := run.Generate(ctx, d.gen, genai.Request{
		Modality: genai.ModalityText,
		Purpose:  "outline",
		System:   OutlineSystemPrompt,
		Prompt:   outlinePrompt(book),
		JSON:     true,
	})
	if err != nil {
		return err
	}
	var payload outlinePayload
	if err := genai.DecodeJSON(res.Content, &payload); err != nil {
		return services.Wrap(services.ErrContent, "bookgen", "outline", "decode outline", err)
	}
	outline, err := normalizeOutline(book, payload)
	if err != nil {
		return err
	}
	if err := d.store.SaveOutline(ctx, outline); err != nil {
		return fmt.Errorf("save outline: %w", err)
	}
	run.Logger.Info("outline stored",
		logging.String(logging.FieldEventType, "outline_stored"),
		logging.Int("chapters", len(outline.Chapters)),
		logging.String("title", outline.Title),
	)
	return nil
}

// normalizeOutline numbers chapters 1..N in the order returned, trims extra
// chapters, and title-cases titles. Fewer chapters than requested is a
// content error.
func normalizeOutline(book *library.Book, payload outlinePayload) (library.Outline, error) {
	chapters := make([]library.OutlineChapter, 0, len(payload.Chapters))
	for _, ch := range payload.Chapters {
		synopsis := strings.TrimSpace(ch.Synopsis)
		title := strings.TrimSpace(ch.Title)
		if synopsis == "" && title == "" {
			continue
		}
		index := len(chapters) + 1
		if title == "" {
			title = fmt.Sprintf("Chapter %d", index)
		}
		chapters = append(chapters, library.OutlineChapter{
			Index:    index,
			Title:    textutil.TitleCase(title),
			Synopsis: synopsis,
		})
	}
	if len(chapters) < book.ChapterCount {
		return library.Outline{}, services.Wrap(services.ErrContent, "bookgen", "outline",
			fmt.Sprintf("outline has %d chapters, want %d", len(chapters), book.ChapterCount), nil)
	}
	chapters = chapters[:book.ChapterCount]

	title := strings.TrimSpace(payload.Title)
	if title == "" {
		title = book.Title
	}
	return library.Outline{
		BookID:   book.ID,
		Title:    textutil.TitleCase(title),
		Style:    strings.TrimSpace(payload.Style),
		Chapters: chapters,
	}, nil
}
