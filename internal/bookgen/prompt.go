package bookgen

import (
	"fmt"
	"strings"

	"bookloom/internal/library"
)

// OutlineSystemPrompt instructs the text model to plan a book. Keep the JSON
// shape in sync with outlinePayload.
const OutlineSystemPrompt = `You are a book planner. Given a title, a premise, and an audience, plan a book.

Respond ONLY with a JSON object like:
{"title": "Book Title", "style": "one sentence describing tone and illustration style", "chapters": [{"index": 1, "title": "Chapter title", "synopsis": "two or three sentences"}]}

Rules:

- Use exactly the requested number of chapters, numbered from 1.
- Each synopsis must move the story forward; do not repeat events.`

// ChapterSystemPrompt instructs the text model to write one chapter.
const ChapterSystemPrompt = `You are a novelist writing one chapter of a book at a time.
Write only the chapter prose. Do not repeat the chapter title or earlier chapters.
Continue naturally from the end of the previous chapter when one is given.`

const extraSystemPrompt = `You write short companion pieces for books. Respond with the requested text only.`

func outlinePrompt(book *library.Book) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", book.Title)
	if book.Premise != "" {
		fmt.Fprintf(&b, "Premise: %s\n", book.Premise)
	}
	if book.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s\n", book.Audience)
	}
	fmt.Fprintf(&b, "Chapters: %d\n", book.ChapterCount)
	return b.String()
}

func chapterPrompt(book *library.Book, outline *library.Outline, chapter library.OutlineChapter, previous string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Book: %s\n", outline.Title)
	if outline.Style != "" {
		fmt.Fprintf(&b, "Style: %s\n", outline.Style)
	}
	if book.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s\n", book.Audience)
	}
	b.WriteString("\nOutline:\n")
	for _, ch := range outline.Chapters {
		fmt.Fprintf(&b, "%d. %s: %s\n", ch.Index, ch.Title, ch.Synopsis)
	}
	if previous != "" {
		fmt.Fprintf(&b, "\nEnd of the previous chapter:\n%s\n", tail(previous, previousContextChars))
	}
	fmt.Fprintf(&b, "\nWrite chapter %d, %q: %s\n", chapter.Index, chapter.Title, chapter.Synopsis)
	return b.String()
}

func illustrationPrompt(outline *library.Outline, chapter library.OutlineChapter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A single illustration for the chapter %q of the book %q. ", chapter.Title, outline.Title)
	b.WriteString(chapter.Synopsis)
	if outline.Style != "" {
		fmt.Fprintf(&b, " Style: %s.", outline.Style)
	}
	b.WriteString(" No text or lettering in the image.")
	return b.String()
}

func coverPrompt(outline *library.Outline) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write an image-generation prompt for the front cover of the book %q.\n", outline.Title)
	if outline.Style != "" {
		fmt.Fprintf(&b, "Style: %s\n", outline.Style)
	}
	b.WriteString("Chapters:\n")
	for _, ch := range outline.Chapters {
		fmt.Fprintf(&b, "- %s\n", ch.Title)
	}
	b.WriteString("Describe one striking scene in under 80 words.")
	return b.String()
}

func bookendPrompt(kind library.ExtraKind, book *library.Book, outline *library.Outline) string {
	var b strings.Builder
	switch kind {
	case library.ExtraForeword:
		fmt.Fprintf(&b, "Write a short foreword (under 300 words) introducing the book %q.\n", outline.Title)
	default:
		fmt.Fprintf(&b, "Write a short afterword (under 300 words) closing the book %q.\n", outline.Title)
	}
	if book.Premise != "" {
		fmt.Fprintf(&b, "Premise: %s\n", book.Premise)
	}
	b.WriteString("Chapters:\n")
	for _, ch := range outline.Chapters {
		fmt.Fprintf(&b, "%d. %s\n", ch.Index, ch.Title)
	}
	return b.String()
}

// tail returns roughly the last n characters of s, starting at a word
// boundary.
func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	cut := string(runes[len(runes)-n:])
	if i := strings.IndexAny(cut, " \n"); i >= 0 && i < len(cut)-1 {
		cut = cut[i+1:]
	}
	return cut
}
