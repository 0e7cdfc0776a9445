package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"bookloom/internal/admin"
	"bookloom/internal/api"
	"bookloom/internal/queue"
)

type chapterJSON struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	Words int    `json:"words"`
	Image string `json:"image,omitempty"`
}

type segmentJSON struct {
	Index      int    `json:"index"`
	Label      string `json:"label"`
	Path       string `json:"path"`
	Characters int    `json:"characters"`
	Chunks     int    `json:"chunks"`
}

func bookDetailJSON(detail *admin.BookDetail) map[string]any {
	chapters := make([]chapterJSON, 0, len(detail.Chapters))
	for _, ch := range detail.Chapters {
		chapters = append(chapters, chapterJSON{Index: ch.Index, Title: ch.Title, Words: wordCount(ch.Body), Image: ch.ImagePath})
	}
	segments := make([]segmentJSON, 0, len(detail.Segments))
	for _, seg := range detail.Segments {
		segments = append(segments, segmentJSON{Index: seg.Index, Label: seg.Label, Path: seg.Path, Characters: seg.Characters, Chunks: seg.Chunks})
	}
	payload := map[string]any{
		"book":     api.FromBook(detail.Book),
		"chapters": chapters,
		"segments": segments,
	}
	if detail.TextJob != nil {
		payload["textJob"] = api.FromJob(detail.TextJob)
	}
	if detail.AudioJob != nil {
		payload["audioJob"] = api.FromJob(detail.AudioJob)
	}
	return payload
}

func printBookDetail(out io.Writer, detail *admin.BookDetail) {
	colorize := shouldColorize(out)
	book := api.FromBook(detail.Book)
	fmt.Fprintln(out, renderSectionHeader(book.Title, colorize))
	fmt.Fprintf(out, "ID:        %s\n", book.ID)
	fmt.Fprintf(out, "Premise:   %s\n", orDash(book.Premise))
	fmt.Fprintf(out, "Audience:  %s\n", orDash(book.Audience))
	fmt.Fprintf(out, "Text:      %s\n", orDash(book.Status))
	fmt.Fprintf(out, "Audio:     %s\n", orDash(book.AudioStatus))
	if detail.Outline != nil && detail.Outline.Style != "" {
		fmt.Fprintf(out, "Style:     %s\n", detail.Outline.Style)
	}

	for _, j := range []*queue.Job{detail.TextJob, detail.AudioJob} {
		if j == nil {
			continue
		}
		job := api.FromJob(j)
		fmt.Fprintf(out, "%s job:  %s [%s] cost=%d attempts=%d\n", job.Pipeline, job.ID, job.StatusLabel, job.Cost, job.Attempts)
		if job.Error != "" {
			fmt.Fprintln(out, renderStatusLine("error", statusError, job.Error, colorize))
		}
	}

	if len(detail.Chapters) > 0 {
		rows := make([][]string, 0, len(detail.Chapters))
		for _, ch := range detail.Chapters {
			image := "-"
			if ch.ImagePath != "" {
				image = filepath.Base(ch.ImagePath)
			}
			rows = append(rows, []string{strconv.Itoa(ch.Index), truncate(ch.Title, 40), strconv.Itoa(wordCount(ch.Body)), image})
		}
		fmt.Fprint(out, renderTable(out, []string{"#", "Chapter", "Words", "Image"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft}))
	}
	if len(detail.Segments) > 0 {
		rows := make([][]string, 0, len(detail.Segments))
		for _, seg := range detail.Segments {
			rows = append(rows, []string{strconv.Itoa(seg.Index), truncate(seg.Label, 40), strconv.Itoa(seg.Chunks), filepath.Base(seg.Path)})
		}
		fmt.Fprint(out, renderTable(out, []string{"#", "Narration", "Chunks", "File"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft}))
	}
}

func wordCount(body string) int {
	return len(strings.Fields(body))
}
