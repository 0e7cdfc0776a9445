package library

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("library record not found")

// BookStatus is the coarse status mirrored from a book's jobs.
type BookStatus string

const (
	BookNone       BookStatus = ""
	BookQueued     BookStatus = "queued"
	BookGenerating BookStatus = "generating"
	BookComplete   BookStatus = "complete"
	BookFailed     BookStatus = "failed"
	BookPaused     BookStatus = "paused"
	BookCancelled  BookStatus = "cancelled"
)

// Book is the subject of both pipelines.
type Book struct {
	ID           string
	Title        string
	Premise      string
	Audience     string
	ChapterCount int
	Status       BookStatus
	AudioStatus  BookStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OutlineChapter is one planned chapter.
type OutlineChapter struct {
	Index    int    `json:"index"`
	Title    string `json:"title"`
	Synopsis string `json:"synopsis"`
}

// Outline is the macro-stage output of the text pipeline.
type Outline struct {
	BookID    string
	Title     string
	Style     string
	Chapters  []OutlineChapter
	CreatedAt time.Time
}

// Chapter returns the planned chapter with index.
func (o *Outline) Chapter(index int) (OutlineChapter, bool) {
	if o == nil {
		return OutlineChapter{}, false
	}
	for _, ch := range o.Chapters {
		if ch.Index == index {
			return ch, true
		}
	}
	return OutlineChapter{}, false
}

// Chapter holds the per-unit outputs of the text pipeline. Body is written by
// the text step and ImagePath by the image step.
type Chapter struct {
	BookID    string
	Index     int
	Title     string
	Body      string
	ImagePath string
	UpdatedAt time.Time
}

// HasBody reports whether the text step output exists.
func (c *Chapter) HasBody() bool {
	return c != nil && c.Body != ""
}

// ExtraKind names a best-effort side output.
type ExtraKind string

const (
	ExtraCoverPrompt ExtraKind = "cover_prompt"
	ExtraForeword    ExtraKind = "foreword"
	ExtraAfterword   ExtraKind = "afterword"
)

// Extra is an optional side output. Missing extras are normal.
type Extra struct {
	BookID    string
	Kind      ExtraKind
	Content   string
	CreatedAt time.Time
}

// AudioSource says where a narration unit's text comes from.
type AudioSource string

const (
	SourceForeword  AudioSource = "foreword"
	SourceChapter   AudioSource = "chapter"
	SourceAfterword AudioSource = "afterword"
)

// AudioUnit is one planned narration segment.
type AudioUnit struct {
	Index      int         `json:"index"`
	Label      string      `json:"label"`
	Source     AudioSource `json:"source"`
	Characters int         `json:"characters"`
	Chunks     int         `json:"chunks"`
}

// AudioPlan is the macro-stage output of the audio pipeline.
type AudioPlan struct {
	BookID    string
	Voice     string
	Format    string
	Units     []AudioUnit
	CreatedAt time.Time
}

// Unit returns the planned unit with index.
func (p *AudioPlan) Unit(index int) (AudioUnit, bool) {
	if p == nil {
		return AudioUnit{}, false
	}
	for _, u := range p.Units {
		if u.Index == index {
			return u, true
		}
	}
	return AudioUnit{}, false
}

// AudioSegment catalogs a narrated unit's final file.
type AudioSegment struct {
	BookID     string
	Index      int
	Label      string
	Path       string
	Characters int
	Chunks     int
	CreatedAt  time.Time
}
