package library

import (
	"context"

	"bookloom/internal/database"
)

// Store is the output-record persistence contract. Readers outside the
// pipelines only use the Get and List methods.
type Store interface {
	CreateBook(ctx context.Context, book Book) (*Book, error)
	GetBook(ctx context.Context, id string) (*Book, error)
	ListBooks(ctx context.Context) ([]*Book, error)
	DeleteBook(ctx context.Context, id string) error
	SetBookStatus(ctx context.Context, id string, status BookStatus) error
	SetAudioStatus(ctx context.Context, id string, status BookStatus) error

	SaveOutline(ctx context.Context, outline Outline) error
	GetOutline(ctx context.Context, bookID string) (*Outline, error)

	SaveChapterText(ctx context.Context, bookID string, index int, title, body string) error
	SaveChapterImage(ctx context.Context, bookID string, index int, path string) error
	GetChapter(ctx context.Context, bookID string, index int) (*Chapter, error)
	ListChapters(ctx context.Context, bookID string) ([]*Chapter, error)

	SaveExtra(ctx context.Context, extra Extra) error
	GetExtra(ctx context.Context, bookID string, kind ExtraKind) (*Extra, error)

	SaveAudioPlan(ctx context.Context, plan AudioPlan) error
	GetAudioPlan(ctx context.Context, bookID string) (*AudioPlan, error)
	SaveAudioSegment(ctx context.Context, segment AudioSegment) error
	GetAudioSegment(ctx context.Context, bookID string, index int) (*AudioSegment, error)
	ListAudioSegments(ctx context.Context, bookID string) ([]*AudioSegment, error)

	CheckHealth(ctx context.Context) (database.Health, error)
}
