package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bookloom/internal/database"
)

type bookRow struct {
	ID           string `gorm:"primaryKey"`
	Title        string `gorm:"not null"`
	Premise      string `gorm:"not null"`
	Audience     string `gorm:"not null;default:''"`
	ChapterCount int    `gorm:"not null"`
	Status       string `gorm:"not null"`
	AudioStatus  string `gorm:"not null;default:''"`
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

func (bookRow) TableName() string { return "books" }

type outlineRow struct {
	BookID       string `gorm:"primaryKey"`
	Title        string `gorm:"not null"`
	Style        string `gorm:"not null;default:''"`
	ChaptersJSON string `gorm:"column:chapters_json;not null"`
	CreatedAt    time.Time
}

func (outlineRow) TableName() string { return "outlines" }

type chapterRow struct {
	BookID       string    `gorm:"primaryKey"`
	ChapterIndex int       `gorm:"primaryKey;autoIncrement:false"`
	Title        string    `gorm:"not null"`
	Body         string    `gorm:"not null;default:''"`
	ImagePath    string    `gorm:"not null;default:''"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

func (chapterRow) TableName() string { return "chapters" }

type extraRow struct {
	BookID    string `gorm:"primaryKey"`
	Kind      string `gorm:"primaryKey"`
	Content   string `gorm:"not null"`
	CreatedAt time.Time
}

func (extraRow) TableName() string { return "book_extras" }

type audioPlanRow struct {
	BookID    string `gorm:"primaryKey"`
	Voice     string `gorm:"not null"`
	Format    string `gorm:"not null"`
	UnitsJSON string `gorm:"column:units_json;not null"`
	CreatedAt time.Time
}

func (audioPlanRow) TableName() string { return "audio_plans" }

type audioSegmentRow struct {
	BookID     string `gorm:"primaryKey"`
	UnitIndex  int    `gorm:"primaryKey;autoIncrement:false"`
	Label      string `gorm:"not null"`
	Path       string `gorm:"not null"`
	Characters int    `gorm:"not null;default:0"`
	Chunks     int    `gorm:"not null;default:0"`
	CreatedAt  time.Time
}

func (audioSegmentRow) TableName() string { return "audio_segments" }

// GormStore keeps output records in Postgres.
type GormStore struct {
	db   *gorm.DB
	opts options
}

var _ Store = (*GormStore)(nil)

// NewGormStore migrates the library tables and returns a store.
func NewGormStore(ctx context.Context, db *gorm.DB, opts ...Option) (*GormStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(
		&bookRow{}, &outlineRow{}, &chapterRow{}, &extraRow{}, &audioPlanRow{}, &audioSegmentRow{},
	); err != nil {
		return nil, fmt.Errorf("migrate library tables: %w", err)
	}
	return &GormStore{db: db, opts: buildOptions(opts)}, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r bookRow) toBook() *Book {
	return &Book{
		ID:           r.ID,
		Title:        r.Title,
		Premise:      r.Premise,
		Audience:     r.Audience,
		ChapterCount: r.ChapterCount,
		Status:       BookStatus(r.Status),
		AudioStatus:  BookStatus(r.AudioStatus),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func (s *GormStore) CreateBook(ctx context.Context, book Book) (*Book, error) {
	if err := validateBook(book); err != nil {
		return nil, err
	}
	if book.ID == "" {
		book.ID = s.opts.newID()
	}
	if book.Status == BookNone {
		book.Status = BookQueued
	}
	now := s.opts.now()
	row := bookRow{
		ID:           book.ID,
		Title:        book.Title,
		Premise:      book.Premise,
		Audience:     book.Audience,
		ChapterCount: book.ChapterCount,
		Status:       string(book.Status),
		AudioStatus:  string(book.AudioStatus),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("insert book: %w", err)
	}
	return row.toBook(), nil
}

func (s *GormStore) GetBook(ctx context.Context, id string) (*Book, error) {
	var row bookRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toBook(), nil
}

func (s *GormStore) ListBooks(ctx context.Context) ([]*Book, error) {
	var rows []bookRow
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	books := make([]*Book, 0, len(rows))
	for _, row := range rows {
		books = append(books, row.toBook())
	}
	return books, nil
}

func (s *GormStore) DeleteBook(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&audioSegmentRow{}, &audioPlanRow{}, &extraRow{}, &chapterRow{}, &outlineRow{}} {
			if err := tx.Where("book_id = ?", id).Delete(model).Error; err != nil {
				return fmt.Errorf("delete book records: %w", err)
			}
		}
		res := tx.Where("id = ?", id).Delete(&bookRow{})
		if res.Error != nil {
			return fmt.Errorf("delete book: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) SetBookStatus(ctx context.Context, id string, status BookStatus) error {
	return s.updateBook(ctx, id, "status", status)
}

func (s *GormStore) SetAudioStatus(ctx context.Context, id string, status BookStatus) error {
	return s.updateBook(ctx, id, "audio_status", status)
}

func (s *GormStore) updateBook(ctx context.Context, id, column string, status BookStatus) error {
	res := s.db.WithContext(ctx).Model(&bookRow{}).Where("id = ?", id).
		Updates(map[string]any{column: string(status), "updated_at": s.opts.now()})
	if res.Error != nil {
		return fmt.Errorf("update book %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) upsert(ctx context.Context, row any, conflict []string, update []string) error {
	cols := make([]clause.Column, len(conflict))
	for i, name := range conflict {
		cols[i] = clause.Column{Name: name}
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: cols, DoUpdates: clause.AssignmentColumns(update)}).
		Create(row).Error
}

func (s *GormStore) SaveOutline(ctx context.Context, outline Outline) error {
	chapters, err := json.Marshal(outline.Chapters)
	if err != nil {
		return fmt.Errorf("encode outline: %w", err)
	}
	row := outlineRow{
		BookID:       outline.BookID,
		Title:        outline.Title,
		Style:        outline.Style,
		ChaptersJSON: string(chapters),
		CreatedAt:    s.opts.now(),
	}
	if err := s.upsert(ctx, &row, []string{"book_id"}, []string{"title", "style", "chapters_json", "created_at"}); err != nil {
		return fmt.Errorf("save outline: %w", err)
	}
	return nil
}

func (s *GormStore) GetOutline(ctx context.Context, bookID string) (*Outline, error) {
	var row outlineRow
	if err := s.db.WithContext(ctx).Where("book_id = ?", bookID).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	outline := &Outline{BookID: row.BookID, Title: row.Title, Style: row.Style, CreatedAt: row.CreatedAt.UTC()}
	if err := json.Unmarshal([]byte(row.ChaptersJSON), &outline.Chapters); err != nil {
		return nil, fmt.Errorf("decode outline: %w", err)
	}
	return outline, nil
}

func (s *GormStore) SaveChapterText(ctx context.Context, bookID string, index int, title, body string) error {
	row := chapterRow{BookID: bookID, ChapterIndex: index, Title: title, Body: body, UpdatedAt: s.opts.now()}
	if err := s.upsert(ctx, &row, []string{"book_id", "chapter_index"}, []string{"title", "body", "updated_at"}); err != nil {
		return fmt.Errorf("save chapter %d text: %w", index, err)
	}
	return nil
}

func (s *GormStore) SaveChapterImage(ctx context.Context, bookID string, index int, path string) error {
	res := s.db.WithContext(ctx).Model(&chapterRow{}).
		Where("book_id = ? AND chapter_index = ?", bookID, index).
		Updates(map[string]any{"image_path": path, "updated_at": s.opts.now()})
	if res.Error != nil {
		return fmt.Errorf("save chapter %d image: %w", index, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r chapterRow) toChapter() *Chapter {
	return &Chapter{
		BookID:    r.BookID,
		Index:     r.ChapterIndex,
		Title:     r.Title,
		Body:      r.Body,
		ImagePath: r.ImagePath,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (s *GormStore) GetChapter(ctx context.Context, bookID string, index int) (*Chapter, error) {
	var row chapterRow
	if err := s.db.WithContext(ctx).Where("book_id = ? AND chapter_index = ?", bookID, index).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toChapter(), nil
}

func (s *GormStore) ListChapters(ctx context.Context, bookID string) ([]*Chapter, error) {
	var rows []chapterRow
	if err := s.db.WithContext(ctx).Where("book_id = ?", bookID).Order("chapter_index").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	chapters := make([]*Chapter, 0, len(rows))
	for _, row := range rows {
		chapters = append(chapters, row.toChapter())
	}
	return chapters, nil
}

func (s *GormStore) SaveExtra(ctx context.Context, extra Extra) error {
	row := extraRow{BookID: extra.BookID, Kind: string(extra.Kind), Content: extra.Content, CreatedAt: s.opts.now()}
	if err := s.upsert(ctx, &row, []string{"book_id", "kind"}, []string{"content", "created_at"}); err != nil {
		return fmt.Errorf("save %s: %w", extra.Kind, err)
	}
	return nil
}

func (s *GormStore) GetExtra(ctx context.Context, bookID string, kind ExtraKind) (*Extra, error) {
	var row extraRow
	if err := s.db.WithContext(ctx).Where("book_id = ? AND kind = ?", bookID, string(kind)).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &Extra{BookID: row.BookID, Kind: ExtraKind(row.Kind), Content: row.Content, CreatedAt: row.CreatedAt.UTC()}, nil
}

func (s *GormStore) SaveAudioPlan(ctx context.Context, plan AudioPlan) error {
	units, err := json.Marshal(plan.Units)
	if err != nil {
		return fmt.Errorf("encode audio plan: %w", err)
	}
	row := audioPlanRow{BookID: plan.BookID, Voice: plan.Voice, Format: plan.Format, UnitsJSON: string(units), CreatedAt: s.opts.now()}
	if err := s.upsert(ctx, &row, []string{"book_id"}, []string{"voice", "format", "units_json", "created_at"}); err != nil {
		return fmt.Errorf("save audio plan: %w", err)
	}
	return nil
}

func (s *GormStore) GetAudioPlan(ctx context.Context, bookID string) (*AudioPlan, error) {
	var row audioPlanRow
	if err := s.db.WithContext(ctx).Where("book_id = ?", bookID).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	plan := &AudioPlan{BookID: row.BookID, Voice: row.Voice, Format: row.Format, CreatedAt: row.CreatedAt.UTC()}
	if err := json.Unmarshal([]byte(row.UnitsJSON), &plan.Units); err != nil {
		return nil, fmt.Errorf("decode audio plan: %w", err)
	}
	return plan, nil
}

func (s *GormStore) SaveAudioSegment(ctx context.Context, segment AudioSegment) error {
	row := audioSegmentRow{
		BookID:     segment.BookID,
		UnitIndex:  segment.Index,
		Label:      segment.Label,
		Path:       segment.Path,
		Characters: segment.Characters,
		Chunks:     segment.Chunks,
		CreatedAt:  s.opts.now(),
	}
	if err := s.upsert(ctx, &row, []string{"book_id", "unit_index"}, []string{"label", "path", "characters", "chunks", "created_at"}); err != nil {
		return fmt.Errorf("save audio segment %d: %w", segment.Index, err)
	}
	return nil
}

func (r audioSegmentRow) toSegment() *AudioSegment {
	return &AudioSegment{
		BookID:     r.BookID,
		Index:      r.UnitIndex,
		Label:      r.Label,
		Path:       r.Path,
		Characters: r.Characters,
		Chunks:     r.Chunks,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

func (s *GormStore) GetAudioSegment(ctx context.Context, bookID string, index int) (*AudioSegment, error) {
	var row audioSegmentRow
	if err := s.db.WithContext(ctx).Where("book_id = ? AND unit_index = ?", bookID, index).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toSegment(), nil
}

func (s *GormStore) ListAudioSegments(ctx context.Context, bookID string) ([]*AudioSegment, error) {
	var rows []audioSegmentRow
	if err := s.db.WithContext(ctx).Where("book_id = ?", bookID).Order("unit_index").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list audio segments: %w", err)
	}
	segments := make([]*AudioSegment, 0, len(rows))
	for _, row := range rows {
		segments = append(segments, row.toSegment())
	}
	return segments, nil
}

func (s *GormStore) CheckHealth(ctx context.Context) (database.Health, error) {
	return database.CheckPostgresHealth(ctx, s.db)
}
