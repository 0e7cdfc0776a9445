package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookloom/internal/database"
)

// Option configures a store.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides book id generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		if newID != nil {
			o.newID = newID
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SQLiteStore keeps output records in the shared SQLite database.
type SQLiteStore struct {
	db   *database.DB
	opts options
}

var _ Store = (*SQLiteStore)(nil)

// NewStore wraps an open SQLite database.
func NewStore(db *database.DB, opts ...Option) *SQLiteStore {
	return &SQLiteStore{db: db, opts: buildOptions(opts)}
}

func (s *SQLiteStore) stamp() string {
	return database.FormatTime(s.opts.now())
}

func validateBook(book Book) error {
	if strings.TrimSpace(book.Title) == "" {
		return errors.New("book title is required")
	}
	if strings.TrimSpace(book.Premise) == "" {
		return errors.New("book premise is required")
	}
	if book.ChapterCount <= 0 {
		return errors.New("chapter count must be positive")
	}
	return nil
}

func (s *SQLiteStore) CreateBook(ctx context.Context, book Book) (*Book, error) {
	if err := validateBook(book); err != nil {
		return nil, err
	}
	if book.ID == "" {
		book.ID = s.opts.newID()
	}
	if book.Status == BookNone {
		book.Status = BookQueued
	}
	now := s.stamp()
	if _, err := s.db.ExecAffected(ctx,
		`INSERT INTO books (id, title, premise, audience, chapter_count, status, audio_status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, book.Premise, book.Audience, book.ChapterCount,
		string(book.Status), string(book.AudioStatus), now, now,
	); err != nil {
		return nil, fmt.Errorf("insert book: %w", err)
	}
	return s.GetBook(ctx, book.ID)
}

const bookColumns = "id, title, premise, audience, chapter_count, status, audio_status, created_at, updated_at"

func scanBook(scanner interface{ Scan(...any) error }) (*Book, error) {
	var (
		book             Book
		status, audio    string
		created, updated string
	)
	if err := scanner.Scan(&book.ID, &book.Title, &book.Premise, &book.Audience, &book.ChapterCount,
		&status, &audio, &created, &updated); err != nil {
		return nil, err
	}
	book.Status = BookStatus(status)
	book.AudioStatus = BookStatus(audio)
	book.CreatedAt, _ = database.ParseTime(created)
	book.UpdatedAt, _ = database.ParseTime(updated)
	return &book, nil
}

func (s *SQLiteStore) GetBook(ctx context.Context, id string) (*Book, error) {
	book, err := scanBook(s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

func (s *SQLiteStore) ListBooks(ctx context.Context) ([]*Book, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()
	var books []*Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// DeleteBook removes the book; foreign keys cascade to every output record.
func (s *SQLiteStore) DeleteBook(ctx context.Context, id string) error {
	affected, err := s.db.ExecAffected(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SetBookStatus(ctx context.Context, id string, status BookStatus) error {
	return s.updateBook(ctx, id, "status", status)
}

func (s *SQLiteStore) SetAudioStatus(ctx context.Context, id string, status BookStatus) error {
	return s.updateBook(ctx, id, "audio_status", status)
}

func (s *SQLiteStore) updateBook(ctx context.Context, id, column string, status BookStatus) error {
	affected, err := s.db.ExecAffected(ctx,
		`UPDATE books SET `+column+` = ?, updated_at = ? WHERE id = ?`, string(status), s.stamp(), id)
	if err != nil {
		return fmt.Errorf("update book %s: %w", column, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveOutline(ctx context.Context, outline Outline) error {
	chapters, err := json.Marshal(outline.Chapters)
	if err != nil {
		return fmt.Errorf("encode outline: %w", err)
	}
	_, err = s.db.ExecAffected(ctx,
		`INSERT INTO outlines (book_id, title, style, chapters_json, created_at) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (book_id) DO UPDATE SET title = excluded.title, style = excluded.style,
             chapters_json = excluded.chapters_json, created_at = excluded.created_at`,
		outline.BookID, outline.Title, outline.Style, string(chapters), s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("save outline: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetOutline(ctx context.Context, bookID string) (*Outline, error) {
	var (
		outline  = Outline{BookID: bookID}
		chapters string
		created  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT title, style, chapters_json, created_at FROM outlines WHERE book_id = ?`, bookID,
	).Scan(&outline.Title, &outline.Style, &chapters, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outline: %w", err)
	}
	if err := json.Unmarshal([]byte(chapters), &outline.Chapters); err != nil {
		return nil, fmt.Errorf("decode outline: %w", err)
	}
	outline.CreatedAt, _ = database.ParseTime(created)
	return &outline, nil
}

func (s *SQLiteStore) SaveChapterText(ctx context.Context, bookID string, index int, title, body string) error {
	_, err := s.db.ExecAffected(ctx,
		`INSERT INTO chapters (book_id, chapter_index, title, body, updated_at) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (book_id, chapter_index) DO UPDATE SET title = excluded.title, body = excluded.body,
             updated_at = excluded.updated_at`,
		bookID, index, title, body, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("save chapter %d text: %w", index, err)
	}
	return nil
}

func (s *SQLiteStore) SaveChapterImage(ctx context.Context, bookID string, index int, path string) error {
	affected, err := s.db.ExecAffected(ctx,
		`UPDATE chapters SET image_path = ?, updated_at = ? WHERE book_id = ? AND chapter_index = ?`,
		path, s.stamp(), bookID, index,
	)
	if err != nil {
		return fmt.Errorf("save chapter %d image: %w", index, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const chapterColumns = "book_id, chapter_index, title, body, image_path, updated_at"

func scanChapter(scanner interface{ Scan(...any) error }) (*Chapter, error) {
	var (
		ch      Chapter
		updated string
	)
	if err := scanner.Scan(&ch.BookID, &ch.Index, &ch.Title, &ch.Body, &ch.ImagePath, &updated); err != nil {
		return nil, err
	}
	ch.UpdatedAt, _ = database.ParseTime(updated)
	return &ch, nil
}

func (s *SQLiteStore) GetChapter(ctx context.Context, bookID string, index int) (*Chapter, error) {
	ch, err := scanChapter(s.db.QueryRowContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE book_id = ? AND chapter_index = ?`, bookID, index))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chapter: %w", err)
	}
	return ch, nil
}

func (s *SQLiteStore) ListChapters(ctx context.Context, bookID string) ([]*Chapter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE book_id = ? ORDER BY chapter_index`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()
	var chapters []*Chapter
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

func (s *SQLiteStore) SaveExtra(ctx context.Context, extra Extra) error {
	_, err := s.db.ExecAffected(ctx,
		`INSERT INTO book_extras (book_id, kind, content, created_at) VALUES (?, ?, ?, ?)
         ON CONFLICT (book_id, kind) DO UPDATE SET content = excluded.content, created_at = excluded.created_at`,
		extra.BookID, string(extra.Kind), extra.Content, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", extra.Kind, err)
	}
	return nil
}

func (s *SQLiteStore) GetExtra(ctx context.Context, bookID string, kind ExtraKind) (*Extra, error) {
	extra := Extra{BookID: bookID, Kind: kind}
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT content, created_at FROM book_extras WHERE book_id = ? AND kind = ?`, bookID, string(kind),
	).Scan(&extra.Content, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}
	extra.CreatedAt, _ = database.ParseTime(created)
	return &extra, nil
}

func (s *SQLiteStore) SaveAudioPlan(ctx context.Context, plan AudioPlan) error {
	units, err := json.Marshal(plan.Units)
	if err != nil {
		return fmt.Errorf("encode audio plan: %w", err)
	}
	_, err = s.db.ExecAffected(ctx,
		`INSERT INTO audio_plans (book_id, voice, format, units_json, created_at) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (book_id) DO UPDATE SET voice = excluded.voice, format = excluded.format,
             units_json = excluded.units_json, created_at = excluded.created_at`,
		plan.BookID, plan.Voice, plan.Format, string(units), s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("save audio plan: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAudioPlan(ctx context.Context, bookID string) (*AudioPlan, error) {
	var (
		plan    = AudioPlan{BookID: bookID}
		units   string
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT voice, format, units_json, created_at FROM audio_plans WHERE book_id = ?`, bookID,
	).Scan(&plan.Voice, &plan.Format, &units, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audio plan: %w", err)
	}
	if err := json.Unmarshal([]byte(units), &plan.Units); err != nil {
		return nil, fmt.Errorf("decode audio plan: %w", err)
	}
	plan.CreatedAt, _ = database.ParseTime(created)
	return &plan, nil
}

func (s *SQLiteStore) SaveAudioSegment(ctx context.Context, segment AudioSegment) error {
	_, err := s.db.ExecAffected(ctx,
		`INSERT INTO audio_segments (book_id, unit_index, label, path, characters, chunks, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (book_id, unit_index) DO UPDATE SET label = excluded.label, path = excluded.path,
             characters = excluded.characters, chunks = excluded.chunks, created_at = excluded.created_at`,
		segment.BookID, segment.Index, segment.Label, segment.Path, segment.Characters, segment.Chunks, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("save audio segment %d: %w", segment.Index, err)
	}
	return nil
}

const segmentColumns = "book_id, unit_index, label, path, characters, chunks, created_at"

func scanSegment(scanner interface{ Scan(...any) error }) (*AudioSegment, error) {
	var (
		seg     AudioSegment
		created string
	)
	if err := scanner.Scan(&seg.BookID, &seg.Index, &seg.Label, &seg.Path, &seg.Characters, &seg.Chunks, &created); err != nil {
		return nil, err
	}
	seg.CreatedAt, _ = database.ParseTime(created)
	return &seg, nil
}

func (s *SQLiteStore) GetAudioSegment(ctx context.Context, bookID string, index int) (*AudioSegment, error) {
	seg, err := scanSegment(s.db.QueryRowContext(ctx,
		`SELECT `+segmentColumns+` FROM audio_segments WHERE book_id = ? AND unit_index = ?`, bookID, index))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audio segment: %w", err)
	}
	return seg, nil
}

func (s *SQLiteStore) ListAudioSegments(ctx context.Context, bookID string) ([]*AudioSegment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+segmentColumns+` FROM audio_segments WHERE book_id = ? ORDER BY unit_index`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list audio segments: %w", err)
	}
	defer rows.Close()
	var segments []*AudioSegment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audio segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

func (s *SQLiteStore) CheckHealth(ctx context.Context) (database.Health, error) {
	return s.db.CheckHealth(ctx)
}
