package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bookloom/internal/fileutil"
)

// Layout maps records to paths under a root directory.
type Layout struct {
	Root string
}

// NewLayout returns a layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// BookDir is the directory holding every artifact for a book.
func (l Layout) BookDir(bookID string) string {
	return filepath.Join(l.Root, bookID)
}

// ChapterImagePath is where the illustration for a chapter lives.
func (l Layout) ChapterImagePath(bookID string, index int, format string) string {
	return filepath.Join(l.BookDir(bookID), "images", fmt.Sprintf("chapter-%03d.%s", index, extension(format)))
}

// AudioUnitPath is where the narrated audio for a unit lives once assembled.
func (l Layout) AudioUnitPath(bookID string, index int, format string) string {
	return filepath.Join(l.BookDir(bookID), "audio", fmt.Sprintf("unit-%03d.%s", index, extension(format)))
}

// AudioPartsDir holds the per-chunk part files of a unit still being narrated.
func (l Layout) AudioPartsDir(bookID string, index int) string {
	return filepath.Join(l.BookDir(bookID), "audio", "parts", fmt.Sprintf("unit-%03d", index))
}

// AudioPartPath is the part file for one chunk of a unit.
func (l Layout) AudioPartPath(bookID string, index, chunk int, format string) string {
	return filepath.Join(l.AudioPartsDir(bookID, index), fmt.Sprintf("chunk-%03d.%s", chunk, extension(format)))
}

// RemoveBook deletes every artifact of a book.
func (l Layout) RemoveBook(bookID string) error {
	if strings.TrimSpace(bookID) == "" {
		return fmt.Errorf("remove artifacts: empty book id")
	}
	return os.RemoveAll(l.BookDir(bookID))
}

// Exists reports whether a finished artifact is present at path.
func Exists(path string) bool {
	return fileutil.Exists(path)
}

func extension(format string) string {
	format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	switch format {
	case "":
		return "bin"
	case "jpeg":
		return "jpg"
	}
	return format
}
