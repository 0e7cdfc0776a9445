package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"bookloom/internal/fileutil"
)

// WriteAudioPart stores one narrated chunk atomically.
func WriteAudioPart(path string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("write audio part %s: empty audio", filepath.Base(path))
	}
	return fileutil.WriteAtomic(path, data, 0o644)
}

// ConcatAudioParts joins parts in order into a temp file beside dst and
// returns its path. Callers promote it with PromoteAudio once the catalog
// row is saved.
func ConcatAudioParts(dst string, parts []string) (string, error) {
	tmp, _, err := fileutil.ConcatFiles(dst, parts)
	if err != nil {
		return "", fmt.Errorf("assemble %s: %w", filepath.Base(dst), err)
	}
	return tmp, nil
}

// PromoteAudio renames an assembled temp file into its final place.
func PromoteAudio(tmp, dst string) error {
	return fileutil.Promote(tmp, dst)
}

// RemoveAudioParts deletes a unit's part directory.
func RemoveAudioParts(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove audio parts: %w", err)
	}
	return nil
}

// ExistingParts lists finished part files in dir, sorted by name.
func ExistingParts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var parts []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == "" || name[0] == '.' {
			continue
		}
		path := filepath.Join(dir, name)
		if fileutil.Exists(path) {
			parts = append(parts, path)
		}
	}
	sort.Strings(parts)
	return parts, nil
}
