package artifacts

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bookloom/internal/logging"
)

// PruneResult contains the outcome of a prune pass.
type PruneResult struct {
	Removed []string
	Errors  []PruneError
}

// PruneError pairs a directory path with its removal error.
type PruneError struct {
	Path  string
	Error error
}

// PruneOptions controls what a prune pass may touch.
type PruneOptions struct {
	// Known holds the ids of books that still exist in the library.
	Known map[string]struct{}
	// Busy holds book ids with an unfinished job; their parts are left alone.
	Busy map[string]struct{}
	// MaxPartAge is how long an audio parts directory may sit untouched.
	// Zero disables stale part cleanup.
	MaxPartAge time.Duration
	DryRun     bool
	Now        time.Time
}

// Prune removes book directories with no library record and audio parts
// directories older than MaxPartAge. With DryRun set nothing is deleted and
// Removed lists what would have been.
func (l Layout) Prune(ctx context.Context, opts PruneOptions, logger *slog.Logger) PruneResult {
	if logger == nil {
		logger = logging.NewNop()
	}
	result := PruneResult{}
	root := strings.TrimSpace(l.Root)
	if root == "" {
		return result
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, PruneError{Path: root, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() {
			continue
		}
		bookID := entry.Name()
		if _, known := opts.Known[bookID]; !known {
			l.remove(&result, l.BookDir(bookID), "orphaned", opts.DryRun, logger)
			continue
		}
		if opts.MaxPartAge <= 0 {
			continue
		}
		if _, busy := opts.Busy[bookID]; busy {
			continue
		}
		l.pruneParts(ctx, &result, bookID, opts, logger)
	}
	return result
}

func (l Layout) pruneParts(ctx context.Context, result *PruneResult, bookID string, opts PruneOptions, logger *slog.Logger) {
	partsRoot := filepath.Join(l.BookDir(bookID), "audio", "parts")
	entries, err := os.ReadDir(partsRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, PruneError{Path: partsRoot, Error: err})
		}
		return
	}
	cutoff := opts.Now.Add(-opts.MaxPartAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(partsRoot, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, PruneError{Path: dirPath, Error: err})
			continue
		}
		if info.ModTime().Before(cutoff) {
			l.remove(result, dirPath, "stale parts", opts.DryRun, logger)
		}
	}
}

func (l Layout) remove(result *PruneResult, path, reason string, dryRun bool, logger *slog.Logger) {
	if dryRun {
		result.Removed = append(result.Removed, path)
		return
	}
	if err := os.RemoveAll(path); err != nil {
		result.Errors = append(result.Errors, PruneError{Path: path, Error: err})
		logging.WarnWithContext(logger, "failed to prune artifact directory", "artifact_prune_failed",
			logging.String("path", path),
			logging.String("reason", reason),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check artifact_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
		return
	}
	result.Removed = append(result.Removed, path)
	logger.Info("pruned artifact directory",
		logging.String("path", path),
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "artifact_prune"),
	)
}

// DirInfo describes one book directory under the artifact root.
type DirInfo struct {
	BookID  string
	Path    string
	ModTime time.Time
	Size    int64
}

// ListBookDirs returns every book directory under the root with its total
// size, sorted by book id. A missing root yields no entries.
func (l Layout) ListBookDirs() ([]DirInfo, error) {
	root := strings.TrimSpace(l.Root)
	if root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirPath := filepath.Join(root, entry.Name())
		size, _ := dirSize(dirPath)
		dirs = append(dirs, DirInfo{
			BookID:  entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
		})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].BookID < dirs[j].BookID })
	return dirs, nil
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // best effort
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err == nil {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
