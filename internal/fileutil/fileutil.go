package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Exists reports whether path names a regular, non-empty file.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// WriteAtomic writes data to a temp file beside path and renames it into
// place, so readers never observe a partial file.
func WriteAtomic(path string, data []byte, mode os.FileMode) error {
	return WriteAtomicFunc(path, mode, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteAtomicFunc streams through write into a temp file and renames it to path.
func WriteAtomicFunc(path string, mode os.FileMode, write func(io.Writer) error) error {
	tmp, err := CreateTemp(path)
	if err != nil {
		return err
	}
	name := tmp.Name()
	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Chmod(name, mode); err != nil {
		_ = os.Remove(name)
		return err
	}
	return Promote(name, path)
}

// CreateTemp opens a hidden temp file in path's directory, creating the
// directory if needed.
func CreateTemp(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp for %s: %w", path, err)
	}
	return tmp, nil
}

// Promote renames a finished temp file onto its final path.
func Promote(tmp, path string) error {
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("promote %s: %w", path, err)
	}
	return nil
}

// ConcatFiles streams srcs in order into a temp file beside dst and returns
// the temp path and byte count. The caller promotes or removes the temp file.
func ConcatFiles(dst string, srcs []string) (string, int64, error) {
	if len(srcs) == 0 {
		return "", 0, fmt.Errorf("concat %s: no input files", dst)
	}
	out, err := CreateTemp(dst)
	if err != nil {
		return "", 0, err
	}
	name := out.Name()
	fail := func(err error) (string, int64, error) {
		_ = out.Close()
		_ = os.Remove(name)
		return "", 0, err
	}

	var total int64
	for _, src := range srcs {
		in, err := os.Open(src)
		if err != nil {
			return fail(err)
		}
		written, err := io.Copy(out, in)
		in.Close()
		if err != nil {
			return fail(fmt.Errorf("copy %s: %w", src, err))
		}
		total += written
	}
	if err := out.Sync(); err != nil {
		return fail(err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(name)
		return "", 0, err
	}
	return name, total, nil
}
