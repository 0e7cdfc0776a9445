package logs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const maxLineBytes = 1024 * 1024

// Tail returns up to limit trailing lines of path and the offset just past
// the last complete line. A missing file yields no lines and offset 0.
func Tail(path string, limit int) ([]string, int64, error) {
	file, err := openLog(path)
	if err != nil || file == nil {
		return nil, 0, err
	}
	defer file.Close()

	var (
		ring  = make([]string, max(limit, 0))
		count int
		next  int
	)
	offset, err := scanLines(file, 0, func(line string) {
		if limit <= 0 {
			return
		}
		ring[next] = line
		next = (next + 1) % limit
		count = min(count+1, limit)
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, 0, count)
	start := (next - count + limit) % max(limit, 1)
	for i := range count {
		lines = append(lines, ring[(start+i)%limit])
	}
	return lines, offset, nil
}

// ReadFrom returns the complete lines written after offset and the offset
// just past them. An offset beyond the end of the file restarts at zero.
func ReadFrom(path string, offset int64) ([]string, int64, error) {
	file, err := openLog(path)
	if err != nil || file == nil {
		return nil, 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}

	var lines []string
	next, err := scanLines(file, offset, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		return nil, offset, err
	}
	return lines, next, nil
}

// Follow calls fn for every line appended after offset, polling every
// interval until ctx is done. It returns nil on cancellation.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, fn func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		lines, next, err := ReadFrom(path, offset)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fn(line)
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func openLog(path string) (*os.File, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	return file, nil
}

// scanLines feeds each newline-terminated line after offset to fn. A trailing
// partial line is left for the next read.
func scanLines(file *os.File, offset int64, fn func(string)) (int64, error) {
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		chunk, err := reader.ReadBytes('\n')
		if len(chunk) > 0 && chunk[len(chunk)-1] == '\n' {
			offset += int64(len(chunk))
			line := bytes.TrimRight(chunk, "\r\n")
			if len(line) > maxLineBytes {
				line = line[:maxLineBytes]
			}
			fn(string(line))
		}
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
	}
}
