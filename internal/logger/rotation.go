package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RotatingWriter appends to a log file and rotates it aside once it
// grows past maxSize.
type RotatingWriter struct {
	mu       sync.Mutex
	filename string
	maxSize  int64
	file     *os.File
	size     int64
}

// NewRotatingWriter opens filename for appending. maxSizeMB of zero or
// less disables rotation.
func NewRotatingWriter(filename string, maxSizeMB int) (*RotatingWriter, error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &RotatingWriter{
		filename: filename,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		file:     file,
		size:     info.Size(),
	}, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxSize > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate renames the current file aside with a timestamp suffix and
// starts a fresh one. Caller holds the lock.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	rotated := fmt.Sprintf("%s.%s", w.filename, time.Now().Format("20060102-150405"))
	if err := os.Rename(w.filename, rotated); err != nil {
		return err
	}

	file, err := os.OpenFile(w.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	w.file = file
	w.size = 0
	return nil
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
