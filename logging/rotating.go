package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotatingWriter writes log lines to a weekly file (app-YYYY-Www.log) and
// starts a numbered sibling (app-YYYY-Www_NN.log) once the size limit is hit.
// Files older than the retention period are removed once a day.
type RotatingWriter struct {
	dir         string
	retention   time.Duration
	maxFileSize int64

	mu      sync.Mutex
	file    *os.File
	week    string
	seq     int
	size    int64
	now     func() time.Time
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewRotatingWriter opens the current week's file under dir.
func NewRotatingWriter(dir string, retentionWeeks int, maxFileSize int64) (*RotatingWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rw := &RotatingWriter{
		dir:         dir,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
		now:         time.Now,
		cancel:      cancel,
		stopped:     make(chan struct{}),
	}

	rw.mu.Lock()
	err := rw.open(weekKey(rw.now()))
	rw.mu.Unlock()
	if err != nil {
		cancel()
		return nil, err
	}

	go rw.cleanupLoop(ctx)
	return rw, nil
}

// weekKey returns the ISO week in YYYY-Www format
func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func (rw *RotatingWriter) fileName(week string, seq int) string {
	if seq == 0 {
		return filepath.Join(rw.dir, fmt.Sprintf("app-%s.log", week))
	}
	return filepath.Join(rw.dir, fmt.Sprintf("app-%s_%02d.log", week, seq))
}

// open switches to the week's file, skipping numbered files that are full
// (caller must hold the lock)
func (rw *RotatingWriter) open(week string) error {
	if rw.week != week {
		rw.seq = 0
	}

	for {
		path := rw.fileName(week, rw.seq)
		info, err := os.Stat(path)
		if err != nil || rw.maxFileSize <= 0 || info.Size() < rw.maxFileSize {
			break
		}
		rw.seq++
	}

	if rw.file != nil {
		_ = rw.file.Close()
	}

	path := rw.fileName(week, rw.seq)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	rw.file = file
	rw.week = week
	rw.size = 0
	if info, err := file.Stat(); err == nil {
		rw.size = info.Size()
	}
	return nil
}

// Write implements io.Writer
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, fmt.Errorf("log writer is closed")
	}

	week := weekKey(rw.now())
	switch {
	case week != rw.week:
		if err := rw.open(week); err != nil {
			return 0, err
		}
	case rw.maxFileSize > 0 && rw.size > 0 && rw.size+int64(len(p)) > rw.maxFileSize:
		rw.seq++
		if err := rw.open(week); err != nil {
			return 0, err
		}
	}

	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

func (rw *RotatingWriter) cleanupLoop(ctx context.Context) {
	defer close(rw.stopped)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rw.cleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "log cleanup failed: %v\n", err)
			}
		}
	}
}

// cleanup removes log files last modified before the retention cutoff and
// returns their names
func (rw *RotatingWriter) cleanup() ([]string, error) {
	entries, err := os.ReadDir(rw.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := rw.now().Add(-rw.retention)
	var removed []string

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "app-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(rw.dir, name)); err == nil {
			removed = append(removed, name)
		}
	}

	sort.Strings(removed)
	return removed, nil
}

// Close stops the cleanup loop and closes the current file
func (rw *RotatingWriter) Close() error {
	rw.cancel()
	<-rw.stopped

	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}
