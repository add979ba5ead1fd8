package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Writer receives the human-readable scan/scrape report, one line at a time.
type Writer interface {
	Writeln(line string) error
}

// Discard drops every line.
type Discard struct{}

func (Discard) Writeln(string) error { return nil }

// File appends report lines to a text file under the reports directory.
// Lines are buffered; Close flushes them out.
type File struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	path string
}

// NewFile opens (or creates) a report file named after the operation and the
// current date, e.g. reports/scan_mygames_2026-08-25.txt.
func NewFile(dir, operation, source string) (*File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating reports directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s_%s.txt", operation, source, time.Now().Format("2006-01-02"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening report file: %w", err)
	}
	return &File{file: f, buf: bufio.NewWriter(f), path: path}, nil
}

func (f *File) Writeln(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.buf.WriteString(line + "\n"); err != nil {
		return err
	}
	return nil
}

// Path reports where the lines are going, for the end-of-run summary.
func (f *File) Path() string {
	return f.path
}

// Close flushes buffered lines and closes the underlying file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.buf.Flush(); err != nil {
		f.file.Close()
		return err
	}
	return f.file.Close()
}
