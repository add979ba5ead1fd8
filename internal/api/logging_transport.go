package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// LoggingTransport wraps an http.RoundTripper and appends one block per
// request/response pair to a log file. Every request line is passed through
// RedactURL first; the Steam key must never land on disk.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	mu        sync.Mutex
	writer    *bufio.Writer
}

// NewLoggingTransport creates a LoggingTransport appending to logFilePath.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", logFilePath, err)
	}

	if transport == nil {
		transport = http.DefaultTransport
	}

	return &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}, nil
}

// RoundTrip executes a single HTTP transaction and logs the redacted request
// line, the response status and, for JSON responses, the body.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	t.writeLog(fmt.Sprintf("--- Request (%s) ---\n%s %s", start.Format(time.RFC3339), req.Method, RedactURL(req.URL.String())))

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.writeLog(fmt.Sprintf("--- Response Error (duration %v) ---\n%s", duration, err.Error()))
		t.writer.Flush()
		return resp, err
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") || strings.HasPrefix(contentType, "text/json") {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			t.writeLog(fmt.Sprintf("--- Response %s (duration %v) ---\n(body read failed: %v)", resp.Status, duration, readErr))
		} else {
			// Restore the body so the caller can still read it.
			resp.Body.Close()
			resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			t.writeLog(fmt.Sprintf("--- Response %s (duration %v, %d bytes) ---\n%s", resp.Status, duration, len(bodyBytes), string(bodyBytes)))
		}
	} else {
		t.writeLog(fmt.Sprintf("--- Response %s (duration %v, %s) ---\n(body not logged)", resp.Status, duration, contentType))
	}

	t.writer.Flush()
	return resp, err
}

// writeLog writes a string to the buffered writer.
func (t *LoggingTransport) writeLog(entry string) {
	if _, err := t.writer.WriteString(entry + "\n\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\nLog message: %s\n", err, entry)
	}
}

// Close flushes the buffer and closes the underlying log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", errFlush)
	}
	return errClose
}
