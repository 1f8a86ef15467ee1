package zadavalnik

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TranscriptLogger records every model request and response for one test
// attempt. Diagnostic detail that must never reach the user (raw model
// output, decode failures) ends up here.
type TranscriptLogger struct {
	file      *os.File
	mu        sync.Mutex
	attemptID int64
}

// NewTranscriptLogger creates a transcript log file for a specific attempt
func NewTranscriptLogger(dir string, attemptID int64, topic string, modality Modality) (*TranscriptLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("attempt-%d.log", attemptID))
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript file: %w", err)
	}

	logger := &TranscriptLogger{
		file:      file,
		attemptID: attemptID,
	}

	// Write header with attempt parameters
	logger.Logf("=== Test Attempt Transcript ===\n")
	logger.Logf("Attempt ID: %d\n", attemptID)
	logger.Logf("Topic: %s\n", topic)
	logger.Logf("Modality: %s\n", modality)
	logger.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	logger.Logf("===========================\n\n")

	return logger, nil
}

// Logf writes a formatted log entry with timestamp
func (tl *TranscriptLogger) Logf(format string, args ...interface{}) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	timestamp := time.Now().Format("15:04:05.000")
	message := fmt.Sprintf(format, args...)

	// Write to file
	fmt.Fprintf(tl.file, "[%s] %s", timestamp, message)

	// Also flush to ensure it's written immediately
	tl.file.Sync()
}

// LogRequest logs the user-side content of a model request
func (tl *TranscriptLogger) LogRequest(content string) {
	tl.Logf("=== MODEL REQUEST ===\n")
	tl.Logf("Content:\n%s\n", content)
	tl.Logf("==================\n\n")
}

// LogResponse logs a raw model response and its finish reason
func (tl *TranscriptLogger) LogResponse(raw, finishReason string) {
	tl.Logf("=== MODEL RESPONSE (finish: %s) ===\n", finishReason)
	tl.Logf("Response:\n%s\n", raw)
	tl.Logf("================================\n\n")
}

// LogParseFailure logs a failed raw-text-to-record conversion
func (tl *TranscriptLogger) LogParseFailure(err error) {
	tl.Logf("PARSE FAILURE: %v\n", err)
}

// Close closes the transcript file
func (tl *TranscriptLogger) Close() error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.file != nil {
		fmt.Fprintf(tl.file, "=== Attempt Transcript Complete ===\n")
		fmt.Fprintf(tl.file, "Closed: %s\n", time.Now().Format(time.RFC3339))
		return tl.file.Close()
	}
	return nil
}
