// Package logging provides the structured JSON-line request/error
// logger used by the driver for every terminal status decision.
package logging

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/goccy/go-json"
)

// Entry is one structured log line.
type Entry struct {
	Time       string  `json:"time"`
	RequestID  string  `json:"request_id,omitempty"`
	Method     string  `json:"method"`
	Path       string  `json:"path"`
	Status     int     `json:"status"`
	DurationMS float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// Logger writes structured JSON log lines to an output writer.
type Logger struct {
	out io.Writer
	enc *json.Encoder
}

// New returns a Logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{out: w, enc: json.NewEncoder(w)}
}

// Default returns a Logger writing to os.Stdout.
func Default() *Logger {
	return New(os.Stdout)
}

// LogRequest writes one structured entry for a completed request.
func (l *Logger) LogRequest(requestID, method, path string, status int, start time.Time, err error) {
	entry := Entry{
		Time:       start.Format(time.RFC3339),
		RequestID:  requestID,
		Method:     method,
		Path:       path,
		Status:     status,
		DurationMS: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if encErr := l.enc.Encode(entry); encErr != nil {
		log.Printf("logging: failed to write entry: %v", encErr)
	}
}

// LogPanic writes a recovered-panic entry; driver calls this from its
// recover() path before converting the panic into a 500.
func (l *Logger) LogPanic(requestID, method, path string, recovered any) {
	entry := Entry{
		Time:      time.Now().Format(time.RFC3339),
		RequestID: requestID,
		Method:    method,
		Path:      path,
		Status:    500,
		Error:     toErrorString(recovered),
	}
	if encErr := l.enc.Encode(entry); encErr != nil {
		log.Printf("logging: failed to write panic entry: %v", encErr)
	}
}

func toErrorString(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "panic: unknown"
}
