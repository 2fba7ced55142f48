// Package logger builds the process-wide zerolog logger. Every entry is also
// copied into a bounded in-memory ring so the gateway can show recent
// activity without reading log files.
package logger

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// New constructs the service logger. Development builds log at debug level
// through a console writer; everything else logs JSON at info level. When
// ring is non-nil it receives a copy of every entry.
func New(appEnv string, out io.Writer, ring *Ring) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	var w io.Writer = out
	if ring != nil {
		w = zerolog.MultiLevelWriter(out, ring)
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Message is one captured log entry.
type Message struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Text      string         `json:"text"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Ring keeps the last maxSize entries written by zerolog.
type Ring struct {
	mu       sync.RWMutex
	messages []Message
	maxSize  int
}

func NewRing(maxSize int) *Ring {
	if maxSize <= 0 {
		maxSize = 200
	}
	return &Ring{
		messages: make([]Message, 0, maxSize),
		maxSize:  maxSize,
	}
}

// Write decodes one JSON log line. Lines that are not JSON are kept verbatim
// as the message text.
func (r *Ring) Write(p []byte) (int, error) {
	msg := Message{Timestamp: time.Now(), Level: "info"}

	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err != nil {
		msg.Text = string(p)
	} else {
		if v, ok := fields[zerolog.LevelFieldName].(string); ok {
			msg.Level = v
		}
		if v, ok := fields[zerolog.MessageFieldName].(string); ok {
			msg.Text = v
		}
		if v, ok := fields[zerolog.TimestampFieldName].(string); ok {
			if ts, err := time.Parse(zerolog.TimeFieldFormat, v); err == nil {
				msg.Timestamp = ts
			}
		}
		delete(fields, zerolog.LevelFieldName)
		delete(fields, zerolog.MessageFieldName)
		delete(fields, zerolog.TimestampFieldName)
		if len(fields) > 0 {
			msg.Fields = fields
		}
	}

	r.mu.Lock()
	r.messages = append(r.messages, msg)
	if len(r.messages) > r.maxSize {
		r.messages = r.messages[len(r.messages)-r.maxSize:]
	}
	r.mu.Unlock()
	return len(p), nil
}

// WriteLevel satisfies zerolog.LevelWriter.
func (r *Ring) WriteLevel(_ zerolog.Level, p []byte) (int, error) {
	return r.Write(p)
}

// GetRecent returns up to n entries, newest first.
func (r *Ring) GetRecent(n int) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > len(r.messages) {
		n = len(r.messages)
	}
	result := make([]Message, n)
	for i := 0; i < n; i++ {
		result[i] = r.messages[len(r.messages)-1-i]
	}
	return result
}
