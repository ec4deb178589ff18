/* Copyright 2025 Dnote Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	fieldKeyLevel     = "level"
	fieldKeyMessage   = "msg"
	fieldKeyTimestamp = "ts"

	// LevelDebug represents debug log level
	LevelDebug = "debug"
	// LevelInfo represents info log level
	LevelInfo = "info"
	// LevelWarn represents warn log level
	LevelWarn = "warn"
	// LevelError represents error log level
	LevelError = "error"
)

var (
	entryMu      sync.Mutex
	entryOut     io.Writer = io.Discard
	currentLevel           = LevelInfo
)

// Fields represents a set of information to be included in a structured entry
type Fields map[string]interface{}

// Entry is a structured log entry. Entries are written as one JSON object per
// line, which is what the auto-sync daemon uses instead of console messages.
type Entry struct {
	Fields    Fields
	Timestamp time.Time
}

// WithFields creates a log entry with the given fields
func WithFields(fields Fields) Entry {
	return Entry{
		Fields:    fields,
		Timestamp: time.Now().UTC(),
	}
}

// SetEntryOutput sets the writer for structured entries. They are discarded
// until it is called.
func SetEntryOutput(w io.Writer) {
	entryMu.Lock()
	defer entryMu.Unlock()

	entryOut = w
}

// SetLevel sets the minimum level of structured entries
func SetLevel(level string) {
	entryMu.Lock()
	defer entryMu.Unlock()

	currentLevel = level
}

func levelPriority(level string) int {
	switch level {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// Debug writes the entry at a debug level
func (e Entry) Debug(msg string) {
	e.write(LevelDebug, msg)
}

// Info writes the entry at an info level
func (e Entry) Info(msg string) {
	e.write(LevelInfo, msg)
}

// Warn writes the entry at a warning level
func (e Entry) Warn(msg string) {
	e.write(LevelWarn, msg)
}

// Error writes the entry at an error level
func (e Entry) Error(msg string) {
	e.write(LevelError, msg)
}

// ErrorWrap writes the entry with the error message annotated by the given message
func (e Entry) ErrorWrap(err error, msg string) {
	e.Error(fmt.Sprintf("%s: %v", msg, err))
}

func (e Entry) encode(level, msg string) []byte {
	data := make(Fields, len(e.Fields)+3)
	for k, v := range e.Fields {
		switch v := v.(type) {
		case error:
			data[k] = v.Error()
		case time.Duration:
			data[k] = v.String()
		default:
			data[k] = v
		}
	}

	data[fieldKeyLevel] = level
	data[fieldKeyMessage] = msg
	data[fieldKeyTimestamp] = e.Timestamp.Format(time.RFC3339)

	b, err := json.Marshal(data)
	if err != nil {
		b, _ = json.Marshal(Fields{fieldKeyLevel: LevelError, fieldKeyMessage: "encoding log entry: " + err.Error()})
	}

	return b
}

func (e Entry) write(level, msg string) {
	entryMu.Lock()
	defer entryMu.Unlock()

	if levelPriority(level) < levelPriority(currentLevel) {
		return
	}

	if _, err := fmt.Fprintln(entryOut, string(e.encode(level, msg))); err != nil {
		fmt.Fprintf(os.Stderr, "writing log entry: %v\n", err)
	}
}
