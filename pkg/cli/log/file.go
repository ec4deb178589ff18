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
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures a rotating log file
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// RouteEntries writes structured entries to the rotating log file at path,
// and also to w unless it is nil. The returned function closes the file and
// discards entries again.
func RouteEntries(path string, w io.Writer) func() {
	f := OpenFile(FileOptions{Path: path})
	if w != nil {
		SetEntryOutput(io.MultiWriter(w, f))
	} else {
		SetEntryOutput(f)
	}

	return func() {
		SetEntryOutput(io.Discard)
		if err := f.Close(); err != nil {
			Debug("closing %s: %v\n", path, err)
		}
	}
}

// OpenFile returns a size-rotated log file writer. The caller closes it.
func OpenFile(o FileOptions) io.WriteCloser {
	if o.MaxSizeMB == 0 {
		o.MaxSizeMB = 10
	}
	if o.MaxBackups == 0 {
		o.MaxBackups = 3
	}
	if o.MaxAgeDays == 0 {
		o.MaxAgeDays = 28
	}

	return &lumberjack.Logger{
		Filename:   o.Path,
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
		Compress:   true,
	}
}
