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

// Package consts provides definitions of constants
package consts

var (
	// AppDirName is the name of the directory holding papercli files under
	// each XDG base directory
	AppDirName = "papercli"
	// DBFileName is the filename of the library database
	DBFileName = "papers.db"
	// PDFDirName is the name of the managed pdf directory, both locally and
	// in the remote mirror
	PDFDirName = "pdfs"
	// ConfigFilename is the name of the config file
	ConfigFilename = "papercli.yaml"
	// EnvFilename is the name of the optional dotenv file in the config dir
	EnvFilename = ".env"

	// CursorFilename is the name of the sync cursor file, stored next to the database
	CursorFilename = "sync_cursor.json"
	// JournalDirName is the directory holding in-flight apply journals
	JournalDirName = "journal"
	// LockFilename is the advisory lock taken by sync and doctor cycles
	LockFilename = "sync.lock"
	// WatchLogFilename is the log file of the auto-sync daemon
	WatchLogFilename = "watch.log"
	// LogFilename is the log file of the sync and doctor commands
	LogFilename = "papercli.log"

	// MirrorExportFilename is the export file of the remote mirror
	MirrorExportFilename = "library.json"
	// MirrorLeaseFilename is the lease file a cycle holds in the remote mirror
	MirrorLeaseFilename = ".papercli_sync.lock"

	// SystemSchema is the key for schema in the system table
	SystemSchema = "schema"
	// SystemLastSyncAt is the unix timestamp of the last completed sync cycle
	SystemLastSyncAt = "last_sync_time"
	// SystemLastDoctorAt is the unix timestamp of the last doctor repair
	SystemLastDoctorAt = "last_doctor_time"
)
