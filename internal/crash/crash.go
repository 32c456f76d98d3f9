/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns an unrecovered panic into a report file and a clean database shutdown.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	applog "storymagic/internal/log"
	"storymagic/internal/storage"
	"storymagic/internal/version"
)

// ReportsDirName is the folder next to the library database that receives crash reports.
const ReportsDirName = "crash-reports"

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Recover captures a panic, logs it with the stack trace, writes a report
// file and closes the library database (if given) so the WAL is
// checkpointed before the process exits with code 2.
//
// Usage: defer crash.Recover(db)
func Recover(db *storage.DB) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, err := writeReport(db, r, stack)
		if err != nil {
			l.Error("crash report not written", slog.Any("err", err))
		}
		if db != nil {
			if err := db.Close(); err != nil {
				l.Error("closing database after panic failed", slog.Any("err", err))
			}
		}

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		exitFn(2)
	}
}

func reportDir(db *storage.DB) string {
	if db != nil && db.Path() != "" {
		dir := filepath.Join(filepath.Dir(db.Path()), ReportsDirName)
		if err := os.MkdirAll(dir, 0o755); err == nil {
			return dir
		}
	}
	return os.TempDir()
}

func writeReport(db *storage.DB, panicVal any, stack []byte) (string, error) {
	id := uuid.NewString()
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(reportDir(db), fmt.Sprintf("crash-%s-%s.log", stamp, id[:8]))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "StoryMagic Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Report: %s\n", id)
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if db != nil {
		_, _ = fmt.Fprintf(&buf, "Database: %s\n", db.Path())
		_, _ = fmt.Fprintf(&buf, "DatabaseReady: %t\n", db.IsReady())
		if iid := db.InstallID(); iid != "" {
			_, _ = fmt.Fprintf(&buf, "Install: %s\n", iid)
		}
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()
	return path, nil
}
