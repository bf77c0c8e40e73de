// ==================================================================================
//
// Work of the U.S. Department of the Navy, Naval Information Warfare Center Pacific.
// Released as open source under the MIT License.  See LICENSE file.
//
// ==================================================================================

package log

import (
	"log/slog"
	"sort"
)

// DiagnosticLogger adapts a slog.Logger to the fs.Logger interface used for
// diagnostics. Field keys are emitted in sorted order.
type DiagnosticLogger struct {
	logger *slog.Logger
}

func (l *DiagnosticLogger) Log(msg string, fields ...map[string]interface{}) error {
	args := make([]any, 0, len(fields)*8)
	for _, m := range fields {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			args = append(args, slog.Any(k, m[k]))
		}
	}
	l.logger.Info(msg, args...)
	return nil
}

func NewDiagnosticLogger(logger *slog.Logger) *DiagnosticLogger {
	return &DiagnosticLogger{logger: logger}
}
