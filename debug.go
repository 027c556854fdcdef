package avstor

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Debug logging is off unless a logger is installed; the engine never
// logs on hot paths otherwise.
var debugLogger atomic.Pointer[logrus.Logger]

// SetDebugLogger installs a logger for engine trace output (eviction,
// commit, rollback, corruption). Pass nil to disable.
func SetDebugLogger(l *logrus.Logger) {
	debugLogger.Store(l)
}

func debugLog(msg string, kv ...any) {
	l := debugLogger.Load()
	if l == nil {
		return
	}
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			fields[k] = kv[i+1]
		}
	}
	l.WithFields(fields).Debug(msg)
}
