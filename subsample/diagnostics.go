package subsample

import "log"

// Diagnostics receives the non-fatal warnings emitted while subsampling, so
// callers can route them to a log, a test buffer, or /dev/null. A nil
// Diagnostics falls back to the standard logger.
type Diagnostics interface {
	Warnf(format string, args ...interface{})
}

type logDiagnostics struct{}

func (logDiagnostics) Warnf(format string, args ...interface{}) {
	log.Printf("WARNING: "+format, args...)
}

func warner(diag Diagnostics) Diagnostics {
	if diag == nil {
		return logDiagnostics{}
	}
	return diag
}
