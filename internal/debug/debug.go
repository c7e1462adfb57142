// Package debug gates verbose translator logging. Logging is off unless the
// E2M_DEBUG environment variable is set or a caller enables it.
package debug

import (
	"os"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
)

var enabled atomic.Bool

func init() {
	if v := os.Getenv("E2M_DEBUG"); v == "1" || v == "true" {
		enabled.Store(true)
	}
}

// Enable toggles all debug logs.
func Enable(on bool) { enabled.Store(on) }

// Enabled reports whether debug logs are emitted.
func Enabled() bool { return enabled.Load() }

// Debug emits a debug record only if debug logging is enabled.
func Debug(msg string, ctx ...interface{}) {
	if Enabled() {
		log.Debug(msg, ctx...)
	}
}

// Info emits info only if debug logging is enabled.
func Info(msg string, ctx ...interface{}) {
	if Enabled() {
		log.Info(msg, ctx...)
	}
}

// Warn emits a warning only if debug logging is enabled.
func Warn(msg string, ctx ...interface{}) {
	if Enabled() {
		log.Warn(msg, ctx...)
	}
}

// Error emits an error only if debug logging is enabled.
func Error(msg string, ctx ...interface{}) {
	if Enabled() {
		log.Error(msg, ctx...)
	}
}
