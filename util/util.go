// Package util has the pipeline's debug-logging switch.
package util

import "log"

// Logging turns on per-signal debug output: frame decodes in dbc, queue
// activity in canbus, and node evaluation in eval.  Off by default because
// on a busy bus this chatter dwarfs the operational log.
var Logging = false

// Logf writes debug chatter through the standard logger when Logging is on.
func Logf(format string, args ...interface{}) {
	if Logging {
		log.Printf(format, args...)
	}
}
