package monitoring

import (
	"io"
	"log"
)

// Logf carries run-level messages that belong to no match package, such as
// per-video state changes. It defaults to log.Printf; LogStreams.Install
// points it at the ops stream.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. Nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// loggerTo returns a Logf writing to w under prefix, or nil for a nil w.
func loggerTo(w io.Writer, prefix string) func(format string, v ...interface{}) {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds).Printf
}
