// Package progress carries run and task lifecycle events from the pipeline
// and dispatcher to pluggable sinks. A Hub batches events on a background
// goroutine so emitters never block on logging or metrics.
package progress
