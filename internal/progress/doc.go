// Package progress carries import-run events from the crawler to pluggable
// sinks. Emitting never blocks the crawl: events are buffered, batched on a
// background goroutine, and dropped with a throttled warning when the buffer
// is full.
package progress
