// Package progress turns crawl notifications into timestamped events and fans
// them out to pluggable sinks. A Hub batches events on a background goroutine
// so crawl workers never block on logging or metrics, and Observer adapts the
// crawler.Observer callbacks onto any Emitter.
package progress
