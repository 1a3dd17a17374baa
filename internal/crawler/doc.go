// Package crawler implements the broken-link crawl engine: a same-origin
// frontier traversal run by a bounded pool of workers that fetch pages,
// extract navigation and resource references, validate resources with HEAD
// requests, and collect every resource that answers with an HTTP error.
//
// A Session owns one crawl at a time. Progress, broken resources, and
// per-URL diagnostics are pushed to an Observer as they happen, and the
// final list of ErrorRecords is available through Session.Snapshot.
package crawler
